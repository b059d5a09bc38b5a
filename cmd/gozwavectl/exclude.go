package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var excludeCmd = &cobra.Command{
	Use:   "exclude <node-id>",
	Short: "Mark a failing node for removal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid node id %q: %w", args[0], err)
		}

		ctrl, log, cleanup, err := openController()
		if err != nil {
			return err
		}
		defer cleanup()

		waitForReady(ctrl, 15*time.Second)

		if err := ctrl.RequestRemoveFailedNode(byte(nodeID)); err != nil {
			return fmt.Errorf("requesting removal of node %d: %w", nodeID, err)
		}
		log.Info("remove-failed-node requested", "node", nodeID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(excludeCmd)
}
