package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List known nodes and their initialization stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, _, cleanup, err := openController()
		if err != nil {
			return err
		}
		defer cleanup()

		waitForReady(ctrl, 15*time.Second)

		fmt.Printf("controller: home=%#08x own-node=%d version=%s api=%s\n", ctrl.HomeID(), ctrl.OwnNodeID(), ctrl.Version(), ctrl.SerialAPIVersion())
		fmt.Printf("%-6s %-12s %-10s %-6s\n", "NODE", "STAGE", "LISTENING", "SENT")
		for _, n := range ctrl.Nodes() {
			fmt.Printf("%-6d %-12s %-10t %-6d\n", n.NodeID, n.Stage(), n.Listening, n.SendCount())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}
