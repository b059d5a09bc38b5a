package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Manage return routes for a node",
}

var routesAssignCmd = &cobra.Command{
	Use:   "assign <src-node-id> <dst-node-id>",
	Short: "Assign a static return route from src to dst",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid src node id %q: %w", args[0], err)
		}
		dst, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid dst node id %q: %w", args[1], err)
		}

		ctrl, log, cleanup, err := openController()
		if err != nil {
			return err
		}
		defer cleanup()

		waitForReady(ctrl, 15*time.Second)

		if err := ctrl.RequestAssignReturnRoute(byte(src), byte(dst)); err != nil {
			return fmt.Errorf("assigning return route: %w", err)
		}
		log.Info("return route assigned", "src", src, "dst", dst)
		return nil
	},
}

var routesDeleteCmd = &cobra.Command{
	Use:   "delete <node-id>",
	Short: "Delete all return routes held by a node",
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

		if err := ctrl.RequestDeleteAllReturnRoutes(byte(nodeID)); err != nil {
			return fmt.Errorf("deleting return routes: %w", err)
		}
		log.Info("return routes deleted", "node", nodeID)
		return nil
	},
}

func init() {
	routesCmd.AddCommand(routesAssignCmd, routesDeleteCmd)
	rootCmd.AddCommand(routesCmd)
}
