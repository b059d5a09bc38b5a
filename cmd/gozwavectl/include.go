package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var includeCmd = &cobra.Command{
	Use:   "include",
	Short: "Put the controller into inclusion mode until Enter is pressed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, log, cleanup, err := openController()
		if err != nil {
			return err
		}
		defer cleanup()

		waitForReady(ctrl, 15*time.Second)

		if err := ctrl.RequestAddNodesStart(); err != nil {
			return fmt.Errorf("starting inclusion: %w", err)
		}
		log.Info("inclusion mode started; press Enter to stop")

		fmt.Println("Inclusion mode active. Bring the new device into range and trigger its inclusion action.")
		fmt.Println("Press Enter to stop...")
		bufio.NewReader(os.Stdin).ReadString('\n')

		if err := ctrl.RequestAddNodesStop(); err != nil {
			return fmt.Errorf("stopping inclusion: %w", err)
		}
		log.Info("inclusion mode stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(includeCmd)
}
