// Command gozwavectl is a CLI for driving a Z-Wave serial controller: include
// and exclude nodes, inspect the node table, send raw commands, and watch
// live events.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridable at build time via -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "gozwavectl",
	Short:   "Z-Wave serial controller CLI",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: $GOZWAVE_CONFIG or configs/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath resolves the config file location: the flag overrides the
// environment variable, which overrides the default.
func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv("GOZWAVE_CONFIG"); path != "" {
		return path
	}
	return "configs/config.yaml"
}
