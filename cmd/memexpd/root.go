package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var homeDir string

var rootCmd = &cobra.Command{
	Use:   "memexpd",
	Short: "memexp2000 platform daemon",
	Long: "memexpd verifies Solana payments, manages AI agents and backroom " +
		"conversations, and serves the platform HTTP API.",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", defaultHome(), "home directory for config and data")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memexp2000"
	}
	return filepath.Join(home, ".memexp2000")
}
