// Package cmd contains the admin app commands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", "zblock/chainstate", "Path to the chainstate database.")
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Inspect a node's chainstate database",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
