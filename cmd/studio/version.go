package main

import (
	"fmt"

	"github.com/spf13/cobra"

	scigo "github.com/YuminosukeSato/scigo-studio"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of studio",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "studio version %s\n", scigo.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
