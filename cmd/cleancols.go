package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vergilyu/geoai-retail/internal/frame"
)

var cleanColsCmd = &cobra.Command{
	Use:   "clean-columns <name>...",
	Short: "Sanitize column names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, cleaned := range frame.CleanColumns(args) {
			fmt.Fprintln(cmd.OutOrStdout(), cleaned)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanColsCmd)
}
