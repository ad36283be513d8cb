package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the history tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, _, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer application.Close()

		fmt.Fprintln(cmd.OutOrStdout(), "history store is up to date")
		return nil
	},
}
