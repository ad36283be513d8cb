package main

import (
	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analyses, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "Maximum number of entries (0 for all)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	application, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	items, err := application.History(ctx, rootFlags.userID, historyFlags.limit)
	if err != nil {
		return err
	}
	renderHistory(cmd.OutOrStdout(), items)
	return nil
}
