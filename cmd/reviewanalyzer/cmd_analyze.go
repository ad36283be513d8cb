package main

import (
	"errors"

	"github.com/spf13/cobra"

	"ReviewAnalyzer/internal/app"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze the reviews of one product page",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, logger, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.Analyze(ctx, args[0], rootFlags.userID)
	if err != nil {
		logger.Debug("analysis failed", "error", err)
		return errors.New(app.Message(err))
	}

	renderResult(cmd.OutOrStdout(), result)
	return nil
}
