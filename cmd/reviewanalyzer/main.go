// reviewanalyzer scores the sentiment of product reviews on irecommend.ru.
//
// Usage:
//
//	reviewanalyzer analyze <url> [--user-id=<id>]
//	reviewanalyzer history [--user-id=<id>] [--limit=<n>]
//	reviewanalyzer migrate
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
