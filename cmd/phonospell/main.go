// Command phonospell corrects phonetic misspellings in typed text.
//
// It runs as an HTTP service (serve), a one-shot corrector (correct), an MCP
// tool server on stdio (mcp), and offers maintenance of the learned
// correction cache (cache).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
