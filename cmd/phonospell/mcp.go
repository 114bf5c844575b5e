package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonospell/internal/mcpserver"
	"github.com/MrWong99/phonospell/internal/observe"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the correction tools over MCP on stdio",
	Long: `Serve the correct_spelling, list_corrections and homophone_hint tools
to an MCP client over stdin/stdout. homophone_hint needs a model backend.
Logs go to stderr.

Example client entry:
  {"command": "phonospell", "args": ["mcp", "--config", "/path/phonospell.yaml"]}`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, observe.DefaultMetrics(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		opts := []mcpserver.Option{
			mcpserver.WithVersion(version),
			mcpserver.WithMaxSentenceLen(cfg.Server.MaxSentenceLen),
		}
		if a.hinter != nil {
			opts = append(opts, mcpserver.WithHinter(a.hinter))
		}
		srv := mcpserver.New(a.corrector, opts...)
		slog.Info("mcp server ready on stdio")
		return mcpserver.Run(ctx, srv)
	},
}
