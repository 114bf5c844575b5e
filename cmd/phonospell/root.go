package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonospell/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile  string
	logLevel string

	// cfg is loaded once in the root pre-run hook.
	cfg *config.Config
	// cfgFromFile is false when cfgFile did not exist and defaults are in use.
	cfgFromFile bool
	// level is shared by every handler so the config watcher can change it.
	level = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "phonospell",
	Short: "Tiered spelling correction for phonetic misspellings",
	Long: `phonospell corrects words that are spelled the way they sound
("enuff", "fone", "wen") with a learned correction cache backed by a
language model.

Known misspellings are fixed instantly from the cache. Sentences the cache
cannot settle go to the model, and every correction it confirms is learned
so the same word never costs a model call again.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, cfgFromFile, err = loadConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "phonospell: %v\n", err)
			return err
		}
		if logLevel != "" {
			cfg.Server.LogLevel = config.LogLevel(logLevel)
		}
		level.Set(slogLevel(cfg.Server.LogLevel))
		slog.SetDefault(newLogger(level))

		if !cfgFromFile {
			slog.Debug("config file not found, using defaults", "config", cfgFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "phonospell.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, correctCmd, hintCmd, cacheCmd, mcpCmd)
}

// loadConfig reads path. A missing file is not an error: the built-in
// defaults are returned and fromFile is false.
func loadConfig(path string) (c *config.Config, fromFile bool, err error) {
	c, err = config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger logs to stderr so stdout stays clean for command output and the
// MCP stdio transport.
func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
