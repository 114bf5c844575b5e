package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonospell/internal/config"
	"github.com/MrWong99/phonospell/internal/health"
	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/server"
	"github.com/MrWong99/phonospell/internal/spelling"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP correction service",
	Long: `Run the HTTP correction service.

Endpoints:
  POST   /v1/correct          correct one sentence
  POST   /v1/correct/batch    correct many sentences
  GET    /v1/cache            list learned corrections
  DELETE /v1/cache[/{word}]   forget learned corrections
  GET    /v1/live             WebSocket live correction
  GET    /healthz, /readyz    health
  GET    /metrics             Prometheus metrics

When the config file exists it is watched: guard words and the log level
are applied live, other changes are reported and need a restart.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if serveAddr != "" {
			cfg.Server.ListenAddr = serveAddr
		}

		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
		})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()
		metrics := observe.DefaultMetrics()

		a, err := newApp(ctx, cfg, metrics, appOptions{})
		if err != nil {
			slog.Error("failed to initialise application", "err", err)
			return err
		}
		defer a.Close()

		if cfgFromFile {
			w, err := config.NewWatcher(cfgFile, func(old, new *config.Config) {
				applyReload(a.corrector, old, new)
			})
			if err != nil {
				slog.Warn("config watcher disabled", "err", err)
			} else {
				defer w.Stop()
			}
		}

		checkers := []health.Checker{health.PingChecker("cache", a.corrector.Cache())}
		if len(a.breakers) > 0 {
			checkers = append(checkers, health.BreakerChecker("model", a.breakers...))
		}
		opts := []server.Option{
			server.WithMaxSentenceLen(cfg.Server.MaxSentenceLen),
			server.WithMaxBatchSize(cfg.Server.MaxBatchSize),
			server.WithBatchParallelism(cfg.Server.BatchParallelism),
			server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
			server.WithHealth(health.New(checkers...)),
			server.WithMetrics(metrics),
		}
		if cfg.Telemetry.MetricsEnabled() {
			opts = append(opts, server.WithMetricsHandler(tel.MetricsHandler()))
		}

		var certFile, keyFile string
		if cfg.Server.TLS != nil {
			certFile, keyFile = cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile
		}

		slog.Info("phonospell starting",
			"version", version,
			"listen_addr", cfg.Server.ListenAddr,
			"model", cfg.Model.Name+"/"+cfg.Model.Model,
			"cache", cfg.Cache.Backend,
		)
		err = server.New(a.corrector, opts...).ListenAndServe(ctx, cfg.Server.ListenAddr, certFile, keyFile)
		if err != nil {
			slog.Error("server error", "err", err)
			return err
		}
		slog.Info("goodbye")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "listen", "", "override server.listen_addr")
}

// applyReload applies the parts of a config change that take effect
// without a restart.
func applyReload(c *spelling.Corrector, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	// The watcher also fires when only the allow file's content changed,
	// which Diff cannot see, so the guard is always rebuilt.
	g, err := config.BuildGuard(new.Guard)
	if err != nil {
		slog.Error("guard reload failed, keeping the previous word list", "err", err)
	} else {
		c.SetGuard(g)
		slog.Info("guard reloaded", "protected_words", g.Len())
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}
