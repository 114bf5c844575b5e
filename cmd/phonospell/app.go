package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/phonospell/internal/audit"
	"github.com/MrWong99/phonospell/internal/config"
	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/resilience"
	"github.com/MrWong99/phonospell/internal/spelling"
	"github.com/MrWong99/phonospell/internal/spelling/cache"
	"github.com/MrWong99/phonospell/internal/spelling/homophone"
	"github.com/MrWong99/phonospell/internal/spelling/llmcorrect"
	"github.com/MrWong99/phonospell/internal/spelling/phonetic"
)

// app holds the components every subcommand shares.
type app struct {
	corrector *spelling.Corrector
	// hinter is nil when no model is configured.
	hinter   *homophone.Hinter
	breakers []*resilience.CircuitBreaker
	closers  []func()
}

// Close releases stores and pools in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// appOptions trims what [newApp] builds for commands that need less than
// the full pipeline.
type appOptions struct {
	// noModel skips creating model backends (cache maintenance commands).
	noModel bool
	// noAudit skips the audit trail.
	noAudit bool
}

// newApp builds the cache, the model chain and the corrector from cfg.
func newApp(ctx context.Context, cfg *config.Config, metrics *observe.Metrics, o appOptions) (*app, error) {
	a := &app{}

	store, closeStore, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	c := cache.Open(ctx, store)
	slog.Info("cache opened", "backend", cfg.Cache.Backend, "entries", c.Len())

	g, err := config.BuildGuard(cfg.Guard)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []spelling.Option{
		spelling.WithGuard(g),
		spelling.WithMetrics(metrics),
		spelling.WithModelTimeout(cfg.Model.Timeout),
	}
	if n := cfg.Model.GateThreshold; n != 0 {
		opts = append(opts, spelling.WithGateThreshold(n))
	}

	if !o.noModel {
		reg := config.NewRegistry()
		registerBuiltinProviders(reg)
		provider, breakers, err := buildModel(cfg.Model, reg, metrics)
		if err != nil {
			a.Close()
			return nil, err
		}
		if provider != nil {
			opts = append(opts, spelling.WithSuggester(llmcorrect.NewSuggester(provider, suggesterOptions(cfg.Model)...)))
			a.hinter = homophone.NewHinter(provider, homophone.WithTimeout(cfg.Model.Timeout))
			a.breakers = breakers
		} else {
			slog.Warn("no model configured, correcting from the cache only")
		}
		if cfg.Model.PhoneticCheck {
			opts = append(opts, spelling.WithPlausibility(phonetic.New(phonetic.WithThreshold(cfg.Model.PhoneticThreshold))))
		}
	}

	if !o.noAudit && cfg.Audit.Path != "" {
		opts = append(opts, spelling.WithRecorder(audit.NewFileLog(cfg.Audit.Path)))
		slog.Info("audit trail enabled", "path", cfg.Audit.Path)
	}

	a.corrector = spelling.New(c, opts...)
	return a, nil
}

func suggesterOptions(m config.ModelConfig) []llmcorrect.Option {
	var opts []llmcorrect.Option
	if m.Temperature != nil {
		opts = append(opts, llmcorrect.WithTemperature(*m.Temperature))
	}
	if m.MaxTokens > 0 {
		opts = append(opts, llmcorrect.WithMaxTokens(m.MaxTokens))
	}
	if m.Retries > 0 {
		opts = append(opts, llmcorrect.WithRetries(m.Retries+1, m.RetryDelay))
	}
	return opts
}

// openStore returns the durable store selected by c, plus a release func
// when the store holds a connection. The memory backend returns a nil store.
func openStore(ctx context.Context, c config.CacheConfig) (cache.Store, func(), error) {
	switch c.Backend {
	case config.CacheMemory:
		return nil, nil, nil
	case config.CacheFile:
		return cache.NewFileStore(c.Path), nil, nil
	case config.CacheSQLite:
		s, err := cache.OpenSQLite(ctx, c.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("sqlite close failed", "err", err)
			}
		}, nil
	case config.CachePostgres:
		pool, err := pgxpool.New(ctx, c.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("cache: connect postgres: %w", err)
		}
		s := cache.NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		return nil, nil, errors.New("cache: unknown backend " + string(c.Backend))
	}
}
