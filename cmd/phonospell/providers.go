package main

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/phonospell/internal/config"
	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/resilience"
	"github.com/MrWong99/phonospell/pkg/provider/llm"
	"github.com/MrWong99/phonospell/pkg/provider/llm/anyllm"
	"github.com/MrWong99/phonospell/pkg/provider/llm/ollama"
	"github.com/MrWong99/phonospell/pkg/provider/llm/openai"
)

// registerBuiltinProviders wires all built-in model backends into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Hosted APIs and local OpenAI-compatible servers share one pattern:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			p.SetCapabilities(optInt(entry.Options, "context_window"), optInt(entry.Options, "max_output_tokens"))
			return p, nil
		})
	}

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		ctxWindow, maxOut := optInt(entry.Options, "context_window"), optInt(entry.Options, "max_output_tokens")
		if ctxWindow > 0 || maxOut > 0 {
			opts = append(opts, openai.WithCapabilities(ctxWindow, maxOut))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama talks to the native /api/generate endpoint, so the system
	// prompt and sampling options reach the model unchanged.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []ollama.Option
		ctxWindow, maxOut := optInt(entry.Options, "context_window"), optInt(entry.Options, "max_output_tokens")
		if ctxWindow > 0 || maxOut > 0 {
			opts = append(opts, ollama.WithCapabilities(ctxWindow, maxOut))
		}
		return ollama.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildModel creates the configured model backend. With fallbacks the
// backends are chained behind per-backend circuit breakers; the breakers are
// returned for health reporting. A disabled model stage yields (nil, nil, nil).
func buildModel(m config.ModelConfig, reg *config.Registry, metrics *observe.Metrics) (llm.Provider, []*resilience.CircuitBreaker, error) {
	if !m.Enabled() {
		return nil, nil, nil
	}

	entries := append([]config.ProviderEntry{m.ProviderEntry}, m.Fallbacks...)
	backends := make([]resilience.Entry[llm.Provider], 0, len(entries))
	for i, e := range entries {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, nil, fmt.Errorf("create model backend %q: %w", e.Name, err)
		}
		name := e.Name
		if i > 0 {
			name = fmt.Sprintf("%s#%d", e.Name, i)
		}
		backends = append(backends, resilience.Entry[llm.Provider]{Name: name, Value: p})
		slog.Info("provider created", "kind", "llm", "name", e.Name, "model", e.Model)
	}

	chain := resilience.NewProvider(resilience.CircuitBreakerConfig{
		MaxFailures:  m.Breaker.MaxFailures,
		ResetTimeout: m.Breaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("model backend breaker changed state", "backend", name, "from", from, "to", to)
		},
	}, backends, resilience.WithMetrics(metrics))
	return chain, chain.Breakers(), nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a provider Options map. YAML decodes
// plain numbers as int; floats are truncated.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
