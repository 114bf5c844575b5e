// Package ollama provides an LLM provider that talks to a local Ollama server
// through its native /api/generate endpoint.
//
// Small local models such as phi4-mini answer the spelling prompt quickly
// enough for interactive use, and no API key is involved.
//
//	p, err := ollama.New("", "phi4-mini") // connects to http://localhost:11434
//	resp, err := p.Complete(ctx, llm.CompletionRequest{...})
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/phonospell/pkg/provider/llm"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using a local Ollama server. It is safe for
// concurrent use.
type Provider struct {
	client  *api.Client
	baseURL string
	model   string
	caps    llm.ModelCapabilities
}

type config struct {
	timeout       time.Duration
	contextWindow int
	maxOutput     int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout; the caller's context still
// applies.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithCapabilities overrides the reported context window and output limit.
func WithCapabilities(contextWindow, maxOutputTokens int) Option {
	return func(c *config) {
		c.contextWindow = contextWindow
		c.maxOutput = maxOutputTokens
	}
}

// New constructs a new Ollama Provider.
//
// baseURL is the base URL of the Ollama server; if empty, DefaultBaseURL is
// used. model must not be empty.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ollama: invalid base URL %q", baseURL)
	}

	cfg := &config{contextWindow: 8_192, maxOutput: 2_048}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Provider{
		client:  api.NewClient(u, httpClient),
		baseURL: baseURL,
		model:   model,
		caps: llm.ModelCapabilities{
			ContextWindow:   cfg.contextWindow,
			MaxOutputTokens: cfg.maxOutput,
		},
	}, nil
}

// Complete implements llm.Provider. The system prompt is sent in the "system"
// field; all messages are joined with blank lines into the prompt.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var (
		text strings.Builder
		last api.GenerateResponse
	)
	err := p.client.Generate(ctx, p.buildRequest(req), func(r api.GenerateResponse) error {
		text.WriteString(r.Response)
		last = r
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return nil, &llm.StatusError{
				Provider: "ollama",
				Code:     se.StatusCode,
				Body:     strings.TrimSpace(se.ErrorMessage),
			}
		}
		return nil, fmt.Errorf("ollama: generate: %w", err)
	}

	return &llm.CompletionResponse{
		Content: text.String(),
		Usage: llm.Usage{
			PromptTokens:     last.PromptEvalCount,
			CompletionTokens: last.EvalCount,
			TotalTokens:      last.PromptEvalCount + last.EvalCount,
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.caps
}

func (p *Provider) buildRequest(req llm.CompletionRequest) *api.GenerateRequest {
	system := req.SystemPrompt
	var prompt []string
	for _, m := range req.Messages {
		if m.Role == "system" && system == "" {
			system = m.Content
			continue
		}
		prompt = append(prompt, m.Content)
	}

	stream := false
	options := map[string]any{}
	if req.Temperature != 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	return &api.GenerateRequest{
		Model:   p.model,
		System:  system,
		Prompt:  strings.Join(prompt, "\n\n"),
		Stream:  &stream,
		Options: options,
	}
}
