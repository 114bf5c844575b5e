// Package openai provides an [llm.Provider] for the OpenAI chat completions
// API and for local servers that speak the same protocol (llama.cpp, vLLM,
// LM Studio).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/phonospell/pkg/provider/llm"
)

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client    oai.Client
	model     string
	reasoning bool
	caps      llm.ModelCapabilities
}

var _ llm.Provider = (*Provider)(nil)

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	caps         *llm.ModelCapabilities
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL points the client at an OpenAI-compatible server. A provider
// with a base URL may be created without an API key.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithCapabilities overrides the limits inferred from the model name, for
// local servers whose model names say nothing about them.
func WithCapabilities(contextWindow, maxOutputTokens int) Option {
	return func(c *config) {
		c.caps = &llm.ModelCapabilities{ContextWindow: contextWindow, MaxOutputTokens: maxOutputTokens}
	}
}

// New constructs a Provider for model. apiKey is required unless a base URL
// for a self-hosted server is given.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && cfg.baseURL == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty without a base URL")
	}

	// Retries are owned by the corrector.
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	caps := modelCapabilities(model)
	if cfg.caps != nil {
		caps = *cfg.caps
	}
	return &Provider{
		client:    oai.NewClient(reqOpts...),
		model:     model,
		reasoning: isReasoningModel(model),
		caps:      caps,
	}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, &llm.StatusError{Provider: "openai", Code: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.caps
}

// isReasoningModel reports whether model belongs to the o-series, which
// rejects a sampling temperature and takes instructions as a developer
// message.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) > 1 && m[0] == 'o' && m[1] >= '1' && m[1] <= '9'
}

// modelCapabilities returns limits for known OpenAI model names. Small fast
// models are the usual choice for spelling, so they are listed first.
func modelCapabilities(model string) llm.ModelCapabilities {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4.1"):
		return llm.ModelCapabilities{ContextWindow: 1_047_576, MaxOutputTokens: 32_768}
	case strings.HasPrefix(m, "gpt-4o"):
		return llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}
	case strings.HasPrefix(m, "gpt-3.5-turbo"):
		return llm.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096}
	case strings.HasPrefix(m, "gpt-4-turbo"):
		return llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
	case strings.HasPrefix(m, "gpt-4"):
		return llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}
	case isReasoningModel(m):
		return llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}
	default:
		// Unknown or self-hosted: no limits known.
		return llm.ModelCapabilities{}
	}
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, p.instruction(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		var msg oai.ChatCompletionMessageParamUnion
		switch m.Role {
		case "system":
			msg = p.instruction(m.Content)
		case "user":
			msg = oai.UserMessage(m.Content)
		case "assistant":
			msg = oai.AssistantMessage(m.Content)
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: unknown message role %q", m.Role)
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.Temperature != 0 && !p.reasoning {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func (p *Provider) instruction(text string) oai.ChatCompletionMessageParamUnion {
	if p.reasoning {
		return oai.DeveloperMessage(text)
	}
	return oai.SystemMessage(text)
}
