// Package llm defines the Provider interface for the language-model backends
// phonospell asks for spelling corrections.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance, ...) behind a single request/response call. The corrector
// only needs plain text back; streaming and tool calling are not part of the
// contract.
//
// Implementations must be safe for concurrent use and must return promptly
// when the supplied context is cancelled or its deadline passes.
package llm

import (
	"context"
	"fmt"
)

// Message is a single turn in the conversation sent to the model.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text of the message.
	Content string
}

// Usage holds token accounting returned by the backend, when it reports it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs for one reply.
type CompletionRequest struct {
	// SystemPrompt is the fixed instruction injected before Messages. Providers
	// without a dedicated system field prepend it as a "system" message.
	SystemPrompt string

	// Messages is the ordered conversation. For spelling correction this is a
	// single "user" message holding the sentence.
	Messages []Message

	// Temperature controls sampling randomness. Zero leaves the provider
	// default in place.
	Temperature float64

	// MaxTokens caps the number of generated tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the reply text.
	Content string

	// Usage is token accounting for the request, zero when unreported.
	Usage Usage
}

// ModelCapabilities describes static limits of the configured model.
type ModelCapabilities struct {
	// ContextWindow is the maximum input + output token count. Zero if unknown.
	ContextWindow int

	// MaxOutputTokens is the largest completion the model may produce in one
	// call. Zero if unknown.
	MaxOutputTokens int
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Complete sends req to the model and waits for the full reply.
	//
	// Transport failures, non-2xx responses and context expiry are returned as
	// errors. A non-2xx HTTP response should be reported as a *StatusError so
	// callers can tell it apart from a network failure.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the model. The result is
	// constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}

// StatusError reports a backend that answered with a non-success HTTP status.
type StatusError struct {
	// Provider names the backend (e.g. "ollama").
	Provider string

	// Code is the HTTP status code.
	Code int

	// Body is a (possibly truncated) copy of the response body.
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, e.Body)
}
