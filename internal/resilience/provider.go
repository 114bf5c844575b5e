package resilience

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/pkg/provider/llm"
)

// Provider is an [llm.Provider] that fails over across several model
// backends. The first backend whose breaker is closed and whose call
// succeeds answers the request.
type Provider struct {
	group   *Group[llm.Provider]
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// ProviderOption configures a [Provider].
type ProviderOption func(*Provider)

// WithMetrics records per-backend request and error counts to m.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ProviderOption {
	return func(p *Provider) {
		if m != nil {
			p.metrics = m
		}
	}
}

// NewProvider chains backends in the given order. Only failures that say
// something about the backend count against its breaker: a context ending
// on the caller's side does not.
func NewProvider(cfg CircuitBreakerConfig, backends []Entry[llm.Provider], opts ...ProviderOption) *Provider {
	if cfg.IsFailure == nil {
		cfg.IsFailure = isBackendFailure
	}
	p := &Provider{
		group:   NewGroup(cfg, backends...),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Complete sends req to the first healthy backend.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, p.group, func(ctx context.Context, name string, b llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := b.Complete(ctx, req)
		if err != nil {
			p.metrics.RecordProviderRequest(ctx, name, "error")
			p.metrics.RecordProviderError(ctx, name, errorKind(err))
			return nil, err
		}
		p.metrics.RecordProviderRequest(ctx, name, "ok")
		return resp, nil
	})
}

// Capabilities reports the tightest limits across all backends, so a
// request sized for the chain fits whichever backend answers it.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	var caps llm.ModelCapabilities
	for _, e := range p.group.entries {
		c := e.Value.Capabilities()
		caps.ContextWindow = minPositive(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = minPositive(caps.MaxOutputTokens, c.MaxOutputTokens)
	}
	return caps
}

// Breakers returns each backend's breaker in try order, for health reporting.
func (p *Provider) Breakers() []*CircuitBreaker {
	out := make([]*CircuitBreaker, len(p.group.entries))
	for i, e := range p.group.entries {
		out[i] = e.Breaker
	}
	return out
}

func minPositive(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}

// isBackendFailure counts everything except cancellation and client-side
// request errors (4xx other than 429) against a backend.
func isBackendFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

func errorKind(err error) string {
	var se *llm.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &se):
		return "status"
	default:
		return "transport"
	}
}
