package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [Group] failed or had an
// open breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

// Entry is one member of a [Group].
type Entry[T any] struct {
	Name    string
	Value   T
	Breaker *CircuitBreaker
}

// Group is an ordered chain of backends of the same type, each behind its
// own [CircuitBreaker]. Members are tried in order until one succeeds.
//
// Entries are fixed at construction, so a Group is safe for concurrent use
// without locking.
type Group[T any] struct {
	entries []Entry[T]
}

// NewGroup returns a Group over entries. Entries without a breaker get one
// built from cfg, named after the entry.
func NewGroup[T any](cfg CircuitBreakerConfig, entries ...Entry[T]) *Group[T] {
	g := &Group[T]{entries: make([]Entry[T], len(entries))}
	for i, e := range entries {
		if e.Breaker == nil {
			c := cfg
			c.Name = e.Name
			e.Breaker = NewCircuitBreaker(c)
		}
		g.entries[i] = e
	}
	return g
}

// Entries returns the members in try order.
func (g *Group[T]) Entries() []Entry[T] {
	return append([]Entry[T](nil), g.entries...)
}

// Do runs fn against each member of g in order, passing the member's name,
// and returns the first success. It stops early when ctx ends; that error is
// returned as is. When every member fails the result wraps both
// [ErrAllFailed] and the last member's error.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(ctx context.Context, name string, v T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, e := range g.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var out R
		err := e.Breaker.Execute(func() error {
			var err error
			out, err = fn(ctx, e.Name, e.Value)
			return err
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping backend with open breaker", "backend", e.Name)
			continue
		}
		slog.Warn("resilience: backend failed, trying next", "backend", e.Name, "err", err)
	}
	if lastErr == nil {
		return zero, ErrAllFailed
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
