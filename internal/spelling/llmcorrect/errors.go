package llmcorrect

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/phonospell/pkg/provider/llm"
)

// ErrorKind classifies a failed model call.
type ErrorKind string

const (
	// KindTransport covers network failures and unusable replies.
	KindTransport ErrorKind = "transport"
	// KindTimeout means the call ran past its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindStatus means the backend answered with a non-success status.
	KindStatus ErrorKind = "status"
	// KindCanceled means the caller gave up.
	KindCanceled ErrorKind = "canceled"
)

// ModelError is returned by [Suggester.Suggest] when no usable reply was
// obtained. The corrector treats it as "no model corrections available".
type ModelError struct {
	Kind ErrorKind
	Err  error
}

// Error implements error.
func (e *ModelError) Error() string {
	return fmt.Sprintf("llmcorrect: model %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError wraps err as a *ModelError classified against ctx. An err
// that already is a *ModelError is returned unchanged.
func NewModelError(ctx context.Context, err error) *ModelError {
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}
	return &ModelError{Kind: classify(ctx, err), Err: err}
}

// classify maps err to an [ErrorKind]. The context is consulted as well
// because some transports report an expired deadline as a generic error.
func classify(ctx context.Context, err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return KindStatus
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return KindCanceled
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransport
}
