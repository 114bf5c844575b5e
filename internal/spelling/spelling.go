// Package spelling implements the tiered correction pipeline for phonetic
// misspellings.
//
// A [Corrector] handles one sentence at a time:
//
//  1. Cache stage: every word already seen as a misspelling is replaced from
//     the [cache.Cache]. No network call is made.
//  2. Gate: when the cache alone fixed enough words (two by default) the
//     sentence is treated as resolved and the model is skipped. Running the
//     model over text the cache already repaired mostly invites it to
//     over-correct.
//  3. Model stage: the cache-resolved sentence goes to a [Suggester], which
//     returns (original, corrected) pairs parsed from the model reply.
//  4. Apply: each pair replaces the first remaining whole-word occurrence of
//     its original, and the pair is written to the cache so the next
//     occurrence resolves in stage 1.
//
// A [guard.Set] vetoes any edit whose original is a protected word, in both
// the cache and model stages.
//
// A model failure never fails the call; the cache-stage sentence is returned
// and the failure is reported in [Result.ModelErr]. A cache that cannot
// persist does fail the call, because silently losing a confirmed correction
// would bring the same model call back every time.
package spelling

import (
	"context"
	"time"

	"github.com/MrWong99/phonospell/internal/spelling/guard"
	"github.com/MrWong99/phonospell/internal/spelling/llmcorrect"
)

// Source tells which stage produced a [Correction].
type Source string

const (
	// SourceCache marks a correction looked up in the cache.
	SourceCache Source = "cache"
	// SourceModel marks a correction suggested by the model.
	SourceModel Source = "model"
)

// Correction is one word-level edit applied to the sentence.
type Correction struct {
	// Original is the word as it appeared in the input, case preserved.
	Original string `json:"original"`

	// Corrected is the replacement written into the sentence.
	Corrected string `json:"corrected"`

	// Source is the stage that produced the edit.
	Source Source `json:"source"`
}

// SkipReason explains why the model stage did not run.
type SkipReason string

const (
	// SkipNone means the model stage ran (or was attempted).
	SkipNone SkipReason = ""
	// SkipGate means the cache fixed enough words to skip the model.
	SkipGate SkipReason = "gate"
	// SkipNoBackend means no model is configured.
	SkipNoBackend SkipReason = "no_backend"
	// SkipEmpty means the sentence held no words.
	SkipEmpty SkipReason = "empty"
)

// Result is the outcome of [Corrector.Correct].
type Result struct {
	// Input is the sentence as given.
	Input string

	// Corrected is the sentence with every accepted edit applied.
	Corrected string

	// Corrections lists cache edits first, then model edits, each in the
	// order they were applied. Never nil.
	Corrections []Correction

	// Elapsed is the wall time spent in Correct.
	Elapsed time.Duration

	// ModelCalled reports whether the model was asked.
	ModelCalled bool

	// Skipped is set when the model stage did not run.
	Skipped SkipReason

	// ModelErr is non-nil when the model call failed. It is a
	// *llmcorrect.ModelError and is informational only.
	ModelErr error
}

// Suggester is the model stage. [*llmcorrect.Suggester] implements it.
type Suggester interface {
	Suggest(ctx context.Context, sentence string, g *guard.Set) (*llmcorrect.Suggestion, error)
}

// PlausibilityChecker rejects model suggestions that cannot be what the
// writer meant. [*phonetic.Checker] implements it.
type PlausibilityChecker interface {
	Plausible(original, corrected string) bool
}

// Recorder receives every successful result, for example to keep an audit
// trail. Implementations must not block for long and must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, r *Result)
}

// Compile-time interface check.
var _ Suggester = (*llmcorrect.Suggester)(nil)
