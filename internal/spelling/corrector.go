package spelling

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling/cache"
	"github.com/MrWong99/phonospell/internal/spelling/guard"
	"github.com/MrWong99/phonospell/internal/spelling/llmcorrect"
)

const (
	defaultGateThreshold = 2
	defaultModelTimeout  = 60 * time.Second
)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithSuggester attaches the model stage. Without one every sentence is
// corrected from the cache only and reports [SkipNoBackend].
func WithSuggester(s Suggester) Option {
	return func(c *Corrector) {
		c.suggester = s
	}
}

// WithGuard sets the protected-word set. Default: [guard.Default].
func WithGuard(g *guard.Set) Option {
	return func(c *Corrector) {
		if g != nil {
			c.guard.Store(g)
		}
	}
}

// WithGateThreshold sets how many cache corrections make the model call
// unnecessary. Default: 2. A value of zero or less never skips the model.
func WithGateThreshold(n int) Option {
	return func(c *Corrector) {
		c.gateThreshold = n
	}
}

// WithModelTimeout bounds each model call. Default: 60s. A value of zero or
// less leaves only the caller's context in charge.
func WithModelTimeout(d time.Duration) Option {
	return func(c *Corrector) {
		c.modelTimeout = d
	}
}

// WithPlausibility drops model suggestions the checker rejects. Disabled by
// default.
func WithPlausibility(p PlausibilityChecker) Option {
	return func(c *Corrector) {
		c.plausibility = p
	}
}

// WithMetrics records pipeline metrics to m. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Corrector) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithRecorder hands every successful result to r.
func WithRecorder(r Recorder) Option {
	return func(c *Corrector) {
		c.recorder = r
	}
}

// Corrector runs the tiered correction pipeline. It is safe for concurrent
// use; the HTTP API, live sessions and batch jobs share one instance.
type Corrector struct {
	cache         *cache.Cache
	guard         atomic.Pointer[guard.Set]
	suggester     Suggester
	gateThreshold int
	modelTimeout  time.Duration
	plausibility  PlausibilityChecker
	metrics       *observe.Metrics
	recorder      Recorder

	// flight coalesces identical concurrent model prompts that are filtered
	// through the same guard snapshot.
	flight singleflight.Group
}

// New returns a [Corrector] that reads from and writes to c.
func New(c *cache.Cache, opts ...Option) *Corrector {
	cr := &Corrector{
		cache:         c,
		gateThreshold: defaultGateThreshold,
		modelTimeout:  defaultModelTimeout,
		metrics:       observe.DefaultMetrics(),
	}
	cr.guard.Store(guard.Default())
	for _, o := range opts {
		o(cr)
	}
	return cr
}

// Cache returns the correction cache.
func (c *Corrector) Cache() *cache.Cache { return c.cache }

// Guard returns the protected-word set currently in use.
func (c *Corrector) Guard() *guard.Set { return c.guard.Load() }

// SetGuard swaps the protected-word set. Calls already in flight finish with
// the set they started with.
func (c *Corrector) SetGuard(g *guard.Set) {
	if g != nil {
		c.guard.Store(g)
	}
}

// Correct runs the pipeline over sentence.
//
// The only error returned is a cache persist failure (wrapping
// [cache.ErrPersist]). Model failures are reported in [Result.ModelErr].
func (c *Corrector) Correct(ctx context.Context, sentence string) (*Result, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "spelling.Correct")
	defer span.End()

	g := c.guard.Load()
	res := &Result{
		Input:       sentence,
		Corrected:   sentence,
		Corrections: []Correction{},
	}

	if strings.TrimSpace(sentence) == "" {
		res.Skipped = SkipEmpty
		return c.finish(ctx, res, start), nil
	}

	// --- Stage 1: cache ---
	res.Corrected = c.applyCache(ctx, sentence, g, res)
	span.SetAttributes(attribute.Int("spelling.cache_corrections", len(res.Corrections)))

	// --- Stage 2: gate ---
	if c.gateThreshold > 0 && len(res.Corrections) >= c.gateThreshold {
		res.Skipped = SkipGate
		c.metrics.GateSkips.Add(ctx, 1)
		return c.finish(ctx, res, start), nil
	}
	if c.suggester == nil {
		res.Skipped = SkipNoBackend
		return c.finish(ctx, res, start), nil
	}

	// --- Stage 3: model ---
	res.ModelCalled = true
	sugg, err := c.suggest(ctx, res.Corrected, g)
	if err != nil {
		me := llmcorrect.NewModelError(ctx, err)
		res.ModelErr = me
		c.metrics.RecordModelFailure(ctx, string(me.Kind))
		span.RecordError(me)
		observe.Logger(ctx).Warn("spelling: model unavailable, using cache result",
			"kind", me.Kind, "err", me.Err)
		return c.finish(ctx, res, start), nil
	}
	for _, v := range sugg.Vetoed {
		c.metrics.RecordGuardVeto(ctx, "model")
		observe.Logger(ctx).Debug("spelling: protected word left unchanged",
			"stage", "model", "original", v.Original, "corrected", v.Corrected)
	}

	// --- Stage 4: apply ---
	if err := c.applyModel(ctx, sugg.Candidates, res); err != nil {
		observe.FailSpan(span, err, "cache persist failed")
		return nil, fmt.Errorf("spelling: correct: %w", err)
	}
	return c.finish(ctx, res, start), nil
}

// applyCache replaces every cached misspelling in sentence and appends a
// cache correction per replacement.
func (c *Corrector) applyCache(ctx context.Context, sentence string, g *guard.Set, res *Result) string {
	if c.cache == nil {
		return sentence
	}
	return rewriteTokens(sentence, func(tok string) string {
		lead, core, trail := splitToken(tok)
		if core == "" {
			return tok
		}
		key := cache.Key(core)
		cached, ok := c.cache.Get(key)
		if !ok {
			return tok
		}
		if g.IsProtected(core) || g.IsProtected(key) {
			c.metrics.RecordGuardVeto(ctx, "cache")
			observe.Logger(ctx).Debug("spelling: protected word left unchanged",
				"stage", "cache", "original", core, "cached", cached)
			return tok
		}
		repl := matchCase(core, cached)
		if repl == core {
			// "wouldn't" already reads as the correction stored for "wouldnt".
			return tok
		}
		res.Corrections = append(res.Corrections, Correction{
			Original:  core,
			Corrected: repl,
			Source:    SourceCache,
		})
		c.metrics.CacheHits.Add(ctx, 1)
		return lead + repl + trail
	})
}

// applyModel substitutes each candidate at its first remaining occurrence
// and learns it into the cache.
func (c *Corrector) applyModel(ctx context.Context, cands []llmcorrect.Candidate, res *Result) error {
	working := res.Corrected
	for _, cand := range cands {
		if c.plausibility != nil && !c.plausibility.Plausible(cand.Original, cand.Corrected) {
			c.metrics.RecordDroppedCandidate(ctx, "implausible")
			observe.Logger(ctx).Debug("spelling: dropping implausible suggestion",
				"original", cand.Original, "corrected", cand.Corrected)
			continue
		}

		start, end, ok := findWord(working, cand.Original)
		if !ok {
			c.metrics.RecordDroppedCandidate(ctx, "no_match")
			observe.Logger(ctx).Debug("spelling: suggestion does not occur in sentence",
				"original", cand.Original, "corrected", cand.Corrected)
			continue
		}

		matched := working[start:end]
		repl := matchCase(matched, cand.Corrected)
		working = working[:start] + repl + working[end:]
		res.Corrections = append(res.Corrections, Correction{
			Original:  matched,
			Corrected: repl,
			Source:    SourceModel,
		})

		if c.cache != nil {
			if err := c.cache.Set(ctx, matched, storedForm(matched, cand.Corrected)); err != nil {
				return err
			}
		}
	}
	res.Corrected = working
	return nil
}

// suggest calls the model under the model timeout. Concurrent calls for the
// same sentence share one request; each caller still stops waiting when its
// own context ends.
func (c *Corrector) suggest(ctx context.Context, sentence string, g *guard.Set) (*llmcorrect.Suggestion, error) {
	// The guard filters candidates inside the shared call, so callers holding
	// different snapshots after a SetGuard must not share a result.
	key := fmt.Sprintf("%p\x00%s", g, sentence)
	ch := c.flight.DoChan(key, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if c.modelTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, c.modelTimeout)
			defer cancel()
		}
		callCtx, span := observe.StartSpan(callCtx, "spelling.model")
		defer span.End()

		start := time.Now()
		s, err := c.suggester.Suggest(callCtx, sentence, g)
		status := "ok"
		if err != nil {
			status = "error"
			observe.FailSpan(span, err, "model call failed")
			// Classify against the call context so an expired model timeout
			// reads as a timeout.
			err = llmcorrect.NewModelError(callCtx, err)
		}
		c.metrics.RecordModelCall(callCtx, status, time.Since(start).Seconds())
		return s, err
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*llmcorrect.Suggestion), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finish stamps the elapsed time, records metrics and hands the result to
// the recorder.
func (c *Corrector) finish(ctx context.Context, res *Result, start time.Time) *Result {
	res.Elapsed = time.Since(start)

	path := "model"
	switch {
	case res.Skipped != SkipNone:
		path = string(res.Skipped)
	case res.ModelErr != nil:
		path = "model_error"
	}
	c.metrics.CorrectDuration.Record(ctx, res.Elapsed.Seconds(),
		metric.WithAttributes(attribute.String("path", path)))

	if c.recorder != nil {
		c.recorder.Record(ctx, res)
	}
	return res
}
