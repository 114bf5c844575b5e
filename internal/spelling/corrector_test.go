package spelling_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling"
	"github.com/MrWong99/phonospell/internal/spelling/cache"
	"github.com/MrWong99/phonospell/internal/spelling/guard"
	"github.com/MrWong99/phonospell/internal/spelling/llmcorrect"
	"github.com/MrWong99/phonospell/internal/spelling/phonetic"
	"github.com/MrWong99/phonospell/pkg/provider/llm"
	"github.com/MrWong99/phonospell/pkg/provider/llm/mock"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

// failingStore loads an empty mapping and refuses every write.
type failingStore struct{}

func (failingStore) Load(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (failingStore) Save(context.Context, map[string]string) error {
	return errors.New("disk full")
}

func (failingStore) Remove(context.Context) error { return nil }

func newModel(reply string) *mock.Provider {
	return &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: reply},
	}
}

func newCorrector(t *testing.T, p llm.Provider, seed map[string]string, opts ...spelling.Option) *spelling.Corrector {
	t.Helper()
	ctx := context.Background()
	c := cache.Open(ctx, nil)
	for k, v := range seed {
		if err := c.Set(ctx, k, v); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}
	if p != nil {
		opts = append([]spelling.Option{spelling.WithSuggester(llmcorrect.NewSuggester(p))}, opts...)
	}
	return spelling.New(c, opts...)
}

func mustCorrect(t *testing.T, c *spelling.Corrector, sentence string) *spelling.Result {
	t.Helper()
	res, err := c.Correct(context.Background(), sentence)
	if err != nil {
		t.Fatalf("Correct(%q): %v", sentence, err)
	}
	return res
}

func diffCorrections(t *testing.T, got, want []spelling.Correction) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("corrections mismatch (-want +got):\n%s", diff)
	}
}

// ─── pipeline ─────────────────────────────────────────────────────────────────

func TestCorrect_ColdThenWarm(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: enuff->enough")
	c := newCorrector(t, model, nil)

	cold := mustCorrect(t, c, "I have enuff food.")
	if cold.Corrected != "I have enough food." {
		t.Errorf("cold Corrected = %q, want %q", cold.Corrected, "I have enough food.")
	}
	diffCorrections(t, cold.Corrections, []spelling.Correction{
		{Original: "enuff", Corrected: "enough", Source: spelling.SourceModel},
	})
	if !cold.ModelCalled {
		t.Error("cold call should have asked the model")
	}
	if model.Calls() != 1 {
		t.Fatalf("model calls after cold run = %d, want 1", model.Calls())
	}

	warm := mustCorrect(t, c, "I have enuff food.")
	if warm.Corrected != "I have enough food." {
		t.Errorf("warm Corrected = %q", warm.Corrected)
	}
	diffCorrections(t, warm.Corrections, []spelling.Correction{
		{Original: "enuff", Corrected: "enough", Source: spelling.SourceCache},
	})

	// One cache hit does not reach the gate, so the model is asked again,
	// this time with the cache-resolved sentence.
	if model.Calls() != 2 {
		t.Fatalf("model calls after warm run = %d, want 2", model.Calls())
	}
	if got := model.CompleteCalls[1].Req.Messages[0].Content; got != llmcorrect.Prompt("I have enough food.") {
		t.Errorf("warm prompt = %q", got)
	}
}

func TestCorrect_ColdThenWarm_PunctuatedMisspellings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sentence  string
		reply     string
		want      string
		original  string
		corrected string
		entry     cache.Entry
	}{
		{
			name:      "contraction",
			sentence:  "I would'nt go.",
			reply:     "CHANGES: would'nt->wouldn't",
			want:      "I wouldn't go.",
			original:  "would'nt",
			corrected: "wouldn't",
			entry:     cache.Entry{Word: "wouldnt", Correction: "wouldn't"},
		},
		{
			name:      "hyphenated",
			sentence:  "You are wel-cum here.",
			reply:     "CHANGES: wel-cum->welcome",
			want:      "You are welcome here.",
			original:  "wel-cum",
			corrected: "welcome",
			entry:     cache.Entry{Word: "welcum", Correction: "welcome"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			model := &mock.Provider{Replies: []string{tt.reply, "CHANGES: none"}}
			cc := cache.Open(context.Background(), nil)
			c := spelling.New(cc, spelling.WithSuggester(llmcorrect.NewSuggester(model)))

			cold := mustCorrect(t, c, tt.sentence)
			if cold.Corrected != tt.want {
				t.Errorf("cold Corrected = %q, want %q", cold.Corrected, tt.want)
			}
			if diff := cmp.Diff([]cache.Entry{tt.entry}, cc.Entries()); diff != "" {
				t.Errorf("cache entries (-want +got):\n%s", diff)
			}

			warm := mustCorrect(t, c, tt.sentence)
			if warm.Corrected != tt.want {
				t.Errorf("warm Corrected = %q, want %q", warm.Corrected, tt.want)
			}
			diffCorrections(t, warm.Corrections, []spelling.Correction{
				{Original: tt.original, Corrected: tt.corrected, Source: spelling.SourceCache},
			})
		})
	}
}

func TestCorrect_CacheLeavesCorrectFormAlone(t *testing.T) {
	t.Parallel()

	// "wouldnt" and "wouldn't" share a key; the correct spelling must not
	// be reported as a cache correction of itself.
	c := newCorrector(t, nil, map[string]string{"wouldnt": "wouldn't"})

	res := mustCorrect(t, c, "I wouldn't, you wouldnt.")
	if res.Corrected != "I wouldn't, you wouldn't." {
		t.Errorf("Corrected = %q", res.Corrected)
	}
	diffCorrections(t, res.Corrections, []spelling.Correction{
		{Original: "wouldnt", Corrected: "wouldn't", Source: spelling.SourceCache},
	})
}

func TestCorrect_GateSkipsModel(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: none")
	c := newCorrector(t, model, map[string]string{"enuff": "enough", "fud": "food"})

	res := mustCorrect(t, c, "I have enuff fud")
	if res.Corrected != "I have enough food" {
		t.Errorf("Corrected = %q", res.Corrected)
	}
	if res.Skipped != spelling.SkipGate {
		t.Errorf("Skipped = %q, want %q", res.Skipped, spelling.SkipGate)
	}
	if res.ModelCalled || model.Calls() != 0 {
		t.Errorf("model called %d times, want 0", model.Calls())
	}
	diffCorrections(t, res.Corrections, []spelling.Correction{
		{Original: "enuff", Corrected: "enough", Source: spelling.SourceCache},
		{Original: "fud", Corrected: "food", Source: spelling.SourceCache},
	})
}

func TestCorrect_GateThresholdOption(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: none")
	c := newCorrector(t, model, map[string]string{"enuff": "enough", "fud": "food"},
		spelling.WithGateThreshold(0))

	res := mustCorrect(t, c, "I have enuff fud")
	if res.Skipped != spelling.SkipNone || model.Calls() != 1 {
		t.Errorf("Skipped = %q, calls = %d; want model asked once", res.Skipped, model.Calls())
	}
}

func TestCorrect_Idempotent(t *testing.T) {
	t.Parallel()

	model := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			var pairs []string
			prompt := req.Messages[0].Content
			if strings.Contains(prompt, "enuff") {
				pairs = append(pairs, "enuff->enough")
			}
			if strings.Contains(prompt, "platem") {
				pairs = append(pairs, "platem->platinum")
			}
			if len(pairs) == 0 {
				return &llm.CompletionResponse{Content: "CHANGES: none"}, nil
			}
			return &llm.CompletionResponse{Content: "CHANGES: " + strings.Join(pairs, ", ")}, nil
		},
	}
	c := newCorrector(t, model, nil)

	for _, s := range []string{
		"I have enuff food.",
		"i will win platem",
		"I am happy",
		"",
	} {
		once := mustCorrect(t, c, s)
		twice := mustCorrect(t, c, once.Corrected)
		if twice.Corrected != once.Corrected {
			t.Errorf("correct(correct(%q)) = %q, want %q", s, twice.Corrected, once.Corrected)
		}
		if len(twice.Corrections) != 0 {
			t.Errorf("second pass over %q made corrections: %+v", once.Corrected, twice.Corrections)
		}
	}
}

func TestCorrect_GuardVetoesPoisonedCache(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: none")
	c := newCorrector(t, model, map[string]string{"the": "teh", "enuff": "enough"})

	res := mustCorrect(t, c, "the food is enuff")
	if res.Corrected != "the food is enough" {
		t.Errorf("Corrected = %q, want protected word untouched", res.Corrected)
	}
	diffCorrections(t, res.Corrections, []spelling.Correction{
		{Original: "enuff", Corrected: "enough", Source: spelling.SourceCache},
	})
}

func TestCorrect_GuardVetoesModel(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: their->there, fud->food")
	c := newCorrector(t, model, nil)

	res := mustCorrect(t, c, "their fud")
	if res.Corrected != "their food" {
		t.Errorf("Corrected = %q, want %q", res.Corrected, "their food")
	}
	if _, ok := c.Cache().Get("their"); ok {
		t.Error("vetoed pair was cached")
	}
}

func TestCorrect_SetGuard(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: fud->food")
	c := newCorrector(t, model, nil)
	c.SetGuard(guard.Default("fud"))

	res := mustCorrect(t, c, "more fud")
	if res.Corrected != "more fud" {
		t.Errorf("Corrected = %q, want protected word untouched", res.Corrected)
	}
	if !c.Guard().IsProtected("fud") {
		t.Error("Guard() does not return the swapped set")
	}
}

func TestCorrect_PersistFailure(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: enuff->enough")
	c := spelling.New(cache.Open(context.Background(), failingStore{}),
		spelling.WithSuggester(llmcorrect.NewSuggester(model)))

	res, err := c.Correct(context.Background(), "I have enuff food.")
	if err == nil {
		t.Fatalf("expected error, got result %+v", res)
	}
	if !errors.Is(err, cache.ErrPersist) {
		t.Errorf("err = %v, want wrapping cache.ErrPersist", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil on persist failure", res)
	}
	if c.Cache().Len() != 0 {
		t.Errorf("cache holds %d entries after failed persist, want 0", c.Cache().Len())
	}
}

func TestCorrect_ModelFailureDegrades(t *testing.T) {
	t.Parallel()

	model := &mock.Provider{CompleteErr: errors.New("connection refused")}
	c := newCorrector(t, model, map[string]string{"fud": "food"})

	res := mustCorrect(t, c, "I want fud now")
	if res.Corrected != "I want food now" {
		t.Errorf("Corrected = %q, want cache-stage result", res.Corrected)
	}
	var me *llmcorrect.ModelError
	if !errors.As(res.ModelErr, &me) {
		t.Fatalf("ModelErr = %v, want *llmcorrect.ModelError", res.ModelErr)
	}
	if me.Kind != llmcorrect.KindTransport {
		t.Errorf("Kind = %q, want %q", me.Kind, llmcorrect.KindTransport)
	}
	if !res.ModelCalled {
		t.Error("ModelCalled = false, want true")
	}
}

func TestCorrect_ModelTimeout(t *testing.T) {
	t.Parallel()

	model := &mock.Provider{
		CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := newCorrector(t, model, nil, spelling.WithModelTimeout(20*time.Millisecond))

	res := mustCorrect(t, c, "slow sentense")
	var me *llmcorrect.ModelError
	if !errors.As(res.ModelErr, &me) || me.Kind != llmcorrect.KindTimeout {
		t.Fatalf("ModelErr = %v, want timeout", res.ModelErr)
	}
	if res.Corrected != "slow sentense" {
		t.Errorf("Corrected = %q, want input unchanged", res.Corrected)
	}
}

func TestCorrect_CallerCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	model := &mock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-release
			return &llm.CompletionResponse{Content: "CHANGES: none"}, nil
		},
	}
	c := newCorrector(t, model, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := c.Correct(ctx, "waiting forevr")
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if res.ModelErr == nil {
		t.Fatal("ModelErr = nil, want caller deadline reported")
	}
}

func TestCorrect_DropsHallucinatedOriginals(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: zorp->zap, fud->food")
	c := newCorrector(t, model, nil)

	res := mustCorrect(t, c, "I want fud")
	if res.Corrected != "I want food" {
		t.Errorf("Corrected = %q", res.Corrected)
	}
	diffCorrections(t, res.Corrections, []spelling.Correction{
		{Original: "fud", Corrected: "food", Source: spelling.SourceModel},
	})
	if _, ok := c.Cache().Get("zorp"); ok {
		t.Error("hallucinated original was cached")
	}
}

func TestCorrect_WholeWordFirstOccurrence(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: wen->when")
	c := newCorrector(t, model, nil)

	res := mustCorrect(t, c, "we went wen wen")
	if res.Corrected != "we went when wen" {
		t.Errorf("Corrected = %q, want only the first whole-word match replaced", res.Corrected)
	}
}

func TestCorrect_PreservesCaseAndPunctuation(t *testing.T) {
	t.Parallel()

	c := newCorrector(t, nil, map[string]string{"enuff": "enough", "londun": "London"})

	tests := []struct {
		in, want string
	}{
		{"ENUFF!", "ENOUGH!"},
		{"Enuff, I said.", "Enough, I said."},
		{`"enuff"`, `"enough"`},
		{"to londun", "to London"},
	}
	for _, tt := range tests {
		res := mustCorrect(t, c, tt.in)
		if res.Corrected != tt.want {
			t.Errorf("Correct(%q) = %q, want %q", tt.in, res.Corrected, tt.want)
		}
	}
}

func TestCorrect_ModelCaseLearnedLowercase(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: Fud->Food")
	c := newCorrector(t, model, nil)

	res := mustCorrect(t, c, "Fud is good")
	if res.Corrected != "Food is good" {
		t.Errorf("Corrected = %q", res.Corrected)
	}
	if got, _ := c.Cache().Get("fud"); got != "food" {
		t.Errorf("cached value = %q, want %q", got, "food")
	}
}

func TestCorrect_NoBackend(t *testing.T) {
	t.Parallel()

	c := newCorrector(t, nil, map[string]string{"fud": "food"})
	res := mustCorrect(t, c, "fud please")
	if res.Skipped != spelling.SkipNoBackend {
		t.Errorf("Skipped = %q, want %q", res.Skipped, spelling.SkipNoBackend)
	}
	if res.Corrected != "food please" {
		t.Errorf("Corrected = %q", res.Corrected)
	}
}

func TestCorrect_Empty(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: none")
	c := newCorrector(t, model, nil)

	for _, s := range []string{"", "   ", "\t\n"} {
		res := mustCorrect(t, c, s)
		if res.Skipped != spelling.SkipEmpty || res.Corrected != s {
			t.Errorf("Correct(%q) = %+v, want empty skip", s, res)
		}
		if res.Corrections == nil {
			t.Error("Corrections is nil, want empty slice")
		}
	}
	if model.Calls() != 0 {
		t.Errorf("model calls = %d, want 0", model.Calls())
	}
}

func TestCorrect_PlausibilityFilter(t *testing.T) {
	t.Parallel()

	model := newModel("CHANGES: cat->bicycle, fud->food")
	c := newCorrector(t, model, nil, spelling.WithPlausibility(phonetic.New()))

	res := mustCorrect(t, c, "the cat ate fud")
	if res.Corrected != "the cat ate food" {
		t.Errorf("Corrected = %q", res.Corrected)
	}
	if _, ok := c.Cache().Get("cat"); ok {
		t.Error("implausible pair was cached")
	}
}

type recorder struct {
	mu      sync.Mutex
	results []*spelling.Result
}

func (r *recorder) Record(_ context.Context, res *spelling.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func TestCorrect_Recorder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := newCorrector(t, newModel("CHANGES: fud->food"), nil, spelling.WithRecorder(rec))

	mustCorrect(t, c, "fud")
	mustCorrect(t, c, "")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.results) != 2 {
		t.Fatalf("recorded %d results, want 2", len(rec.results))
	}
	if rec.results[0].Corrected != "food" {
		t.Errorf("first recorded = %q", rec.results[0].Corrected)
	}
}

func TestCorrect_CoalescesConcurrentModelCalls(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	model := &mock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-release
			return &llm.CompletionResponse{Content: "CHANGES: fud->food"}, nil
		},
	}
	c := newCorrector(t, model, nil)

	const n = 4
	var wg sync.WaitGroup
	results := make([]*spelling.Result, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Correct(context.Background(), "more fud")
			if err != nil {
				t.Errorf("Correct: %v", err)
				return
			}
			results[i] = r
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for model.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// Give the remaining callers time to join the in-flight request.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if model.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", model.Calls())
	}
	for i, r := range results {
		if r == nil || r.Corrected != "more food" {
			t.Errorf("results[%d] = %+v, want %q", i, r, "more food")
		}
	}
}

func TestCorrect_CoalescingRespectsGuardSwap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	model := &mock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-release
			return &llm.CompletionResponse{Content: "CHANGES: fud->food"}, nil
		},
	}
	c := newCorrector(t, model, nil)

	waitCalls := func(n int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for model.Calls() < n && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	var wg sync.WaitGroup
	var before, after *spelling.Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		before, _ = c.Correct(context.Background(), "more fud")
	}()
	waitCalls(1)

	c.SetGuard(guard.Default("fud"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		after, _ = c.Correct(context.Background(), "more fud")
	}()
	waitCalls(2)
	close(release)
	wg.Wait()

	if model.Calls() != 2 {
		t.Errorf("model calls = %d, want 2 (one per guard snapshot)", model.Calls())
	}
	if before == nil || before.Corrected != "more food" {
		t.Errorf("result under old guard = %+v, want %q", before, "more food")
	}
	if after == nil || after.Corrected != "more fud" {
		t.Errorf("result under new guard = %+v, want protected word untouched", after)
	}
}

// ─── metrics ──────────────────────────────────────────────────────────────────

func sumValue(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				if key == "" {
					total += dp.Value
					continue
				}
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestCorrect_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	model := newModel("CHANGES: zorp->zap, their->there")
	c := newCorrector(t, model, map[string]string{"enuff": "enough", "fud": "food", "the": "teh"},
		spelling.WithMetrics(m))

	mustCorrect(t, c, "enuff fud")         // gate
	mustCorrect(t, c, "the dog ate their") // cache veto, model veto, no_match

	if got := sumValue(t, reader, "phonospell.cache.hits", "", ""); got != 2 {
		t.Errorf("cache hits = %d, want 2", got)
	}
	if got := sumValue(t, reader, "phonospell.gate.skips", "", ""); got != 1 {
		t.Errorf("gate skips = %d, want 1", got)
	}
	if got := sumValue(t, reader, "phonospell.guard.vetoes", "stage", "cache"); got != 1 {
		t.Errorf("cache vetoes = %d, want 1", got)
	}
	if got := sumValue(t, reader, "phonospell.guard.vetoes", "stage", "model"); got != 1 {
		t.Errorf("model vetoes = %d, want 1", got)
	}
	if got := sumValue(t, reader, "phonospell.model.dropped_candidates", "reason", "no_match"); got != 1 {
		t.Errorf("no_match drops = %d, want 1", got)
	}
	if got := sumValue(t, reader, "phonospell.model.calls", "status", "ok"); got != 1 {
		t.Errorf("ok model calls = %d, want 1", got)
	}
}
