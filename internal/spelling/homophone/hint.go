package homophone

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling/llmcorrect"
	"github.com/MrWong99/phonospell/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 50
	defaultTimeout     = 30 * time.Second
	checkParallelism   = 4
)

// ErrNotHomophone is returned by [Hinter.Hint] for a word outside every
// tracked group.
var ErrNotHomophone = errors.New("homophone: word is not tracked")

// SystemPrompt tells the model to hint and never to correct.
const SystemPrompt = `You are a reading tutor for a dyslexic child. Your job is to HINT, never correct.

Rules:
1. Identify if the word is a homophone error (there/their/they're, to/too/two, etc.)
2. If it IS an error, respond ONLY with: HINT: "[correct_word]" means [5-word definition]
3. If the word is correct for the context, respond ONLY with: OK
4. DO NOT output the corrected sentence
5. DO NOT explain your reasoning
6. Keep responses under 15 words`

// Prompt returns the user message asking about word in sentence.
func Prompt(sentence, word string) string {
	w := Normalize(word)
	return "Sentence: \"" + sentence + "\"\n" +
		"Focused word: \"" + w + "\"\n" +
		"Homophone options: [" + strings.Join(Group(w), ", ") + "]\n\n" +
		"Is \"" + w + "\" correct in this context? If not, which homophone should be used?"
}

// Verdict is the model's judgement of a focused word.
type Verdict string

const (
	// VerdictOK means the word fits its context.
	VerdictOK Verdict = "ok"
	// VerdictHint means another member of the group was suggested.
	VerdictHint Verdict = "hint"
	// VerdictUnclear means the reply followed neither format or suggested a
	// word outside the group.
	VerdictUnclear Verdict = "unclear"
)

// Hint is the outcome of checking one word.
type Hint struct {
	Word    string   `json:"word"`
	Options []string `json:"options"`
	Verdict Verdict  `json:"verdict"`

	// Suggestion is the group member the model pointed at. Set only for
	// VerdictHint.
	Suggestion string `json:"suggestion,omitempty"`
	// Meaning defines Suggestion: the built-in definition when there is
	// one, otherwise the model's.
	Meaning string `json:"meaning,omitempty"`
	// SoundOut is the read-aloud script for the sentence.
	SoundOut string `json:"sound_out,omitempty"`

	Raw string `json:"raw"`
}

// Option configures a [Hinter].
type Option func(*Hinter)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(t float64) Option {
	return func(h *Hinter) { h.temperature = t }
}

// WithMaxTokens caps the reply length. Default: 50.
func WithMaxTokens(n int) Option {
	return func(h *Hinter) {
		if n > 0 {
			h.maxTokens = n
		}
	}
}

// WithTimeout bounds each model call. Default: 30s. Zero disables the
// bound; the caller's context still applies.
func WithTimeout(d time.Duration) Option {
	return func(h *Hinter) { h.timeout = d }
}

// Hinter asks a model whether tracked words fit their sentence. It is safe
// for concurrent use.
type Hinter struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// NewHinter returns a [Hinter] backed by provider.
func NewHinter(provider llm.Provider, opts ...Option) *Hinter {
	h := &Hinter{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		timeout:     defaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Hint judges word in the context of sentence. Model failures are returned
// as *[llmcorrect.ModelError].
func (h *Hinter) Hint(ctx context.Context, sentence, word string) (*Hint, error) {
	w := Normalize(word)
	group := Group(w)
	if group == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotHomophone, word)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	resp, err := h.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Temperature:  h.temperature,
		MaxTokens:    h.maxTokens,
		Messages:     []llm.Message{{Role: "user", Content: Prompt(sentence, w)}},
	})
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		return nil, llmcorrect.NewModelError(ctx, err)
	}

	hint := ParseHint(resp.Content, w)
	if hint.Verdict == VerdictHint {
		hint.SoundOut = SoundOut(sentence, w, hint.Suggestion)
	}
	observe.Logger(ctx).Debug("homophone: checked word",
		"word", w, "verdict", hint.Verdict, "suggestion", hint.Suggestion)
	return hint, nil
}

// Check hints every tracked word of sentence, in order of appearance. The
// first model failure aborts the check.
func (h *Hinter) Check(ctx context.Context, sentence string) ([]*Hint, error) {
	occ := Find(sentence)
	out := make([]*Hint, len(occ))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkParallelism)
	for i, o := range occ {
		g.Go(func() error {
			hint, err := h.Hint(gctx, sentence, o.Word)
			if err != nil {
				return err
			}
			out[i] = hint
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var quoted = regexp.MustCompile(`["“]([^"”]+)["”]`)

// ParseHint reads a model reply about word. The first line starting with
// "HINT:" or reading "OK" decides; anything else is [VerdictUnclear]. A hint
// that names word itself counts as OK, and one naming a word outside the
// group as unclear.
func ParseHint(raw, word string) *Hint {
	w := Normalize(word)
	group := Group(w)
	hint := &Hint{Word: w, Options: group, Verdict: VerdictUnclear, Raw: raw}
	if group == nil {
		return hint
	}

	for line := range strings.Lines(raw) {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "HINT:"):
			m := quoted.FindStringSubmatch(line)
			if m == nil {
				return hint
			}
			sugg := Normalize(m[1])
			switch {
			case sugg == w:
				hint.Verdict = VerdictOK
			case slices.Contains(group, sugg):
				hint.Verdict = VerdictHint
				hint.Suggestion = sugg
				hint.Meaning = meaning(sugg, line)
			}
			return hint
		case upper == "OK" || strings.HasPrefix(upper, "OK.") || strings.HasPrefix(upper, "OK "):
			hint.Verdict = VerdictOK
			return hint
		}
	}
	return hint
}

func meaning(word, line string) string {
	if d, ok := definitions[word]; ok {
		return d
	}
	if _, after, ok := strings.Cut(line, " means "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
