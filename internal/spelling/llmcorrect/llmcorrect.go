// Package llmcorrect implements the model stage of the spelling pipeline: it
// asks an [llm.Provider] for a list of word-level fixes and turns the reply
// into edit candidates.
//
// The model is never asked to rewrite the sentence. It must answer with one
// line of the form
//
//	CHANGES: enuff->enough, fud->food
//
// or "CHANGES: none". A list of pairs can be checked against the source text
// word by word, whereas a free rewrite cannot. Replies that do not follow the
// format are read as "no changes".
package llmcorrect

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/MrWong99/phonospell/internal/spelling/guard"
	"github.com/MrWong99/phonospell/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 150
)

// SystemPrompt is the fixed instruction sent with every sentence.
const SystemPrompt = `You fix spelling for a dyslexic child who spells phonetically.

RULES:
- ONLY fix spelling mistakes
- NEVER change correctly spelled words
- NEVER change word choice or meaning
- NEVER add or remove words

Output format:
CHANGES: misspelled1->correct1, misspelled2->correct2

If no errors:
CHANGES: none

Examples:
"I have enuff fud" -> CHANGES: enuff->enough, fud->food
"i will win platem" -> CHANGES: platem->platinum
"I am happy" -> CHANGES: none`

// Prompt returns the user message for sentence.
func Prompt(sentence string) string {
	return `Fix spelling: "` + sentence + `"`
}

// Option is a functional option for configuring a [Suggester].
type Option func(*Suggester)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(s *Suggester) {
		s.temperature = temp
	}
}

// WithMaxTokens caps the reply length. Default: 150.
func WithMaxTokens(n int) Option {
	return func(s *Suggester) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithRetries retries transport and status failures up to attempts times in
// total, waiting delay between tries. Timeouts and cancellation are never
// retried. Default: a single attempt.
func WithRetries(attempts int, delay time.Duration) Option {
	return func(s *Suggester) {
		if attempts > 0 {
			s.attempts = uint(attempts)
		}
		s.delay = delay
	}
}

// WithSystemPrompt replaces [SystemPrompt].
func WithSystemPrompt(prompt string) Option {
	return func(s *Suggester) {
		if prompt != "" {
			s.systemPrompt = prompt
		}
	}
}

// Suggestion is the outcome of one model call.
type Suggestion struct {
	// Candidates are the accepted edit candidates in reply order.
	Candidates []Candidate

	// Vetoed are pairs dropped because they would rewrite a protected word.
	Vetoed []Candidate

	// Raw is the unmodified reply text.
	Raw string

	// Usage is the token accounting reported by the provider.
	Usage llm.Usage
}

// Suggester asks a model for spelling fixes. It is safe for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: construct the
// [llm.Provider] with the desired model rather than overriding per request.
type Suggester struct {
	llm          llm.Provider
	temperature  float64
	maxTokens    int
	attempts     uint
	delay        time.Duration
	systemPrompt string
}

// NewSuggester returns a [Suggester] backed by provider.
func NewSuggester(provider llm.Provider, opts ...Option) *Suggester {
	s := &Suggester{
		llm:          provider,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
		attempts:     1,
		systemPrompt: SystemPrompt,
	}
	for _, o := range opts {
		o(s)
	}
	if limit := provider.Capabilities().MaxOutputTokens; limit > 0 && limit < s.maxTokens {
		s.maxTokens = limit
	}
	return s
}

// Suggest sends sentence to the model and parses the reply against g.
//
// Every failure is returned as a *[ModelError]. A reply that cannot be parsed
// is not a failure; it yields a Suggestion with no candidates.
func (s *Suggester) Suggest(ctx context.Context, sentence string, g *guard.Set) (*Suggestion, error) {
	req := llm.CompletionRequest{
		SystemPrompt: s.systemPrompt,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: Prompt(sentence)},
		},
	}

	var resp *llm.CompletionResponse
	err := retry.Do(
		func() error {
			r, err := s.llm.Complete(ctx, req)
			if err != nil {
				return err
			}
			if r == nil {
				return errors.New("empty response")
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			k := classify(ctx, err)
			return k == KindTransport || k == KindStatus
		}),
	)
	if err != nil {
		return nil, &ModelError{Kind: classify(ctx, err), Err: err}
	}

	parsed := Parse(resp.Content, g)
	return &Suggestion{
		Candidates: parsed.Candidates,
		Vetoed:     parsed.Vetoed,
		Raw:        resp.Content,
		Usage:      resp.Usage,
	}, nil
}
