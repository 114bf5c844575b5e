// Package mcpserver exposes a [spelling.Corrector] as Model Context Protocol
// tools, so an assistant can route a user's dictated or typed text through
// the correction pipeline before acting on it.
//
// Tools:
//
//   - correct_spelling: corrects one sentence and returns its report.
//   - list_corrections: lists the learned cache entries.
//   - homophone_hint: hints at sound-alike words used in the wrong place.
//     Registered only when a model is available.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling"
	"github.com/MrWong99/phonospell/internal/spelling/cache"
	"github.com/MrWong99/phonospell/internal/spelling/homophone"
)

const defaultMaxSentenceLen = 4096

// CorrectInput is the argument object of the correct_spelling tool.
type CorrectInput struct {
	Sentence string `json:"sentence" jsonschema:"the sentence to correct, as written"`
}

// ListInput is the argument object of the list_corrections tool.
type ListInput struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"only list misspellings starting with this prefix"`
}

// ListOutput is the result of the list_corrections tool.
type ListOutput struct {
	Count   int           `json:"count"`
	Entries []cache.Entry `json:"entries"`
}

// HintInput is the argument object of the homophone_hint tool.
type HintInput struct {
	Sentence string `json:"sentence" jsonschema:"the sentence to check, as written"`
	Word     string `json:"word,omitempty" jsonschema:"check only this word; all sound-alike words when empty"`
}

// HintOutput is the result of the homophone_hint tool.
type HintOutput struct {
	Hints []*homophone.Hint `json:"hints"`
}

// Option configures [New].
type Option func(*config)

type config struct {
	version        string
	maxSentenceLen int
	hinter         *homophone.Hinter
}

// WithVersion sets the version advertised during initialisation.
func WithVersion(v string) Option {
	return func(c *config) { c.version = v }
}

// WithHinter registers the homophone_hint tool backed by h.
func WithHinter(h *homophone.Hinter) Option {
	return func(c *config) { c.hinter = h }
}

// WithMaxSentenceLen caps the accepted sentence length in bytes.
// Default: 4096.
func WithMaxSentenceLen(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSentenceLen = n
		}
	}
}

// New returns an MCP server with the phonospell tools registered against c.
func New(c *spelling.Corrector, opts ...Option) *mcp.Server {
	cfg := config{version: "dev", maxSentenceLen: defaultMaxSentenceLen}
	for _, o := range opts {
		o(&cfg)
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "phonospell", Version: cfg.version}, nil)
	t := &tools{corrector: c, hinter: cfg.hinter, maxSentenceLen: cfg.maxSentenceLen}

	mcp.AddTool(srv, &mcp.Tool{
		Name: "correct_spelling",
		Description: "Correct phonetic misspellings in one sentence. Learned corrections " +
			"apply instantly; unknown words are checked by a language model. Returns the " +
			"corrected sentence and every word-level edit.",
	}, t.correct)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_corrections",
		Description: "List the misspellings the corrector has learned and their corrections.",
	}, t.list)

	if t.hinter != nil {
		mcp.AddTool(srv, &mcp.Tool{
			Name: "homophone_hint",
			Description: "Check sound-alike words (there/their/they're, to/too/two, ...) in a " +
				"sentence. Never returns a corrected sentence: each suspicious word gets a " +
				"hint naming the likely intended word, its meaning and a read-aloud script.",
		}, t.hint)
	}

	return srv
}

// Run serves the tools over stdin/stdout until ctx is cancelled or the
// client disconnects.
func Run(ctx context.Context, srv *mcp.Server) error {
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

type tools struct {
	corrector      *spelling.Corrector
	hinter         *homophone.Hinter
	maxSentenceLen int
}

func (t *tools) validate(sentence string) error {
	if strings.TrimSpace(sentence) == "" {
		return errors.New("sentence is required")
	}
	if len(sentence) > t.maxSentenceLen {
		return fmt.Errorf("sentence is %d bytes, limit is %d", len(sentence), t.maxSentenceLen)
	}
	return nil
}

func (t *tools) correct(ctx context.Context, _ *mcp.CallToolRequest, in CorrectInput) (*mcp.CallToolResult, spelling.Report, error) {
	if err := t.validate(in.Sentence); err != nil {
		return nil, spelling.Report{}, err
	}

	res, err := t.corrector.Correct(ctx, in.Sentence)
	if err != nil {
		observe.Logger(ctx).Error("mcpserver: correct failed", "err", err)
		return nil, spelling.Report{}, err
	}
	rep := res.Report()
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: rep.Corrected}},
	}, rep, nil
}

func (t *tools) list(_ context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, ListOutput, error) {
	prefix := cache.Key(in.Prefix)
	out := ListOutput{Entries: []cache.Entry{}}
	for _, e := range t.corrector.Cache().Entries() {
		if strings.HasPrefix(e.Word, prefix) {
			out.Entries = append(out.Entries, e)
		}
	}
	out.Count = len(out.Entries)
	return nil, out, nil
}

func (t *tools) hint(ctx context.Context, _ *mcp.CallToolRequest, in HintInput) (*mcp.CallToolResult, HintOutput, error) {
	if err := t.validate(in.Sentence); err != nil {
		return nil, HintOutput{}, err
	}

	var (
		hints []*homophone.Hint
		err   error
	)
	if in.Word != "" {
		var h *homophone.Hint
		if h, err = t.hinter.Hint(ctx, in.Sentence, in.Word); err == nil {
			hints = []*homophone.Hint{h}
		}
	} else {
		hints, err = t.hinter.Check(ctx, in.Sentence)
	}
	if err != nil {
		observe.Logger(ctx).Warn("mcpserver: hint failed", "err", err)
		return nil, HintOutput{}, err
	}
	if hints == nil {
		hints = []*homophone.Hint{}
	}
	return nil, HintOutput{Hints: hints}, nil
}
