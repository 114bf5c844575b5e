package llmcorrect

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/MrWong99/phonospell/internal/spelling/guard"
)

// marker introduces the one structured line the model is asked to produce.
const marker = "CHANGES:"

// Candidate is one (original, corrected) pair extracted from a model reply.
// It has not yet been matched against the sentence.
type Candidate struct {
	Original  string
	Corrected string
}

// Parsed is the outcome of reading a model reply.
type Parsed struct {
	// Candidates are the accepted pairs in reply order. Repeated originals
	// are kept; the apply stage resolves them first-match-wins.
	Candidates []Candidate

	// Vetoed are well-formed pairs dropped because their original is a
	// protected word.
	Vetoed []Candidate
}

// ParseChanges extracts the accepted edit candidates from raw. It never fails:
// a reply without a usable CHANGES line simply yields no candidates.
func ParseChanges(raw string, g *guard.Set) []Candidate {
	return Parse(raw, g).Candidates
}

// Parse reads the first line of raw that contains "CHANGES:" (any case) and
// splits its payload into pairs of the form "wrong->right" separated by
// commas. Surrounding prose, blank lines and later lines are ignored.
//
// A pair is discarded when it does not split into exactly two parts, when a
// side is empty after trimming leading and trailing non-word characters, when
// both sides are equal ignoring case, or when the original is protected by g.
func Parse(raw string, g *guard.Set) Parsed {
	var out Parsed

	payload, ok := changesPayload(raw)
	if !ok {
		return out
	}
	if p := strings.ToLower(strings.TrimSpace(payload)); p == "" || p == "none" {
		return out
	}

	for _, tok := range strings.Split(payload, ",") {
		if !strings.Contains(tok, "->") {
			continue
		}
		parts := strings.Split(tok, "->")
		if len(parts) != 2 {
			continue
		}
		orig, corr := trimNonWord(parts[0]), trimNonWord(parts[1])
		if orig == "" || corr == "" {
			continue
		}
		if strings.EqualFold(orig, corr) {
			continue
		}
		c := Candidate{Original: orig, Corrected: corr}
		if g.IsProtected(orig) {
			slog.Debug("llmcorrect: guard veto", "original", orig, "corrected", corr)
			out.Vetoed = append(out.Vetoed, c)
			continue
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out
}

// changesPayload returns the text after the marker on the first line that
// carries it.
func changesPayload(raw string) (string, bool) {
	for line := range strings.Lines(raw) {
		for i := 0; i+len(marker) <= len(line); i++ {
			if strings.EqualFold(line[i:i+len(marker)], marker) {
				return strings.TrimRight(line[i+len(marker):], "\r\n"), true
			}
		}
	}
	return "", false
}

// trimNonWord strips leading and trailing runes that are not letters, digits
// or underscores.
func trimNonWord(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
