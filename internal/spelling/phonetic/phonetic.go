// Package phonetic rejects model suggestions that do not sound like the word
// they replace.
//
// Dyslexic misspellings are usually phonetic ("fud" for "food", "sed" for
// "said"), so a genuine correction tends to share a Double Metaphone code with
// the misspelling or at least look similar to it. A model that answers
// "cat->bicycle" has hallucinated. The check never proposes words of its own;
// edit distance alone is a poor guide for this kind of error.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultThreshold = 0.70

// Option is a functional option for configuring a [Checker].
type Option func(*Checker)

// WithThreshold sets the minimum Jaro-Winkler score accepted when the two
// words share no phonetic code. Default: 0.70.
func WithThreshold(threshold float64) Option {
	return func(c *Checker) {
		c.threshold = threshold
	}
}

// Checker decides whether a correction is phonetically plausible. It is
// read-only after construction and safe for concurrent use.
type Checker struct {
	threshold float64
}

// New returns a [Checker] configured with opts.
func New(opts ...Option) *Checker {
	c := &Checker{threshold: defaultThreshold}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Plausible reports whether corrected could be what the writer meant by
// original. Multi-word corrections ("alot" -> "a lot") are compared both
// token by token and with spaces removed.
func (c *Checker) Plausible(original, corrected string) bool {
	o := strings.ToLower(strings.TrimSpace(original))
	r := strings.ToLower(strings.TrimSpace(corrected))
	if o == "" || r == "" {
		return false
	}
	if o == r {
		return true
	}

	if codesOverlap(codesFor(o), codesFor(r)) {
		return true
	}
	return Similarity(o, r) >= c.threshold
}

// Similarity returns the best Jaro-Winkler score between a and b, comparing
// the full strings and the strings with spaces removed.
func Similarity(a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	ca, cb := strings.ReplaceAll(a, " ", ""), strings.ReplaceAll(b, " ", "")
	if ca != a || cb != b {
		if s := matchr.JaroWinkler(ca, cb, false); s > score {
			score = s
		}
	}
	return score
}

// codesFor returns the Double Metaphone codes of s with spaces removed.
// Empty codes are excluded.
func codesFor(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, a := matchr.DoubleMetaphone(strings.ReplaceAll(s, " ", ""))
	if p != "" {
		codes[p] = struct{}{}
	}
	if a != "" {
		codes[a] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
