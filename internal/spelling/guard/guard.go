// Package guard holds the set of words that must never be treated as
// misspellings.
//
// Membership is an absolute veto on the original side of an edit: neither the
// cache stage nor the model stage may rewrite a protected word, whatever the
// model claims. A [Set] is immutable after construction; use [Set.With] to
// derive an extended copy.
package guard

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// defaultWords are function words, pronouns, common verbs and connectives,
// plus owner-approved terms that small models like to "fix".
var defaultWords = []string{
	// articles and auxiliaries
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could",
	"should", "may", "might", "must", "shall", "can", "need", "its", "it's",
	// pronouns
	"i", "you", "he", "she", "it", "we", "they", "me", "him", "her", "us",
	"them", "my", "your", "his", "our", "their", "this", "that", "these",
	"those", "what", "which", "who", "whom",
	// connectives and prepositions
	"and", "or", "but", "if", "because", "when", "where", "how", "why", "for",
	"to", "of", "in", "on", "at", "by", "with", "from", "as",
	// common verbs
	"go", "going", "went", "gone", "come", "coming", "came", "see", "saw",
	"think", "know", "want", "get", "make", "take", "say", "said",
	// owner terms
	"cool", "win", "won't", "kids", "never", "always", "reading", "writing",
	"hard", "easy", "words", "spelling", "dyslexic", "platinum",
}

// Set is an immutable, case-insensitive word set. The zero value and a nil
// *Set protect nothing. Safe for concurrent use.
type Set struct {
	words map[string]struct{}
}

// New returns a Set holding exactly words. Blank entries are ignored.
func New(words ...string) *Set {
	s := &Set{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		if k := normalize(w); k != "" {
			s.words[k] = struct{}{}
		}
	}
	return s
}

// Default returns the built-in protected list extended with extra.
func Default(extra ...string) *Set {
	all := make([]string, 0, len(defaultWords)+len(extra))
	all = append(all, defaultWords...)
	all = append(all, extra...)
	return New(all...)
}

// LoadFile reads an allowlist with one word per line. Blank lines and lines
// starting with '#' are skipped; a trailing "# comment" is stripped.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("guard: open allowlist: %w", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("guard: read allowlist %s: %w", path, err)
	}
	return words, nil
}

// With returns a new Set containing the receiver's words plus words. The
// receiver is not modified.
func (s *Set) With(words ...string) *Set {
	out := &Set{words: make(map[string]struct{}, s.Len()+len(words))}
	if s != nil {
		for w := range s.words {
			out.words[w] = struct{}{}
		}
	}
	for _, w := range words {
		if k := normalize(w); k != "" {
			out.words[k] = struct{}{}
		}
	}
	return out
}

// IsProtected reports whether word is in the set. Comparison ignores case and
// leading or trailing punctuation, so "The," and "THE" both match "the".
func (s *Set) IsProtected(word string) bool {
	if s == nil {
		return false
	}
	k := normalize(word)
	if k == "" {
		return false
	}
	_, ok := s.words[k]
	return ok
}

// Len returns the number of protected words.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}

// Words returns the protected words in no particular order.
func (s *Set) Words() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	return out
}

// normalize lower-cases w and trims surrounding runes that are neither
// letters, digits nor apostrophes, so contractions like "won't" survive.
func normalize(w string) string {
	w = strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	w = strings.Trim(w, "'")
	return strings.ToLower(w)
}
