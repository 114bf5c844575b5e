// Package homophone helps with the errors a spelling pass cannot see: a
// correctly spelled word that is the wrong member of a sound-alike group
// ("their" for "there"). Words are looked up in a fixed table of groups; a
// model then judges the focused word in context and answers with a hint
// rather than a correction, so the writer picks the word themselves.
package homophone

import (
	"slices"
	"strings"
	"unicode"
)

var groups = [][]string{
	{"there", "their", "they're"},
	{"to", "too", "two"},
	{"your", "you're"},
	{"its", "it's"},
	{"here", "hear"},
	{"where", "wear", "were"},
	{"no", "know"},
	{"by", "buy", "bye"},
	{"right", "write"},
	{"which", "witch"},
}

var definitions = map[string]string{
	"there":   "a place (over there)",
	"their":   "belonging to them",
	"they're": "they are (contraction)",
	"to":      "direction (go to school)",
	"too":     "also, or very much",
	"two":     "the number 2",
	"your":    "belonging to you",
	"you're":  "you are (contraction)",
	"its":     "belonging to it",
	"it's":    "it is (contraction)",
	"here":    "this place",
	"hear":    "to listen with ears",
	"where":   "asking about place",
	"wear":    "to put on clothes",
	"were":    "past tense of are",
	"no":      "opposite of yes",
	"know":    "to understand something",
	"by":      "near, or done by someone",
	"buy":     "to purchase something",
	"bye":     "short for goodbye",
	"right":   "correct, or direction",
	"write":   "to put words on paper",
	"which":   "asking about choice",
	"witch":   "magical person in stories",
}

var index = func() map[string][]string {
	m := make(map[string][]string)
	for _, g := range groups {
		for _, w := range g {
			m[w] = g
		}
	}
	return m
}()

// Normalize returns the table form of word: surrounding punctuation and
// quotes removed, typographic apostrophes replaced by "'", lower-cased.
func Normalize(word string) string {
	core := strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToLower(strings.ReplaceAll(core, "’", "'"))
}

// Group returns the sound-alike group word belongs to, including word
// itself, or nil when word is not tracked. The returned slice is a copy.
func Group(word string) []string {
	return slices.Clone(index[Normalize(word)])
}

// IsHomophone reports whether word belongs to a tracked group.
func IsHomophone(word string) bool {
	_, ok := index[Normalize(word)]
	return ok
}

// Define returns the short child-friendly definition of word.
func Define(word string) (string, bool) {
	d, ok := definitions[Normalize(word)]
	return d, ok
}

// Occurrence is a tracked word found in a sentence.
type Occurrence struct {
	// Word is the normalised word.
	Word string `json:"word"`
	// Options is the word's sound-alike group.
	Options []string `json:"options"`
}

// Find returns the tracked words of sentence in order of first appearance.
// A word that occurs several times is reported once; the model judges a
// word, not a position.
func Find(sentence string) []Occurrence {
	var out []Occurrence
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(sentence) {
		w := Normalize(tok)
		g, ok := index[w]
		if !ok || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, Occurrence{Word: w, Options: slices.Clone(g)})
	}
	return out
}

// SoundOut builds the read-aloud script for a hinted word: the sentence is
// read as written and, at every occurrence of word, the reader pauses,
// stresses the word and contrasts its meaning with suggestion's.
func SoundOut(sentence, word, suggestion string) string {
	word, suggestion = Normalize(word), Normalize(suggestion)
	parts := make([]string, 0, len(sentence)/4)
	for _, tok := range strings.Fields(sentence) {
		if Normalize(tok) != word {
			parts = append(parts, tok)
			continue
		}
		parts = append(parts,
			"[pause] "+strings.ToUpper(tok)+".",
			strings.ToUpper(word)+" means "+defineOr(word)+".",
			"Did you mean "+strings.ToUpper(suggestion)+", as in "+defineOr(suggestion)+"?",
		)
	}
	return strings.Join(parts, " ")
}

func defineOr(word string) string {
	if d, ok := definitions[word]; ok {
		return d
	}
	return "unknown"
}
