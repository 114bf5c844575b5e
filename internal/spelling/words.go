package spelling

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// isWordRune matches the runes that may form a word: letters, digits and
// underscore.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

// rewriteTokens calls fn for every whitespace-delimited token of s and
// rebuilds s from the results. Whitespace is kept byte for byte.
func rewriteTokens(s string, fn func(tok string) string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			b.WriteString(s[i : i+size])
			i += size
			continue
		}
		j := i
		for j < len(s) {
			r, size := utf8.DecodeRuneInString(s[j:])
			if unicode.IsSpace(r) {
				break
			}
			j += size
		}
		b.WriteString(fn(s[i:j]))
		i = j
	}
	return b.String()
}

// splitToken separates tok into leading punctuation, the word core and
// trailing punctuation. A token without word runes is all lead.
func splitToken(tok string) (lead, core, trail string) {
	start := strings.IndexFunc(tok, isWordRune)
	if start < 0 {
		return tok, "", ""
	}
	end := strings.LastIndexFunc(tok, isWordRune)
	_, size := utf8.DecodeRuneInString(tok[end:])
	end += size
	return tok[:start], tok[start:end], tok[end:]
}

type casePattern int

const (
	caseAsIs casePattern = iota
	caseTitle
	caseUpper
)

// patternOf classifies the capitalisation of s. Single capital letters
// such as "I" count as title case.
func patternOf(s string) casePattern {
	letters, upper := 0, 0
	first := true
	title := false
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
			if first {
				title = true
			}
		}
		first = false
	}
	switch {
	case letters >= 2 && upper == letters:
		return caseUpper
	case title:
		return caseTitle
	default:
		return caseAsIs
	}
}

// matchCase re-applies the capitalisation of src to repl: ALL CAPS stays all
// caps, a leading capital is kept, anything else leaves repl untouched so
// proper nouns keep their spelling.
func matchCase(src, repl string) string {
	switch patternOf(src) {
	case caseUpper:
		return strings.ToUpper(repl)
	case caseTitle:
		return upperFirst(repl)
	default:
		return repl
	}
}

// storedForm is the cache value for a correction of matched. Capitalisation
// that only mirrors the matched token ("ENUFF" -> "ENOUGH", "Fud" -> "Food")
// is dropped so later lower-case occurrences are not capitalised; any other
// capitalisation ("londun" -> "London") is kept.
func storedForm(matched, corrected string) string {
	switch patternOf(matched) {
	case caseUpper:
		if patternOf(corrected) == caseUpper {
			return strings.ToLower(corrected)
		}
	case caseTitle:
		if patternOf(corrected) == caseTitle {
			return lowerFirst(corrected)
		}
	}
	return corrected
}

func upperFirst(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
		}
	}
	return s
}

func lowerFirst(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			return s[:i] + string(unicode.ToLower(r)) + s[i+utf8.RuneLen(r):]
		}
	}
	return s
}

// findWord returns the byte range of the first case-insensitive occurrence of
// word in s that stands as a whole word. Apostrophes inside contractions
// count as part of the word, so "won" does not match inside "won't".
func findWord(s, word string) (start, end int, ok bool) {
	if word == "" {
		return 0, 0, false
	}
	for i := 0; i < len(s); {
		if n, ok := foldPrefix(s[i:], word); ok &&
			boundaryBefore(s, i) && boundaryAfter(s, i+n) {
			return i, i + n, true
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return 0, 0, false
}

// foldPrefix reports whether s starts with word under Unicode case folding
// and returns the byte length of the matching prefix of s. The length can
// differ from len(word): the Kelvin sign folds to a one-byte "k".
func foldPrefix(s, word string) (int, bool) {
	n := 0
	for _, wr := range word {
		if n >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[n:])
		if sr != wr && !strings.EqualFold(string(sr), string(wr)) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, size := utf8.DecodeLastRuneInString(s[:i])
	if isWordRune(r) {
		return false
	}
	if isApostrophe(r) {
		prev, _ := utf8.DecodeLastRuneInString(s[:i-size])
		return !unicode.IsLetter(prev)
	}
	return true
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, size := utf8.DecodeRuneInString(s[i:])
	if isWordRune(r) {
		return false
	}
	if isApostrophe(r) {
		next, _ := utf8.DecodeRuneInString(s[i+size:])
		return !unicode.IsLetter(next)
	}
	return true
}
