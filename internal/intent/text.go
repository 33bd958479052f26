package intent

import (
	"strings"
	"unicode"
)

// text is a lowercased question with its word set.
type text struct {
	lower string
	words map[string]bool
	list  []string
}

func newText(q string) text {
	lower := strings.ToLower(strings.TrimSpace(q))
	list := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]bool, len(list))
	for _, w := range list {
		words[w] = true
	}
	return text{lower: lower, words: words, list: list}
}

// any reports whether one of terms occurs. A term of plain letters must be a
// whole word, "wait*" matches any word starting with "wait", and anything
// else (spaces, digits, symbols) is matched as a substring.
func (t text) any(terms ...string) bool {
	for _, term := range terms {
		switch {
		case strings.HasSuffix(term, "*") && isWord(term[:len(term)-1]):
			prefix := term[:len(term)-1]
			for _, w := range t.list {
				if strings.HasPrefix(w, prefix) {
					return true
				}
			}
		case isWord(term):
			if t.words[term] {
				return true
			}
		default:
			if strings.Contains(t.lower, term) {
				return true
			}
		}
	}
	return false
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
