package summary

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
)

const ellipsis = "..."

// Highlighter truncates text to maxLen runes and bolds every word whose stem
// matches the stem of a highlight term.
type Highlighter struct{}

func (Highlighter) Snippet(text string, terms []string, maxLen int) string {
	text = Truncate(text, maxLen)
	if len(terms) == 0 || text == "" {
		return text
	}
	stems := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		for _, w := range tokenizer.Words(t) {
			stems[tokenizer.Stem(w)] = struct{}{}
		}
	}

	var b strings.Builder
	b.Grow(len(text) + 16)
	word := make([]rune, 0, 16)
	flush := func() {
		if len(word) == 0 {
			return
		}
		w := string(word)
		if _, ok := stems[tokenizer.Stem(strings.ToLower(w))]; ok {
			b.WriteString("<b>")
			b.WriteString(w)
			b.WriteString("</b>")
		} else {
			b.WriteString(w)
		}
		word = word[:0]
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word = append(word, r)
			continue
		}
		flush()
		b.WriteRune(r)
	}
	flush()
	return b.String()
}

// Truncate cuts text to at most maxLen runes, backing up to the last space
// when one is close, and marks the cut with an ellipsis. maxLen <= 0 keeps
// everything.
func Truncate(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	rs := []rune(text)
	if len(rs) <= maxLen {
		return text
	}
	cut := maxLen
	for i := maxLen; i > maxLen/2; i-- {
		if unicode.IsSpace(rs[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(rs[:cut]), unicode.IsSpace) + ellipsis
}
