// Package tokenizer provides text tokenisation for the search engine.
// It NFKC-normalises and lower-cases input, segments it into UAX#29 words,
// and applies the Porter2 stemmer. Stop words are indexed like any other
// word but dropped from unquoted query text.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/surgebase/porter2"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into stemmed, lowercased Tokens. Every word gets a
// position, stop words included, so phrase adjacency survives on both the
// index and the query side.
func Tokenize(text string) []Token {
	raw := Words(text)
	tokens := make([]Token, 0, len(raw))
	for pos, word := range raw {
		tokens = append(tokens, Token{
			Term:     Stem(word),
			Position: pos,
		})
	}
	return tokens
}

// Words returns the normalised, unstemmed words of text in order.
func Words(text string) []string {
	text = normalize(text)
	segments := words.FromString(text)
	out := make([]string, 0, len(text)/5)
	for segments.Next() {
		w := segments.Value()
		if !hasWordRune(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Stem reduces a normalised word to its stem. Words outside the Latin
// script are returned unchanged.
func Stem(word string) string {
	for _, r := range word {
		if r > unicode.MaxLatin1 {
			return word
		}
	}
	if len(word) < 3 {
		return word
	}
	return porter2.Stem(word)
}

// IsStopWord reports whether a normalised word is dropped from unquoted
// queries.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
