package tokenizer

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// Listing keys. A word struct whose only positive key is AnyKey matches every
// document in the index.
var (
	AnyKey = HashWord("site:any")
	DocKey = HashWord("site:doc")
)

// HashWord hashes a single stemmed term or materialized meta term.
func HashWord(term string) models.Key {
	return models.Key(xxhash.Sum64String(term))
}

// HashPhrase hashes a multi-term phrase. A one-term phrase hashes like the
// term itself.
func HashPhrase(terms []string) models.Key {
	return HashWord(strings.Join(terms, " "))
}

// Extractor turns query text into stemmed terms. It is the default
// implementation of the compiler's phrase extraction collaborator.
type Extractor struct {
	defaultLocale string
}

// NewExtractor returns an Extractor falling back to defaultLocale when a
// locale cannot be guessed.
func NewExtractor(defaultLocale string) *Extractor {
	if defaultLocale == "" {
		defaultLocale = "en-US"
	}
	return &Extractor{defaultLocale: defaultLocale}
}

// ExtractPhrases returns the stemmed terms of text in order. Unquoted text
// loses its stop words; quoted text keeps them so that adjacency can be
// checked against the full word sequence.
func (e *Extractor) ExtractPhrases(_ context.Context, text, locale, indexName string, quoted bool) ([]string, error) {
	tokens := Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !quoted && IsStopWord(tok.Term) {
			continue
		}
		out = append(out, tok.Term)
	}
	return out, nil
}

// HashWord satisfies the compiler's hashing collaborator.
func (e *Extractor) HashWord(term string) models.Key {
	return HashWord(term)
}

// GuessLocale guesses a locale tag from the dominant script of text.
func (e *Extractor) GuessLocale(text, def string) string {
	if def == "" {
		def = e.defaultLocale
	}
	return GuessLocale(text, def)
}

// Question delegates to the package question detector.
func (e *Extractor) Question(text, locale string) (concise, raw string, ok bool) {
	return DetectQuestion(text, locale)
}
