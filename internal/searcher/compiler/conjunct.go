package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
)

// Extractor turns text into stemmed terms and terms into keys.
type Extractor interface {
	ExtractPhrases(ctx context.Context, text, locale, indexName string, quoted bool) ([]string, error)
	HashWord(term string) models.Key
	GuessLocale(text, def string) string
}

// ParseCache remembers compiled disjuncts per (lower-cased phrase, index).
type ParseCache interface {
	Get(ctx context.Context, phrase, index string) (*models.WordStruct, []string, bool)
	Put(ctx context.Context, phrase, index string, ws *models.WordStruct, formatWords []string)
}

type Compiler struct {
	extractor     Extractor
	cache         ParseCache
	defaultLocale string
	logger        *slog.Logger
}

// New returns a Compiler. cache may be nil.
func New(extractor Extractor, cache ParseCache, defaultLocale string) *Compiler {
	return &Compiler{
		extractor:     extractor,
		cache:         cache,
		defaultLocale: defaultLocale,
		logger:        slog.Default().With("component", "query-compiler"),
	}
}

// Compile parses every disjunct of a presentation part. The parse cache is
// skipped when bypassCache is set.
func (c *Compiler) Compile(ctx context.Context, part, indexName string, bypassCache bool) ([]models.WordStruct, []string, error) {
	var (
		structs []models.WordStruct
		words   []string
	)
	for _, d := range parser.Lex(part).Disjuncts() {
		phrase := d.String()
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		lower := strings.ToLower(phrase)
		var (
			ws  *models.WordStruct
			fw  []string
			hit bool
		)
		if !bypassCache && c.cache != nil {
			ws, fw, hit = c.cache.Get(ctx, lower, indexName)
		}
		if !hit {
			var err error
			ws, fw, err = c.ParseConjunct(ctx, phrase, indexName)
			if err != nil {
				return nil, nil, err
			}
			if !bypassCache && c.cache != nil {
				c.cache.Put(ctx, lower, indexName, ws, fw)
			}
		}
		words = append(words, fw...)
		if ws != nil {
			structs = append(structs, *ws)
		}
	}
	return structs, FormatWords(words), nil
}

// ParseConjunct compiles one disjunct. It returns a nil struct when the text
// leaves no usable keys.
func (c *Compiler) ParseConjunct(ctx context.Context, text, indexName string) (*models.WordStruct, []string, error) {
	tokens := parser.Lex(text)
	ws := &models.WordStruct{Weight: 1, IndexName: indexName}
	locale := c.locale(tokens)
	var words []string

	extract := func(value string, quoted bool) ([]string, error) {
		terms, err := c.extractor.ExtractPhrases(ctx, value, locale, ws.IndexName, quoted)
		if err != nil {
			return nil, apperrors.Unavailable("compiler.extract", err)
		}
		return terms, nil
	}

	// Index and weight apply to the whole disjunct wherever they appear.
	for _, t := range tokens {
		switch t.Kind {
		case parser.Index:
			if t.Value != "" {
				ws.IndexName = t.Value
			}
			if t.Negated {
				ws.Direction = models.Descending
			}
		case parser.Weight:
			if t.Valid && t.Weight > 0 {
				ws.Weight = t.Weight
			} else {
				c.logger.Debug("ignoring malformed weight", "value", t.Value)
			}
		}
	}

	for _, t := range tokens {
		switch t.Kind {
		case parser.Word:
			terms, err := extract(t.Value, false)
			if err != nil {
				return nil, nil, err
			}
			for _, term := range terms {
				ws.Keys = append(ws.Keys, c.extractor.HashWord(term))
			}
			words = append(words, tokenizer.Words(t.Value)...)
		case parser.Quoted:
			if err := c.addQuoted(ws, t.Value, extract); err != nil {
				return nil, nil, err
			}
			words = append(words, tokenizer.Words(strings.ReplaceAll(t.Value, "*", " "))...)
		case parser.Meta:
			if k, ok := c.metaKey(t); ok {
				ws.Keys = append(ws.Keys, k)
			}
		case parser.Disallow:
			if t.Phrase {
				if err := c.disallowPhrase(ws, t.Value, extract); err != nil {
					return nil, nil, err
				}
				continue
			}
			keys, err := c.disallowKeys(t.Value, extract)
			if err != nil {
				return nil, nil, err
			}
			ws.DisallowKeys = append(ws.DisallowKeys, keys...)
		}
	}

	if len(ws.Keys) == 0 {
		if len(ws.DisallowKeys) == 0 {
			return nil, FormatWords(words), nil
		}
		ws.Keys = []models.Key{tokenizer.AnyKey}
	}
	return ws, FormatWords(words), nil
}

// addQuoted appends the members of a quoted span to the struct's keys.
func (c *Compiler) addQuoted(ws *models.WordStruct, value string, extract func(string, bool) ([]string, error)) error {
	keys, span, err := c.quoted(value, extract)
	if err != nil {
		return err
	}
	if span != nil {
		if ws.QuotePositions == nil {
			ws.QuotePositions = make(map[int]models.QuoteSpan)
		}
		ws.QuotePositions[len(ws.Keys)] = *span
	}
	ws.Keys = append(ws.Keys, keys...)
	return nil
}

// quoted hashes the members of a quoted value. A "*" marks a free gap after
// the member preceding it. span is nil for fewer than two members.
func (c *Compiler) quoted(value string, extract func(string, bool) ([]string, error)) ([]models.Key, *models.QuoteSpan, error) {
	var keys []models.Key
	var gaps []int
	for i, seg := range strings.Split(value, "*") {
		if i > 0 && len(keys) > 0 {
			gaps = append(gaps, len(keys)-1)
		}
		terms, err := extract(seg, true)
		if err != nil {
			return nil, nil, err
		}
		for _, term := range terms {
			keys = append(keys, c.extractor.HashWord(term))
		}
	}
	n := len(keys)
	if n < 2 {
		return keys, nil, nil
	}
	span := &models.QuoteSpan{Kind: models.SpanExact, Len: n}
	if gaps = trimGaps(gaps, n); len(gaps) > 0 {
		span.Kind = models.SpanWildcard
		span.Gaps = gaps
	}
	return keys, span, nil
}

// trimGaps drops duplicate gaps and gaps after the last member.
func trimGaps(gaps []int, n int) []int {
	out := gaps[:0]
	for _, g := range gaps {
		if g >= n-1 || (len(out) > 0 && out[len(out)-1] == g) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func (c *Compiler) metaKey(t parser.Token) (models.Key, bool) {
	value := strings.ToLower(t.Value)
	switch t.Prefix {
	case "safe":
		if value != "true" {
			return 0, false
		}
	case "mix":
		return 0, false
	}
	if value == "" {
		return 0, false
	}
	return c.extractor.HashWord(t.Prefix + ":" + value), true
}

// disallowPhrase excludes documents holding the quoted value as a phrase.
// A single member is an ordinary disallowed key.
func (c *Compiler) disallowPhrase(ws *models.WordStruct, value string, extract func(string, bool) ([]string, error)) error {
	keys, span, err := c.quoted(value, extract)
	if err != nil {
		return err
	}
	if span != nil {
		if ws.DisallowSpans == nil {
			ws.DisallowSpans = make(map[int]models.QuoteSpan)
		}
		ws.DisallowSpans[len(ws.DisallowKeys)] = *span
	}
	ws.DisallowKeys = append(ws.DisallowKeys, keys...)
	return nil
}

func (c *Compiler) disallowKeys(value string, extract func(string, bool) ([]string, error)) ([]models.Key, error) {
	if t := parser.Lex(value); len(t) == 1 && t[0].Kind == parser.Meta {
		if k, ok := c.metaKey(t[0]); ok {
			return []models.Key{k}, nil
		}
		return nil, nil
	}
	terms, err := extract(value, true)
	if err != nil {
		return nil, err
	}
	keys := make([]models.Key, 0, len(terms))
	for _, term := range terms {
		keys = append(keys, c.extractor.HashWord(term))
	}
	return keys, nil
}

func (c *Compiler) locale(tokens parser.Tokens) string {
	for _, t := range tokens {
		if t.Kind == parser.Meta && t.Prefix == "lang" && t.Value != "" {
			return t.Value
		}
	}
	var free []string
	for _, t := range tokens {
		if t.Kind == parser.Word || t.Kind == parser.Quoted {
			free = append(free, t.Value)
		}
	}
	return c.extractor.GuessLocale(strings.Join(free, " "), c.defaultLocale)
}

// String renders a word struct for plan diagnostics.
func String(ws models.WordStruct) string {
	return fmt.Sprintf("keys=%v disallow=%v spans=%v disallow_spans=%v w=%g index=%s %s",
		ws.Keys, ws.DisallowKeys, ws.QuotePositions, ws.DisallowSpans, ws.Weight, ws.IndexName, ws.Direction)
}
