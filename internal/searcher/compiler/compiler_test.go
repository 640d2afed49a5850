package compiler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
)

type mapCache struct {
	entries map[string]*models.WordStruct
	words   map[string][]string
	puts    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]*models.WordStruct{}, words: map[string][]string{}}
}

func (m *mapCache) Get(_ context.Context, phrase, index string) (*models.WordStruct, []string, bool) {
	ws, ok := m.entries[index+"\x00"+phrase]
	return ws, m.words[index+"\x00"+phrase], ok
}

func (m *mapCache) Put(_ context.Context, phrase, index string, ws *models.WordStruct, fw []string) {
	m.puts++
	m.entries[index+"\x00"+phrase] = ws
	m.words[index+"\x00"+phrase] = fw
}

type failingExtractor struct{ *tokenizer.Extractor }

func (failingExtractor) ExtractPhrases(context.Context, string, string, string, bool) ([]string, error) {
	return nil, errors.New("tokenizer down")
}

func newCompiler(cache ParseCache) *Compiler {
	return New(tokenizer.NewExtractor("en-US"), cache, "en-US")
}

func TestPartsPartition(t *testing.T) {
	parts := Parts("a #3# b #2# c", 0, 5)
	require.Len(t, parts, 3)
	assert.Equal(t, models.PresentationPart{Text: "a", Start: 0, Bound: 3}, parts[0])
	assert.Equal(t, models.PresentationPart{Text: "b", Start: 3, Bound: 2}, parts[1])
	assert.Equal(t, "c", parts[2].Text)

	lo, hi, ok := parts[0].Window(0, 5)
	require.True(t, ok)
	assert.Equal(t, 3, hi-lo)
	lo, hi, ok = parts[1].Window(0, 5)
	require.True(t, ok)
	assert.Equal(t, 2, hi-lo)
	_, _, ok = parts[2].Window(0, 5)
	assert.False(t, ok)

	assert.Equal(t, 5, Parts("a #3# b #2# c", 0, 10)[2].Bound)
}

func TestPartsExtendLastPart(t *testing.T) {
	assert.Equal(t, []models.PresentationPart{{Text: "a", Start: 0, Bound: 10}}, Parts("a #3#", 0, 10))
	assert.Equal(t, []models.PresentationPart{{Text: "cats", Start: 0, Bound: 20}}, Parts("cats", 10, 10))
}

func TestNegationOnlyQuery(t *testing.T) {
	ws, _, err := newCompiler(nil).ParseConjunct(context.Background(), "-term", "main")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, []models.Key{tokenizer.AnyKey}, ws.Keys)
	assert.Equal(t, []models.Key{tokenizer.HashWord("term")}, ws.DisallowKeys)
}

func TestQuotedPhraseKeepsAdjacency(t *testing.T) {
	c := newCompiler(nil)
	ctx := context.Background()

	quoted, _, err := c.ParseConjunct(ctx, `"new york"`, "main")
	require.NoError(t, err)
	assert.Equal(t, []models.Key{tokenizer.HashWord("new"), tokenizer.HashWord("york")}, quoted.Keys)
	assert.Equal(t, map[int]models.QuoteSpan{0: {Kind: models.SpanExact, Len: 2}}, quoted.QuotePositions)

	plain, _, err := c.ParseConjunct(ctx, `new york`, "main")
	require.NoError(t, err)
	assert.Len(t, plain.Keys, 2)
	assert.Nil(t, plain.QuotePositions)
}

func TestDisallowedPhrase(t *testing.T) {
	ws, words, err := newCompiler(nil).ParseConjunct(context.Background(), `-"new york" -bridge`, "main")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, []models.Key{tokenizer.AnyKey}, ws.Keys)
	assert.Equal(t, []models.Key{tokenizer.HashWord("new"), tokenizer.HashWord("york"), tokenizer.HashWord(tokenizer.Stem("bridge"))}, ws.DisallowKeys)
	assert.Equal(t, map[int]models.QuoteSpan{0: {Kind: models.SpanExact, Len: 2}}, ws.DisallowSpans)
	assert.Nil(t, ws.QuotePositions)
	assert.Empty(t, words)
}

func TestQuotedWildcard(t *testing.T) {
	ws, words, err := newCompiler(nil).ParseConjunct(context.Background(), `"foo * bar"`, "main")
	require.NoError(t, err)
	assert.Equal(t, map[int]models.QuoteSpan{0: {Kind: models.SpanWildcard, Len: 2, Gaps: []int{0}}}, ws.QuotePositions)
	assert.Equal(t, []string{"foo", "bar"}, words)
}

func TestMetaIndexAndWeight(t *testing.T) {
	ws, _, err := newCompiler(nil).ParseConjunct(context.Background(), "cats site:Example.com safe:false w:2 -i:news", "main")
	require.NoError(t, err)
	assert.Equal(t, []models.Key{tokenizer.HashWord("cat"), tokenizer.HashWord("site:example.com")}, ws.Keys)
	assert.InDelta(t, 2.0, ws.Weight, 1e-9)
	assert.Equal(t, "news", ws.IndexName)
	assert.Equal(t, models.Descending, ws.Direction)
}

func TestDisallowedMeta(t *testing.T) {
	ws, _, err := newCompiler(nil).ParseConjunct(context.Background(), "cats -site:spam.com", "main")
	require.NoError(t, err)
	assert.Equal(t, []models.Key{tokenizer.HashWord("site:spam.com")}, ws.DisallowKeys)
}

func TestStopWordsOnlyHaveNoStruct(t *testing.T) {
	ws, _, err := newCompiler(nil).ParseConjunct(context.Background(), "the", "main")
	require.NoError(t, err)
	assert.Nil(t, ws)
}

func TestCompileUsesParseCache(t *testing.T) {
	cache := newMapCache()
	c := newCompiler(cache)
	ctx := context.Background()

	structs, words, err := c.Compile(ctx, "cats | dogs", "main", false)
	require.NoError(t, err)
	require.Len(t, structs, 2)
	assert.Equal(t, []string{"cats", "dogs"}, words)
	assert.Equal(t, 2, cache.puts)

	again, _, err := c.Compile(ctx, "Cats | dogs", "main", false)
	require.NoError(t, err)
	assert.Equal(t, structs, again)
	assert.Equal(t, 2, cache.puts)

	_, _, err = c.Compile(ctx, "cats | dogs", "main", true)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.puts)
}

func TestCompileIsIdempotent(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	r := parser.NewRewriter(tokenizer.NewExtractor("en-US"), "en-US", parser.WithClock(func() time.Time { return fixed }))
	queries := []string{`"new york" pizza -cheese w:1.5`, "c", "site:example.com | cats #3# dogs", "-spam"}
	for _, q := range queries {
		for _, p := range Parts(r.Rewrite(q, models.Session{TimePeriod: "month"}), 0, 10) {
			s1, w1, err1 := newCompiler(nil).Compile(context.Background(), p.Text, "main", true)
			s2, w2, err2 := newCompiler(nil).Compile(context.Background(), p.Text, "main", true)
			require.NoError(t, err1)
			require.NoError(t, err2)
			assert.Equal(t, s1, s2, q)
			assert.Equal(t, w1, w2, q)
		}
	}
}

func TestExtractorFailureIsUnavailable(t *testing.T) {
	c := New(failingExtractor{tokenizer.NewExtractor("en-US")}, nil, "en-US")
	_, _, err := c.ParseConjunct(context.Background(), "cats", "main")
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestFormatWords(t *testing.T) {
	assert.Equal(t, []string{"cats", "dog"}, FormatWords([]string{"cat", "cats", "dog", "cat"}))
}

func TestRewriteForMix(t *testing.T) {
	mix := models.Mix{Name: "blend", Fragments: []models.MixFragment{
		{ResultBound: 3, Components: []models.MixComponent{
			{Index: "main", Weight: 1},
			{Index: "news", Weight: 0.5, Direction: models.Descending, Keywords: "kw"},
		}},
		{ResultBound: 2, Components: []models.MixComponent{{Index: "main", Weight: 1}}},
	}}
	got := RewriteForMix("cats w:2 mix:blend", mix)
	assert.Equal(t, "cats w:2 i:main | cats kw w:1 -i:news #3# cats w:2 i:main #2#", got)

	parts := Parts(got, 0, 10)
	require.Len(t, parts, 2)
	assert.Equal(t, 3, parts[0].Bound)
	assert.Equal(t, 7, parts[1].Bound)
}
