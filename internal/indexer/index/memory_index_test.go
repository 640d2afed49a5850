package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/iterator"
)

func keysOf(t *testing.T, it iterator.Iterator) []models.Key {
	t.Helper()
	var out []models.Key
	for {
		p, err := it.Next(context.Background())
		if errors.Is(err, iterator.ErrExhausted) {
			return out
		}
		require.NoError(t, err)
		out = append(out, p.Doc.Key)
	}
}

func newTestIndex() *MemoryIndex {
	idx := NewMemoryIndex(0)
	idx.AddDocument("main", Document{Key: 1, Text: "the cat sat on the mat", Meta: tokenizer.DocMeta{URL: "https://www.example.com/a", Lang: "en"}})
	idx.AddDocument("main", Document{Key: 2, Text: "new york cat", Meta: tokenizer.DocMeta{URL: "https://other.org/b", Lang: "en-US"}})
	idx.AddDocument("news", Document{Key: 3, Text: "cat news", Meta: tokenizer.DocMeta{URL: "https://example.com/c", Lang: "fr"}})
	return idx
}

func TestWordLeafAscendingAndDescending(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	cat := tokenizer.HashWord("cat")

	asc, err := idx.Word(ctx, "main", cat, models.Ascending)
	require.NoError(t, err)
	assert.Equal(t, []models.Key{1, 2}, keysOf(t, asc))

	desc, err := idx.Word(ctx, "main", cat, models.Descending)
	require.NoError(t, err)
	assert.Equal(t, []models.Key{2, 1}, keysOf(t, desc))
}

func TestWordLeafCarriesPositionsAndRelevance(t *testing.T) {
	idx := newTestIndex()
	york := tokenizer.HashWord("york")
	leaf, err := idx.Word(context.Background(), "main", york, models.Ascending)
	require.NoError(t, err)
	p, err := leaf.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, p.Positions[york])
	assert.Greater(t, p.Doc.Relevance, 0.0)
	assert.Equal(t, "main", p.Doc.Index)
}

func TestMetaTermsAreIndexed(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()

	site, err := idx.Word(ctx, "main", tokenizer.HashWord("site:example.com"), models.Ascending)
	require.NoError(t, err)
	assert.Equal(t, []models.Key{1}, keysOf(t, site))

	lang, err := idx.Word(ctx, "main", tokenizer.HashWord("lang:en"), models.Ascending)
	require.NoError(t, err)
	assert.Equal(t, []models.Key{1, 2}, keysOf(t, lang))
}

func TestListingAndUnknownIndex(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()

	all, err := idx.Listing(ctx, "news", models.Ascending)
	require.NoError(t, err)
	assert.Equal(t, []models.Key{3}, keysOf(t, all))

	none, err := idx.Word(ctx, "missing", tokenizer.HashWord("cat"), models.Ascending)
	require.NoError(t, err)
	assert.Empty(t, keysOf(t, none))
	assert.Equal(t, models.OffsetDone, none.Offset())
}

func TestLeafOffsetRoundTrip(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	leaf, err := idx.Listing(ctx, "main", models.Ascending)
	require.NoError(t, err)
	_, err = leaf.Next(ctx)
	require.NoError(t, err)
	off := leaf.Offset()
	assert.Equal(t, models.Offset(1), off)

	again, err := idx.Listing(ctx, "main", models.Ascending)
	require.NoError(t, err)
	again.Advance(off)
	assert.Equal(t, []models.Key{2}, keysOf(t, again))
}

func TestDescendingOffsetSurvivesGrowth(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	leaf, err := idx.Listing(ctx, "main", models.Descending)
	require.NoError(t, err)
	p, err := leaf.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, models.Key(2), p.Doc.Key)
	off := leaf.Offset()

	idx.AddDocument("main", Document{Key: 9, Text: "late arrival", Meta: tokenizer.DocMeta{Lang: "en"}})
	again, err := idx.Listing(ctx, "main", models.Descending)
	require.NoError(t, err)
	again.Advance(off)
	assert.Equal(t, []models.Key{1}, keysOf(t, again))

	fresh, err := idx.Listing(ctx, "main", models.Descending)
	require.NoError(t, err)
	fresh.Advance(0)
	assert.Equal(t, []models.Key{9, 2, 1}, keysOf(t, fresh))
}

func TestStats(t *testing.T) {
	idx := newTestIndex()
	assert.Equal(t, 3, idx.DocCount())
	assert.ElementsMatch(t, []string{"main", "news"}, idx.Indexes())
	assert.Positive(t, idx.Size())
	idx.Reset()
	assert.Zero(t, idx.DocCount())
}
