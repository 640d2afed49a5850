package consumer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
)

func newLoader(t *testing.T, shards *shard.Router) (*Loader, *index.MemoryIndex, *docstore.SQLiteStore) {
	t.Helper()
	store, err := docstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	idx := index.NewMemoryIndex(0)
	return NewLoader(idx, store, shards, "main", nil), idx, store
}

// urlOwnedBy finds a URL the router assigns to machine.
func urlOwnedBy(r *shard.Router, machine int) string {
	for i := 0; ; i++ {
		u := fmt.Sprintf("https://example.com/doc/%d", i)
		if r.Owner(u) == machine {
			return u
		}
	}
}

func TestLoadKeepsOwnedDocuments(t *testing.T) {
	router, err := shard.NewRouter(0, 2)
	require.NoError(t, err)
	l, idx, store := newLoader(t, router)
	ctx := context.Background()

	mine := urlOwnedBy(router, 0)
	theirs := urlOwnedBy(router, 1)

	kept, err := l.Load(ctx, DocumentEvent{URL: mine, Title: "Red Kite", Text: "a bird of prey", Lang: "en", Safe: true})
	require.NoError(t, err)
	assert.True(t, kept)
	kept, err = l.Load(ctx, DocumentEvent{URL: theirs, Title: "Elsewhere"})
	require.NoError(t, err)
	assert.False(t, kept)
	assert.Equal(t, 1, idx.DocCount())

	sums, err := store.ResolveURLs(ctx, []models.URLRef{{URL: mine}, {URL: theirs}}, models.Projection{})
	require.NoError(t, err)
	assert.Equal(t, "Red Kite", sums[0].Title)
	assert.True(t, sums[0].IsDoc)
	assert.Empty(t, sums[1].URL)
}

func TestLoadRejectsDocumentWithoutURL(t *testing.T) {
	l, _, _ := newLoader(t, nil)
	_, err := l.Load(context.Background(), DocumentEvent{Title: "no url"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.NoError(t, l.Handle(context.Background(), []byte("k"), []byte(`{"title":"no url"}`)))
	assert.NoError(t, l.Handle(context.Background(), []byte("k"), []byte(`{not json`)))
}

func TestLoadFile(t *testing.T) {
	l, idx, _ := newLoader(t, nil)
	lines := []string{
		`{"url":"https://a.example/1","title":"first","index":"news"}`,
		``,
		`{"url":"https://a.example/2","title":"second","location":"https://a.example/3"}`,
	}
	path := filepath.Join(t.TempDir(), "seed.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))

	n, err := l.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, idx.DocCount())
	assert.ElementsMatch(t, []string{"main", "news"}, idx.Indexes())

	bad := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\n"), 0o644))
	_, err = l.LoadFile(context.Background(), bad)
	assert.ErrorContains(t, err, "bad.jsonl:1")
}
