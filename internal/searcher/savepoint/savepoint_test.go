package savepoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/cache"
)

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New(cache.NewMemoryStore(), time.Hour, nil)

	_, ok, err := s.Load(ctx, 100, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	sp := models.SavePoint{3, models.OffsetDone, 0}
	require.NoError(t, s.Save(ctx, 100, 0, sp))

	got, ok, err := s.Load(ctx, 100, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sp, got)

	_, ok, err = s.Load(ctx, 100, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLastWriterWins(t *testing.T) {
	ctx := context.Background()
	s := New(cache.NewMemoryStore(), time.Hour, nil)
	require.NoError(t, s.Save(ctx, 1, 0, models.SavePoint{1}))
	require.NoError(t, s.Save(ctx, 1, 0, models.SavePoint{2}))
	got, _, err := s.Load(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, models.SavePoint{2}, got)
}

func TestCorruptSavePointStartsFresh(t *testing.T) {
	ctx := context.Background()
	backend := cache.NewMemoryStore()
	require.NoError(t, backend.Set(ctx, Key(7, 2), "garbage", 0))
	s := New(backend, time.Hour, nil)

	_, ok, err := s.Load(ctx, 7, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, 7, 2, models.SavePoint{5}))
	got, ok, err := s.Load(ctx, 7, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.SavePoint{5}, got)
}
