package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
)

const parsePrefix = "search:parse:"

type parseEntry struct {
	WordStruct  *models.WordStruct `json:"word_struct"`
	FormatWords []string           `json:"format_words"`
}

// ParseCache remembers compiled disjuncts keyed by lower-cased phrase and
// index name.
type ParseCache struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewParseCache(store Store, ttl time.Duration, m *metrics.Metrics) *ParseCache {
	return &ParseCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "parse-cache"),
	}
}

func (c *ParseCache) Get(ctx context.Context, phrase, index string) (*models.WordStruct, []string, bool) {
	key := parseKey(phrase, index)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !isMiss(err) {
			c.logger.Error("parse cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheMiss("parse")
		return nil, nil, false
	}
	var e parseEntry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		c.logger.Warn("parse cache entry corrupt", "key", key, "error", err)
		c.metrics.CacheMiss("parse")
		return nil, nil, false
	}
	c.metrics.CacheHit("parse")
	return e.WordStruct, e.FormatWords, true
}

func (c *ParseCache) Put(ctx context.Context, phrase, index string, ws *models.WordStruct, formatWords []string) {
	key := parseKey(phrase, index)
	data, err := json.Marshal(parseEntry{WordStruct: ws, FormatWords: formatWords})
	if err != nil {
		c.logger.Error("parse cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("parse cache set failed", "key", key, "error", err)
	}
}

func parseKey(phrase, index string) string {
	hash := sha256.Sum256([]byte(index + "\x00" + phrase))
	return fmt.Sprintf("%s%x", parsePrefix, hash[:16])
}
