// Package cache holds the process-wide parse cache and result cache of the
// query engine, backed by Redis or process memory.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
)

const resultPrefix = "search:result:"

// Entry is a cached result page.
type Entry struct {
	Rows      []models.Result `json:"rows"`
	TotalRows int             `json:"total_rows"`
	// Time is when the entry was computed, in unix milliseconds.
	Time         int64 `json:"time"`
	HasOpenCrawl bool  `json:"has_open_crawl"`
}

// Key identifies a result page. DocsOnly and QA change which summaries a
// page holds, so they are part of the key.
type Key struct {
	Raw      bool                  `json:"raw"`
	Structs  [][]models.WordStruct `json:"structs"`
	Query    string                `json:"query"`
	Index    string                `json:"index"`
	Limit    int                   `json:"limit"`
	Num      int                   `json:"num"`
	DocsOnly bool                  `json:"docs_only,omitempty"`
	QA       bool                  `json:"qa,omitempty"`
}

// String hashes the key into its store key.
func (k Key) String() string {
	data, err := json.Marshal(k)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", k))
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s%x", resultPrefix, hash[:16])
}

// EditClock reports when the result-filter overlay last changed, in unix
// milliseconds.
type EditClock interface {
	LastEditTimestamp() int64
}

type Config struct {
	MaxTTL time.Duration
	MinTTL time.Duration
}

// ResultCache stores result pages and rejects entries that are older than
// the last filter edit, older than MaxTTL, or cover a crawl that is still
// open and older than MinTTL.
type ResultCache struct {
	store   Store
	cfg     Config
	filter  EditClock
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	hits    atomic.Int64
	misses  atomic.Int64
	rejects atomic.Int64
}

func New(store Store, cfg Config, filter EditClock, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		store:   store,
		cfg:     cfg,
		filter:  filter,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
		now:     time.Now,
	}
}

// Accept applies the rejection rules to an entry. reason names the rule
// that rejected it.
func (c *ResultCache) Accept(e *Entry) (reason string, ok bool) {
	if c.filter != nil && c.filter.LastEditTimestamp() > e.Time {
		return "filter_edit", false
	}
	age := c.now().Sub(time.UnixMilli(e.Time))
	if c.cfg.MaxTTL > 0 && age > c.cfg.MaxTTL {
		return "max_ttl", false
	}
	if e.HasOpenCrawl && age > c.cfg.MinTTL {
		return "open_crawl", false
	}
	return "", true
}

// Get returns an accepted entry. Missing, rejected and corrupt entries are
// misses; a corrupt entry gets overwritten by the next Set.
func (c *ResultCache) Get(ctx context.Context, key string) (*Entry, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !isMiss(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		c.reject("corrupt")
		return nil, false
	}
	if reason, ok := c.Accept(&e); !ok {
		c.logger.Debug("cache entry rejected", "key", key, "reason", reason)
		c.reject(reason)
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit("result")
	return &e, true
}

// Set stores e, stamping Time when unset.
func (c *ResultCache) Set(ctx context.Context, key string, e *Entry) {
	if e.Time == 0 {
		e.Time = c.now().UnixMilli()
	}
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.cfg.MaxTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached entry or computes, stores and returns a
// fresh one. Concurrent misses for one key share a single computation, and
// the returned entry is shared between them.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, compute func() (*Entry, error)) (*Entry, bool, error) {
	if e, ok := c.Get(ctx, key); ok {
		return e, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		e, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, e)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Entry), false, nil
}

// Invalidate drops every result page.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, resultPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating result cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses, rejects int64) {
	return c.hits.Load(), c.misses.Load(), c.rejects.Load()
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss("result")
}

func (c *ResultCache) reject(reason string) {
	c.rejects.Add(1)
	c.misses.Add(1)
	c.metrics.CacheReject(reason)
	c.metrics.CacheMiss("result")
}
