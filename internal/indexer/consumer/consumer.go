// Package consumer loads crawled documents into this machine's posting
// source and summary store. Documents arrive on the documents topic or, at
// startup, from a JSON-lines seed file; both paths share Loader.Load.
package consumer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
)

// DocumentEvent is one crawled page.
type DocumentEvent struct {
	Index       string             `json:"index"`
	URL         string             `json:"url"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Text        string             `json:"text"`
	Hash        string             `json:"hash"`
	Lang        string             `json:"lang"`
	Safe        bool               `json:"safe"`
	Media       string             `json:"media,omitempty"`
	CrawlTime   int64              `json:"crawl_time"`
	DocRank     float64            `json:"doc_rank"`
	UserRanks   map[string]float64 `json:"user_ranks,omitempty"`
	Generation  int                `json:"generation"`
	Location    string             `json:"location,omitempty"`
	RobotMetas  []string           `json:"robot_metas,omitempty"`
	HTTPCode    int                `json:"http_code,omitempty"`
	Answers     []string           `json:"answers,omitempty"`
	Links       []string           `json:"links,omitempty"`
}

// Store persists summaries. *docstore.SQLiteStore satisfies it.
type Store interface {
	Put(ctx context.Context, r docstore.Record) error
}

// Loader indexes the documents this machine owns.
type Loader struct {
	index        *index.MemoryIndex
	store        Store
	shards       *shard.Router
	defaultIndex string
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu         sync.Mutex
	nextOffset int64
}

func NewLoader(idx *index.MemoryIndex, store Store, shards *shard.Router, defaultIndex string, m *metrics.Metrics) *Loader {
	return &Loader{
		index:        idx,
		store:        store,
		shards:       shards,
		defaultIndex: defaultIndex,
		metrics:      m,
		logger:       slog.Default().With("component", "document-loader"),
	}
}

// Load stores and indexes ev. It reports false, nil for documents owned by
// another machine.
func (l *Loader) Load(ctx context.Context, ev DocumentEvent) (bool, error) {
	if ev.URL == "" {
		return false, apperrors.New(apperrors.ErrInvalidInput, "loader.load", "document without url")
	}
	if l.shards != nil && !l.shards.Owns(ev.URL) {
		return false, nil
	}
	indexName := ev.Index
	if indexName == "" {
		indexName = l.defaultIndex
	}

	// The store write and the index insert happen under one lock so that
	// summary offsets follow index order.
	l.mu.Lock()
	defer l.mu.Unlock()
	key := shard.DocKey(ev.URL)
	rec := docstore.Record{
		Generation:    ev.Generation,
		SummaryOffset: l.nextOffset,
		Key:           key,
		CrawlTime:     ev.CrawlTime,
		Summary: models.Summary{
			URL:         ev.URL,
			Title:       ev.Title,
			Description: ev.Description,
			Hash:        ev.Hash,
			IsDoc:       ev.Location == "",
			Location:    ev.Location,
			RobotMetas:  ev.RobotMetas,
			HTTPCode:    ev.HTTPCode,
			Answers:     ev.Answers,
			Links:       ev.Links,
		},
	}
	if err := l.store.Put(ctx, rec); err != nil {
		return false, apperrors.Unavailable("loader.store", err)
	}
	l.index.AddDocument(indexName, index.Document{
		Key:  key,
		Text: ev.Title + " " + ev.Description + " " + ev.Text,
		Meta: tokenizer.DocMeta{
			URL:       ev.URL,
			Lang:      ev.Lang,
			Safe:      ev.Safe,
			CrawlTime: ev.CrawlTime,
			Media:     ev.Media,
		},
		DocRank:       ev.DocRank,
		Generation:    ev.Generation,
		SummaryOffset: l.nextOffset,
		UserRanks:     ev.UserRanks,
	})
	l.nextOffset++
	l.metrics.SetIndexedDocs(l.index.DocCount())
	return true, nil
}

// Handle is the kafka.MessageHandler of the documents topic. Undecodable
// messages are logged and skipped.
func (l *Loader) Handle(ctx context.Context, key []byte, value []byte) error {
	ev, err := kafka.DecodeJSON[DocumentEvent](value)
	if err != nil {
		l.logger.Error("failed to decode document event", "key", string(key), "error", err)
		return nil
	}
	kept, err := l.Load(ctx, ev)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidInput) {
			l.logger.Warn("document rejected", "key", string(key), "error", err)
			return nil
		}
		return err
	}
	if kept {
		l.logger.Debug("document indexed", "url", ev.URL, "index", ev.Index)
	}
	return nil
}

// LoadFile loads a JSON-lines seed file and returns how many documents were
// kept.
func (l *Loader) LoadFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	kept, line := 0, 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		ev, err := kafka.DecodeJSON[DocumentEvent](sc.Bytes())
		if err != nil {
			return kept, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		ok, err := l.Load(ctx, ev)
		if err != nil {
			return kept, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if ok {
			kept++
		}
	}
	if err := sc.Err(); err != nil {
		return kept, fmt.Errorf("reading seed file: %w", err)
	}
	l.logger.Info("seed file loaded", "path", path, "documents", kept, "lines", line)
	return kept, nil
}
