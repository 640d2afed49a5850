// Package filter holds the result-filter overlay: operator edits applied on
// top of search results (deleted URLs, replaced summaries, pinned results
// per query phrase) and the time of the last edit.
package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
)

// Event types.
const (
	EventDelete   = "delete"
	EventRestore  = "restore"
	EventEdit     = "edit"
	EventPin      = "pin"
	EventUnpin    = "unpin"
	EventClearAll = "clear"
)

// Event is one operator edit as published on the filter-edits topic.
type Event struct {
	Type    string          `json:"type"`
	URL     string          `json:"url,omitempty"`
	Summary *models.Summary `json:"summary,omitempty"`
	Phrase  string          `json:"phrase,omitempty"`
	Locale  string          `json:"locale,omitempty"`
	URLs    []string        `json:"urls,omitempty"`
	// Time is when the edit was made, in unix milliseconds. Zero means now.
	Time int64 `json:"time,omitempty"`
}

type Overlay struct {
	mu       sync.RWMutex
	deleted  map[string]struct{}
	edited   map[string]models.Summary
	pinned   map[string][]string
	lastEdit int64
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(m *metrics.Metrics) *Overlay {
	return &Overlay{
		deleted: make(map[string]struct{}),
		edited:  make(map[string]models.Summary),
		pinned:  make(map[string][]string),
		now:     time.Now,
		metrics: m,
		logger:  slog.Default().With("component", "filter"),
	}
}

// LastEditTimestamp is the time of the newest applied edit in unix
// milliseconds, or zero before any edit.
func (o *Overlay) LastEditTimestamp() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastEdit
}

// QueryMap returns the URLs pinned on top of results for phrase in locale.
func (o *Overlay) QueryMap(phrase, locale string) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	pinned := o.pinned[pinKey(phrase, locale)]
	if len(pinned) == 0 {
		return nil
	}
	return append([]string(nil), pinned...)
}

// Apply drops deleted URLs from rows and substitutes edited summaries. The
// input slice is not modified.
func (o *Overlay) Apply(rows []models.Result) []models.Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.Result, 0, len(rows))
	for _, r := range rows {
		if _, gone := o.deleted[r.Summary.URL]; gone {
			continue
		}
		if s, ok := o.edited[r.Summary.URL]; ok {
			r.Summary = mergeEdit(r.Summary, s)
		}
		out = append(out, r)
	}
	return out
}

func mergeEdit(base, edit models.Summary) models.Summary {
	if edit.Title != "" {
		base.Title = edit.Title
	}
	if edit.Description != "" {
		base.Description = edit.Description
	}
	if len(edit.RobotMetas) > 0 {
		base.RobotMetas = edit.RobotMetas
	}
	return base
}

// ApplyEvent folds one edit into the overlay.
func (o *Overlay) ApplyEvent(e Event) error {
	ts := e.Time
	if ts == 0 {
		ts = o.now().UnixMilli()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch e.Type {
	case EventDelete:
		if e.URL == "" {
			return apperrors.New(apperrors.ErrInvalidInput, "filter.delete", "url is required")
		}
		o.deleted[e.URL] = struct{}{}
	case EventRestore:
		delete(o.deleted, e.URL)
		delete(o.edited, e.URL)
	case EventEdit:
		if e.URL == "" || e.Summary == nil {
			return apperrors.New(apperrors.ErrInvalidInput, "filter.edit", "url and summary are required")
		}
		o.edited[e.URL] = *e.Summary
	case EventPin:
		if strings.TrimSpace(e.Phrase) == "" || len(e.URLs) == 0 {
			return apperrors.New(apperrors.ErrInvalidInput, "filter.pin", "phrase and urls are required")
		}
		o.pinned[pinKey(e.Phrase, e.Locale)] = append([]string(nil), e.URLs...)
	case EventUnpin:
		delete(o.pinned, pinKey(e.Phrase, e.Locale))
	case EventClearAll:
		o.deleted = make(map[string]struct{})
		o.edited = make(map[string]models.Summary)
		o.pinned = make(map[string][]string)
	default:
		return apperrors.Newf(apperrors.ErrInvalidInput, "filter.apply", "unknown event type %q", e.Type)
	}
	if ts > o.lastEdit {
		o.lastEdit = ts
	}
	o.metrics.FilterEvent(e.Type)
	o.logger.Info("filter edit applied", "type", e.Type, "url", e.URL, "phrase", e.Phrase, "time", ts)
	return nil
}

// Handle decodes a filter-edits message and applies it. Its signature
// matches kafka.MessageHandler.
func (o *Overlay) Handle(_ context.Context, _ []byte, value []byte) error {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return fmt.Errorf("decoding filter event: %w", err)
	}
	return o.ApplyEvent(e)
}

func pinKey(phrase, locale string) string {
	return strings.ToLower(strings.Join(strings.Fields(phrase), " ")) + "|" + tokenizer.PrimarySubtag(locale)
}
