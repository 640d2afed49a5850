// Package summary turns ranked candidates into result rows: it resolves
// document records in batches, follows redirects, drops unindexable and
// duplicate records, and renders snippets.
package summary

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
)

// DocStore resolves document records. Resolve returns one summary per
// candidate in order, with a zero Summary for records it does not hold.
type DocStore interface {
	Resolve(ctx context.Context, docs []models.CandidateDoc, p models.Projection) ([]models.Summary, error)
	ResolveURLs(ctx context.Context, refs []models.URLRef, p models.Projection) ([]models.Summary, error)
}

// Formatter renders the snippet of one row.
type Formatter interface {
	Snippet(text string, terms []string, maxLen int) string
}

type Options struct {
	Raw               bool
	GroupOnlyWithDocs bool
	WantQA            bool
	WantFull          bool
	HighlightTerms    []string
	MaxDescriptionLen int
}

type Assembler struct {
	store     DocStore
	formatter Formatter
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New returns an Assembler resolving batchSize candidates per store call.
// A nil formatter selects Highlighter.
func New(store DocStore, formatter Formatter, batchSize int, m *metrics.Metrics) *Assembler {
	if formatter == nil {
		formatter = Highlighter{}
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Assembler{
		store:     store,
		formatter: formatter,
		batchSize: batchSize,
		metrics:   m,
		logger:    slog.Default().With("component", "summary"),
	}
}

// Assemble resolves cands and returns the surviving rows in candidate order.
// A store failure fails the whole call.
func (a *Assembler) Assemble(ctx context.Context, cands []models.CandidateDoc, opts Options) ([]models.Result, error) {
	start := time.Now()
	defer func() { a.metrics.ObserveStage("summary", time.Since(start)) }()

	proj := models.Projection{Full: opts.WantFull, QA: opts.WantQA}
	rows := make([]models.Result, 0, len(cands))
	seenHash := make(map[string]struct{}, len(cands))
	dropped := 0

	for lo := 0; lo < len(cands); lo += a.batchSize {
		batch := cands[lo:min(lo+a.batchSize, len(cands))]
		sums, err := a.store.Resolve(ctx, batch, proj)
		if err != nil {
			return nil, apperrors.Unavailable("summary.resolve", err)
		}
		if err := a.followRedirects(ctx, batch, sums, proj); err != nil {
			return nil, err
		}
		for i, s := range sums {
			if keep := a.admit(s, opts, seenHash); !keep {
				dropped++
				continue
			}
			rows = append(rows, models.Result{Doc: batch[i], Summary: s})
		}
	}

	if !opts.Raw {
		rows = dropDuplicateDescriptions(rows)
	}
	for i := range rows {
		rows[i].Snippet = a.formatter.Snippet(rows[i].Summary.Description, opts.HighlightTerms, opts.MaxDescriptionLen)
	}
	a.logger.Debug("summaries assembled",
		"candidates", len(cands),
		"rows", len(rows),
		"dropped", dropped,
	)
	return rows, nil
}

// followRedirects replaces redirect placeholders in sums with their targets.
// Targets the store cannot resolve stay as link-only summaries pointing at
// the target URL.
func (a *Assembler) followRedirects(ctx context.Context, batch []models.CandidateDoc, sums []models.Summary, proj models.Projection) error {
	var (
		idx  []int
		refs []models.URLRef
	)
	for i, s := range sums {
		if s.IsRedirect() {
			idx = append(idx, i)
			refs = append(refs, models.URLRef{URL: s.Location, CrawlTime: batch[i].CrawlTime})
		}
	}
	if len(refs) == 0 {
		return nil
	}
	targets, err := a.store.ResolveURLs(ctx, refs, proj)
	if err != nil {
		return apperrors.Unavailable("summary.resolve_urls", err)
	}
	for j, i := range idx {
		if j < len(targets) && targets[j].URL != "" && !targets[j].IsRedirect() {
			sums[i] = targets[j]
			continue
		}
		sums[i] = models.Summary{URL: refs[j].URL, Location: refs[j].URL}
	}
	return nil
}

func (a *Assembler) admit(s models.Summary, opts Options, seenHash map[string]struct{}) bool {
	if s.URL == "" && s.Hash == "" {
		return false
	}
	if unindexable(s.RobotMetas) {
		return false
	}
	if opts.GroupOnlyWithDocs && !(s.IsDoc && s.Location == "") {
		return false
	}
	if opts.Raw {
		return true
	}
	sig := s.Hash
	if sig == "" {
		sig = "url:" + s.URL
	}
	if _, dup := seenHash[sig]; dup {
		return false
	}
	seenHash[sig] = struct{}{}
	return true
}

func unindexable(metas []string) bool {
	for _, m := range metas {
		for _, v := range strings.FieldsFunc(m, func(r rune) bool { return r == ',' || r == ' ' }) {
			switch strings.ToUpper(v) {
			case "NOINDEX", "NONE":
				return true
			}
		}
	}
	return false
}

func dropDuplicateDescriptions(rows []models.Result) []models.Result {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		d := r.Summary.Description
		if d != "" {
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
