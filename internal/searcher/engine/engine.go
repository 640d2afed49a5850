// Package engine runs a query through the whole pipeline: rewrite, crawl-mix
// expansion, presentation parts, compilation, planning, retrieval, rank
// fusion, result caching and summary assembly, with the result-filter
// overlay applied on top.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/iterator"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/summary"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/tracing"
)

// Cache statuses reported on results and in analytics.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

type Rewriter interface {
	Rewrite(query string, session models.Session) string
}

type Compiler interface {
	Compile(ctx context.Context, part, indexName string, bypassCache bool) ([]models.WordStruct, []string, error)
}

// Planner is satisfied by *planner.Planner.
type Planner interface {
	PlanResumable(ctx context.Context, structs []models.WordStruct, opts planner.Options) (iterator.Iterator, bool, error)
	Checkpoint(ctx context.Context, root iterator.Iterator, last *iterator.Posting, opts planner.Options) error
}

type Assembler interface {
	Assemble(ctx context.Context, cands []models.CandidateDoc, opts summary.Options) ([]models.Result, error)
}

// Overlay is the result-filter overlay applied to every page.
type Overlay interface {
	QueryMap(phrase, locale string) []string
	Apply(rows []models.Result) []models.Result
}

// Mixes supplies crawl-mix definitions and whether an index's crawl is still
// open.
type Mixes interface {
	Mix(ctx context.Context, name string) (models.Mix, bool, error)
	OpenCrawl(ctx context.Context, index string) (bool, error)
}

// URLResolver resolves the summaries of pinned URLs.
type URLResolver interface {
	ResolveURLs(ctx context.Context, refs []models.URLRef, p models.Projection) ([]models.Summary, error)
}

type Config struct {
	MachineID int
	// Machines is the number of machines holding the index.
	Machines          int
	DefaultIndex      string
	DefaultLocale     string
	DefaultNum        int
	MaxNum            int
	MinResultsToFetch int
	MaxResultsToFetch int
	MaxDescriptionLen int
	MaxQueryLength    int
	// LogSpans writes every finished request's span tree to the log.
	LogSpans bool
}

// Request is one search call. Limit is the first global row wanted and Num
// the page size. A non-zero SaveTimestamp makes the run resumable under
// that key.
type Request struct {
	Query             string         `json:"query"`
	Index             string         `json:"index,omitempty"`
	Limit             int            `json:"limit"`
	Num               int            `json:"num"`
	Raw               bool           `json:"raw,omitempty"`
	GroupOnlyWithDocs bool           `json:"group_only_with_docs,omitempty"`
	WantQA            bool           `json:"want_qa,omitempty"`
	Mix               string         `json:"mix,omitempty"`
	Session           models.Session `json:"session"`
	SaveTimestamp     int64          `json:"save_timestamp,omitempty"`
}

type SearchResult struct {
	Query       string          `json:"query"`
	Rewritten   string          `json:"rewritten"`
	Rows        []models.Result `json:"rows"`
	TotalRows   int             `json:"total_rows"`
	FormatWords []string        `json:"format_words"`
	Parts       int             `json:"parts"`
	CacheStatus string          `json:"cache_status"`
}

type Engine struct {
	cfg       Config
	rewriter  Rewriter
	compiler  Compiler
	planner   Planner
	assembler Assembler
	results   *cache.ResultCache
	overlay   Overlay
	mixes     Mixes
	urls      URLResolver
	tracker   analytics.Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Engine)

func WithResultCache(c *cache.ResultCache) Option { return func(e *Engine) { e.results = c } }

func WithOverlay(o Overlay) Option { return func(e *Engine) { e.overlay = o } }

func WithMixes(m Mixes) Option { return func(e *Engine) { e.mixes = m } }

// WithPinnedResolver enables pinned results from the overlay's query map.
func WithPinnedResolver(r URLResolver) Option { return func(e *Engine) { e.urls = r } }

func WithTracker(t analytics.Tracker) Option { return func(e *Engine) { e.tracker = t } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func New(cfg Config, rw Rewriter, comp Compiler, pl Planner, asm Assembler, opts ...Option) *Engine {
	if cfg.Machines <= 0 {
		cfg.Machines = 1
	}
	if cfg.DefaultNum <= 0 {
		cfg.DefaultNum = 10
	}
	if cfg.MaxNum < cfg.DefaultNum {
		cfg.MaxNum = cfg.DefaultNum
	}
	e := &Engine{
		cfg:       cfg,
		rewriter:  rw,
		compiler:  comp,
		planner:   pl,
		assembler: asm,
		logger:    slog.Default().With("component", "search-engine"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Search runs req. When a collaborator fails the returned result is empty
// with TotalRows 0 and the error wraps ErrCollaboratorUnavailable. A query
// without usable terms yields an empty result and no error.
func (e *Engine) Search(ctx context.Context, req Request) (*SearchResult, error) {
	start := time.Now()
	ctx, reqID := logger.EnsureRequestID(ctx)
	ctx, span := tracing.StartSpan(ctx, "search", reqID)
	defer func() {
		span.End()
		if e.cfg.LogSpans {
			span.Log(e.logger)
		}
	}()

	req, err := e.normalize(req)
	if err != nil {
		return &SearchResult{Query: req.Query, Rows: []models.Result{}}, err
	}
	span.SetAttr("query", req.Query)

	res := &SearchResult{Query: req.Query, Rows: []models.Result{}, CacheStatus: CacheBypass}
	if err := e.search(ctx, req, res); err != nil {
		failed := &SearchResult{
			Query:       req.Query,
			Rewritten:   res.Rewritten,
			Rows:        []models.Result{},
			Parts:       res.Parts,
			CacheStatus: res.CacheStatus,
		}
		e.finish(ctx, req, failed, time.Since(start), err)
		return failed, err
	}
	e.finish(ctx, req, res, time.Since(start), nil)
	return res, nil
}

func (e *Engine) normalize(req Request) (Request, error) {
	req.Query = strings.TrimSpace(req.Query)
	if e.cfg.MaxQueryLength > 0 && len(req.Query) > e.cfg.MaxQueryLength {
		return req, apperrors.Newf(apperrors.ErrInvalidInput, "engine.search",
			"query is %d bytes, limit is %d", len(req.Query), e.cfg.MaxQueryLength)
	}
	if req.Limit < 0 {
		return req, apperrors.New(apperrors.ErrInvalidInput, "engine.search", "limit must not be negative")
	}
	if req.Index == "" {
		req.Index = e.cfg.DefaultIndex
	}
	if req.Num <= 0 {
		req.Num = e.cfg.DefaultNum
	}
	req.Num = min(req.Num, e.cfg.MaxNum)
	return req, nil
}

func (e *Engine) search(ctx context.Context, req Request, res *SearchResult) error {
	log := logger.FromContext(ctx)

	end := e.stage(ctx, "rewrite")
	rewritten := e.rewriter.Rewrite(req.Query, req.Session)
	rewritten, err := e.applyMix(ctx, req, rewritten)
	end()
	if err != nil {
		return err
	}
	res.Rewritten = rewritten

	parts := compiler.Parts(rewritten, req.Limit, req.Num)
	res.Parts = len(parts)
	resumable := req.SaveTimestamp != 0

	end = e.stage(ctx, "compile")
	compiled := make([]compiledPart, len(parts))
	usable := false
	for i, part := range parts {
		structs, words, err := e.compiler.Compile(ctx, part.Text, req.Index, e.distributed() || resumable)
		if err != nil {
			end()
			return unavailable("engine.compile", err)
		}
		compiled[i] = compiledPart{PresentationPart: part, structs: structs, words: words}
		res.FormatWords = appendUnique(res.FormatWords, words...)
		usable = usable || len(structs) > 0
	}
	end()
	if !usable {
		log.Debug("query has no usable terms", "query", req.Query, "error", apperrors.ErrNoUsableTerms)
		return nil
	}

	compute := func() (*cache.Entry, error) {
		return e.execute(ctx, req, compiled, res.FormatWords)
	}
	var entry *cache.Entry
	if resumable || e.results == nil {
		entry, err = compute()
	} else {
		key := cache.Key{
			Raw:      req.Raw,
			Structs:  structsOf(compiled),
			Query:    req.Query,
			Index:    req.Index,
			Limit:    req.Limit,
			Num:      req.Num,
			DocsOnly: req.GroupOnlyWithDocs,
			QA:       req.WantQA,
		}
		var hit bool
		entry, hit, err = e.results.GetOrCompute(ctx, key.String(), compute)
		res.CacheStatus = CacheMiss
		if hit {
			res.CacheStatus = CacheHit
		}
	}
	if err != nil {
		return err
	}

	rows := entry.Rows
	if e.overlay != nil {
		rows = e.overlay.Apply(rows)
		if req.Limit == 0 {
			if rows, err = e.pin(ctx, req, rows); err != nil {
				return err
			}
		}
	}
	if rows == nil {
		rows = []models.Result{}
	}
	res.Rows = rows
	res.TotalRows = entry.TotalRows
	return nil
}

func (e *Engine) applyMix(ctx context.Context, req Request, rewritten string) (string, error) {
	name := req.Mix
	if name == "" {
		name, _ = parser.Lex(rewritten).MetaValue("mix")
	}
	if name == "" || e.mixes == nil {
		return rewritten, nil
	}
	mix, ok, err := e.mixes.Mix(ctx, name)
	if err != nil {
		return "", unavailable("engine.mix", err)
	}
	if !ok {
		logger.FromContext(ctx).Debug("unknown crawl mix, querying index directly", "mix", name)
		return rewritten, nil
	}
	return compiler.RewriteForMix(rewritten, mix), nil
}

// pin puts the overlay's pinned URLs for the query on top of the first page.
func (e *Engine) pin(ctx context.Context, req Request, rows []models.Result) ([]models.Result, error) {
	locale := req.Session.Locale
	if locale == "" {
		locale = e.cfg.DefaultLocale
	}
	urls := e.overlay.QueryMap(req.Query, locale)
	if len(urls) == 0 {
		return rows, nil
	}
	sums := make([]models.Summary, len(urls))
	if e.urls != nil {
		refs := make([]models.URLRef, len(urls))
		for i, u := range urls {
			refs[i] = models.URLRef{URL: u}
		}
		resolved, err := e.urls.ResolveURLs(ctx, refs, models.Projection{QA: req.WantQA})
		if err != nil {
			return nil, unavailable("engine.pin", err)
		}
		copy(sums, resolved)
	}

	pinned := make(map[string]struct{}, len(urls))
	out := make([]models.Result, 0, len(rows)+len(urls))
	for i, u := range urls {
		s := sums[i]
		if s.URL == "" {
			s = models.Summary{URL: u}
		}
		pinned[u] = struct{}{}
		out = append(out, models.Result{
			Summary: s,
			Snippet: summary.Truncate(s.Description, e.cfg.MaxDescriptionLen),
			Pinned:  true,
		})
	}
	for _, r := range rows {
		if _, dup := pinned[r.Summary.URL]; !dup {
			out = append(out, r)
		}
	}
	if len(out) > req.Num {
		out = out[:req.Num]
	}
	return out, nil
}

func (e *Engine) finish(ctx context.Context, req Request, res *SearchResult, d time.Duration, err error) {
	log := logger.FromContext(ctx)
	eventType := analytics.EventQuery
	resultType := res.CacheStatus
	switch {
	case err != nil:
		eventType, resultType = analytics.EventFailed, "error"
		log.Error("search failed", "query", req.Query, "error", err)
	case len(res.Rows) == 0:
		eventType, resultType = analytics.EventZeroResult, "zero_result"
	case req.SaveTimestamp != 0:
		resultType = "resumed"
	}
	e.metrics.ObserveQuery(resultType, res.CacheStatus, d, len(res.Rows))

	if err == nil {
		log.Info("search completed",
			"query", req.Query,
			"parts", res.Parts,
			"total_rows", res.TotalRows,
			"returned", len(res.Rows),
			"cache_status", res.CacheStatus,
			"latency_ms", d.Milliseconds(),
		)
	}
	if e.tracker == nil {
		return
	}
	ev := analytics.QueryEvent{
		Type:        eventType,
		Query:       req.Query,
		Rewritten:   res.Rewritten,
		Index:       req.Index,
		Parts:       res.Parts,
		TotalRows:   res.TotalRows,
		Returned:    len(res.Rows),
		LatencyMs:   d.Milliseconds(),
		CacheStatus: res.CacheStatus,
		Resumed:     req.SaveTimestamp != 0,
		Distributed: e.distributed(),
		Timestamp:   time.Now().UTC(),
		RequestID:   logger.RequestID(ctx),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.tracker.Track(ev)
}

// stage opens a child span and returns the func that closes it and records
// the stage latency.
func (e *Engine) stage(ctx context.Context, name string) func() {
	_, span := tracing.StartChildSpan(ctx, name)
	return func() {
		e.metrics.ObserveStage(name, span.End())
	}
}

func (e *Engine) distributed() bool {
	return e.cfg.Machines > 1
}

// unavailable wraps err as a collaborator failure unless it already is one.
func unavailable(op string, err error) error {
	if apperrors.IsUnavailable(err) {
		return err
	}
	return apperrors.Unavailable(op, err)
}

func appendUnique(dst []string, words ...string) []string {
	for _, w := range words {
		dup := false
		for _, d := range dst {
			if d == w {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, w)
		}
	}
	return dst
}
