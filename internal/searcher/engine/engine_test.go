package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/crawlmix"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/filter"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/network"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/savepoint"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/summary"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/proto"
)

var englishSafe = tokenizer.DocMeta{Lang: "en", Safe: true}

func urlOf(k models.Key) string {
	return fmt.Sprintf("https://example.com/%d", uint64(k))
}

// docStore knows every key it is asked about; failing makes Resolve fail.
type docStore struct {
	failing bool
	pinned  map[string]models.Summary
}

func (d *docStore) Resolve(_ context.Context, docs []models.CandidateDoc, _ models.Projection) ([]models.Summary, error) {
	if d.failing {
		return nil, errors.New("store offline")
	}
	out := make([]models.Summary, len(docs))
	for i, doc := range docs {
		out[i] = models.Summary{
			URL:         urlOf(doc.Key),
			Title:       fmt.Sprintf("Doc %d", uint64(doc.Key)),
			Description: fmt.Sprintf("page %d about cat", uint64(doc.Key)),
			Hash:        fmt.Sprintf("h%d", uint64(doc.Key)),
			IsDoc:       true,
		}
	}
	return out, nil
}

func (d *docStore) ResolveURLs(_ context.Context, refs []models.URLRef, _ models.Projection) ([]models.Summary, error) {
	out := make([]models.Summary, len(refs))
	for i, r := range refs {
		out[i] = d.pinned[r.URL]
	}
	return out, nil
}

type recorder struct{ events []analytics.QueryEvent }

func (r *recorder) Track(e analytics.QueryEvent) { r.events = append(r.events, e) }

type fixture struct {
	idx     *index.MemoryIndex
	store   *docStore
	overlay *filter.Overlay
	mixes   *crawlmix.Static
	tracker *recorder
	planner *planner.Planner
}

func newFixture() *fixture {
	return &fixture{
		idx:     index.NewMemoryIndex(0),
		store:   &docStore{pinned: map[string]models.Summary{}},
		overlay: filter.New(nil),
		mixes:   crawlmix.NewStatic(),
		tracker: &recorder{},
	}
}

func (f *fixture) add(indexName string, key models.Key, text string, docRank float64) {
	f.idx.AddDocument(indexName, index.Document{Key: key, Text: text, Meta: englishSafe, DocRank: docRank})
}

func (f *fixture) engine(cfg Config, plannerOpts ...planner.Option) *Engine {
	shared := cache.NewMemoryStore()
	ext := tokenizer.NewExtractor("en-US")
	clock := func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	plannerOpts = append(plannerOpts, planner.WithSavePoints(savepoint.New(shared, time.Hour, nil)))
	f.planner = planner.New(f.idx, plannerOpts...)
	if cfg.DefaultIndex == "" {
		cfg.DefaultIndex = "main"
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en-US"
	}
	if cfg.MaxNum == 0 {
		cfg.MaxNum = 50
	}
	if cfg.MinResultsToFetch == 0 {
		cfg.MinResultsToFetch = 100
	}
	return New(cfg,
		parser.NewRewriter(ext, cfg.DefaultLocale, parser.WithClock(clock)),
		compiler.New(ext, cache.NewParseCache(shared, time.Hour, nil), cfg.DefaultLocale),
		f.planner,
		summary.New(f.store, nil, 0, nil),
		WithResultCache(cache.New(cache.NewMemoryStore(), cache.Config{MaxTTL: time.Hour, MinTTL: time.Minute}, f.overlay, nil)),
		WithOverlay(f.overlay),
		WithMixes(f.mixes),
		WithPinnedResolver(f.store),
		WithTracker(f.tracker),
	)
}

func keysOf(rows []models.Result) []models.Key {
	out := make([]models.Key, len(rows))
	for i, r := range rows {
		out[i] = r.Doc.Key
	}
	return out
}

func TestSearchRankFusionExample(t *testing.T) {
	f := newFixture()
	f.add("main", 1, "cat cat cat", 1)
	f.add("main", 2, "cat cat dog", 2)
	f.add("main", 3, "cat dog dog", 3)
	f.add("main", 4, "dog bird fish", 0)
	f.add("main", 5, "bird fish fish", 0)
	e := f.engine(Config{})

	res, err := e.Search(context.Background(), Request{Query: "cat", Num: 10})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []models.Key{1, 3, 2}, keysOf(res.Rows))

	const alpha = 300.0
	assert.InDelta(t, alpha/62+alpha/60, res.Rows[0].Doc.OutScore, 1e-9)
	assert.InDelta(t, alpha/61+alpha/61, res.Rows[2].Doc.OutScore, 1e-9)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, []string{"cat"}, res.FormatWords)
	assert.Contains(t, res.Rows[0].Snippet, "<b>")
}

func redBlueGreen(f *fixture) {
	for i := 1; i <= 12; i++ {
		f.add("main", models.Key(i), fmt.Sprintf("red item number %d", i), float64(i))
	}
	f.add("main", 20, "blue sky", 1)
	f.add("main", 21, "blue sea", 2)
	f.add("main", 22, "blue moon", 3)
	f.add("main", 30, "green grass", 1)
	f.add("news", 40, "red headline", 1)
	f.add("news", 41, "red alert", 2)
}

func TestSearchPresentationPartition(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	e := f.engine(Config{})

	res, err := e.Search(context.Background(), Request{Query: "red #3# blue #2# green", Num: 5})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	assert.Equal(t, 3, res.Parts)
	assert.Equal(t, 5, res.TotalRows)
	for _, r := range res.Rows[:3] {
		assert.Less(t, uint64(r.Doc.Key), uint64(20), "first three rows come from the red part")
	}
	for _, r := range res.Rows[3:] {
		assert.GreaterOrEqual(t, uint64(r.Doc.Key), uint64(20))
		assert.Less(t, uint64(r.Doc.Key), uint64(30), "last two rows come from the blue part")
	}
}

func TestSearchResumableMatchesSingleRun(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	e := f.engine(Config{})
	ctx := context.Background()

	whole, err := e.Search(ctx, Request{Query: "red", Num: 10, Raw: true})
	require.NoError(t, err)
	require.Len(t, whole.Rows, 10)

	const base = 1717243200000
	first, err := e.Search(ctx, Request{Query: "red", Num: 5, Raw: true, SaveTimestamp: base})
	require.NoError(t, err)
	second, err := e.Search(ctx, Request{Query: "red", Limit: 5, Num: 5, Raw: true, SaveTimestamp: base})
	require.NoError(t, err)

	got := append(keysOf(first.Rows), keysOf(second.Rows)...)
	assert.Equal(t, keysOf(whole.Rows), got)
	assert.Equal(t, CacheBypass, first.CacheStatus)
}

func TestSearchResumableWithoutSavePointSkipsWindow(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	e := f.engine(Config{})
	ctx := context.Background()

	whole, err := e.Search(ctx, Request{Query: "red", Num: 10, Raw: true})
	require.NoError(t, err)
	page, err := e.Search(ctx, Request{Query: "red", Limit: 5, Num: 5, Raw: true, SaveTimestamp: 99})
	require.NoError(t, err)
	assert.Equal(t, keysOf(whole.Rows[5:]), keysOf(page.Rows))
}

func TestSearchCacheHitKeepsOrder(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	e := f.engine(Config{})
	ctx := context.Background()

	miss, err := e.Search(ctx, Request{Query: "red", Num: 8})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, miss.CacheStatus)
	hit, err := e.Search(ctx, Request{Query: "red", Num: 8})
	require.NoError(t, err)
	assert.Equal(t, CacheHit, hit.CacheStatus)
	assert.Equal(t, keysOf(miss.Rows), keysOf(hit.Rows))
	assert.Equal(t, miss.TotalRows, hit.TotalRows)
}

func TestSearchFilterEditInvalidatesAndApplies(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	e := f.engine(Config{})
	ctx := context.Background()

	before, err := e.Search(ctx, Request{Query: "blue", Num: 10})
	require.NoError(t, err)
	require.Len(t, before.Rows, 3)

	require.NoError(t, f.overlay.ApplyEvent(filter.Event{Type: filter.EventDelete, URL: urlOf(21), Time: time.Now().Add(time.Minute).UnixMilli()}))
	after, err := e.Search(ctx, Request{Query: "blue", Num: 10})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, after.CacheStatus)
	assert.NotContains(t, keysOf(after.Rows), models.Key(21))
	assert.Len(t, after.Rows, 2)
}

func TestSearchPinnedResultsOnFirstPage(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	f.store.pinned["https://pinned.example/"] = models.Summary{URL: "https://pinned.example/", Title: "Pinned", Description: "the pinned page"}
	require.NoError(t, f.overlay.ApplyEvent(filter.Event{
		Type:   filter.EventPin,
		Phrase: "Blue",
		Locale: "en-GB",
		URLs:   []string{"https://pinned.example/", urlOf(22)},
	}))
	e := f.engine(Config{})

	res, err := e.Search(context.Background(), Request{Query: "blue", Num: 3})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.True(t, res.Rows[0].Pinned)
	assert.Equal(t, "Pinned", res.Rows[0].Summary.Title)
	assert.True(t, res.Rows[1].Pinned)
	assert.Equal(t, urlOf(22), res.Rows[1].Summary.URL)
	assert.False(t, res.Rows[2].Pinned)
	assert.NotEqual(t, urlOf(22), res.Rows[2].Summary.URL)

	next, err := e.Search(context.Background(), Request{Query: "blue", Limit: 3, Num: 3})
	require.NoError(t, err)
	for _, r := range next.Rows {
		assert.False(t, r.Pinned)
	}
}

func TestSearchNegationOnly(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	e := f.engine(Config{})

	res, err := e.Search(context.Background(), Request{Query: "-red", Num: 20})
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Key{20, 21, 22, 30}, keysOf(res.Rows))
}

func TestSearchNoUsableTerms(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	e := f.engine(Config{})

	res, err := e.Search(context.Background(), Request{Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Zero(t, res.TotalRows)
	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, analytics.EventZeroResult, f.tracker.events[0].Type)
}

func TestSearchCollaboratorFailure(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	f.store.failing = true
	e := f.engine(Config{})

	res, err := e.Search(context.Background(), Request{Query: "red", Num: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCollaboratorUnavailable))
	require.NotNil(t, res)
	assert.Empty(t, res.Rows)
	assert.Zero(t, res.TotalRows)
	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, analytics.EventFailed, f.tracker.events[0].Type)
	assert.NotEmpty(t, f.tracker.events[0].Error)
}

func TestSearchRejectsBadInput(t *testing.T) {
	f := newFixture()
	e := f.engine(Config{MaxQueryLength: 8})

	_, err := e.Search(context.Background(), Request{Query: "much too long a query"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	_, err = e.Search(context.Background(), Request{Query: "red", Limit: -1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSearchCrawlMix(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	f.mixes = crawlmix.NewStatic(models.Mix{
		Name: "both",
		Fragments: []models.MixFragment{
			{ResultBound: 2, Components: []models.MixComponent{{Index: "news", Weight: 1}}},
			{ResultBound: 3, Components: []models.MixComponent{{Index: "main", Weight: 1}}},
		},
	})
	e := f.engine(Config{})

	res, err := e.Search(context.Background(), Request{Query: "red mix:both", Num: 5})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	assert.Equal(t, 2, res.Parts)
	assert.ElementsMatch(t, []models.Key{40, 41}, keysOf(res.Rows[:2]))
	for _, r := range res.Rows[2:] {
		assert.Equal(t, "main", r.Doc.Index)
	}
}

func TestSearchOpenCrawlMarksEntry(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	require.NoError(t, f.mixes.SetCrawlOpen(context.Background(), "main", true))
	e := f.engine(Config{})

	entry, err := e.execute(context.Background(), Request{Query: "red", Index: "main", Num: 3},
		[]compiledPart{{
			PresentationPart: models.PresentationPart{Text: "red", Bound: 3},
			structs:          []models.WordStruct{{Keys: []models.Key{tokenizer.HashWord("red")}, Weight: 1, IndexName: "main"}},
		}}, nil)
	require.NoError(t, err)
	assert.True(t, entry.HasOpenCrawl)
	assert.Len(t, entry.Rows, 3)
}

type peerTransport struct {
	peers []*Engine
}

func (p *peerTransport) Peers() int { return len(p.peers) }

func (p *peerTransport) Broadcast(ctx context.Context, method string, params any, newResult func(i int) any) error {
	req := params.(*proto.QueryRequest)
	for i, peer := range p.peers {
		resp, err := peer.ExecuteLocal(ctx, req)
		if err != nil {
			return err
		}
		*newResult(i).(*proto.QueryResponse) = *resp
	}
	return nil
}

func TestSearchDistributed(t *testing.T) {
	left, right := newFixture(), newFixture()
	left.idx = index.NewMemoryIndex(0)
	right.idx = index.NewMemoryIndex(1)
	left.add("main", 1, "red one", 5)
	left.add("main", 2, "red two", 1)
	right.add("main", 3, "red three", 3)
	right.add("main", 4, "blue four", 9)

	transport := &peerTransport{peers: []*Engine{
		left.engine(Config{MachineID: 0}),
		right.engine(Config{MachineID: 1}),
	}}
	front := newFixture()
	e := front.engine(Config{Machines: 2}, planner.WithFanout(network.New(transport)))

	res, err := e.Search(context.Background(), Request{Query: "red", Num: 10})
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Key{1, 2, 3}, keysOf(res.Rows))
	assert.Equal(t, models.Key(1), res.Rows[0].Doc.Key)
	assert.True(t, front.tracker.events[0].Distributed)
}

func TestExecuteLocal(t *testing.T) {
	f := newFixture()
	redBlueGreen(f)
	e := f.engine(Config{MachineID: 3})

	resp, err := e.ExecuteLocal(context.Background(), &proto.QueryRequest{
		Structs: []models.WordStruct{{Keys: []models.Key{tokenizer.HashWord("blue")}, Weight: 1, IndexName: "main"}},
		Count:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.MachineID)
	require.Len(t, resp.Docs, 2)
	assert.False(t, resp.Exhausted)
	assert.Equal(t, 3, resp.Docs[0].MachineID)
	assert.Greater(t, resp.Docs[0].OutScore, 0.0)

	resp, err = e.ExecuteLocal(context.Background(), &proto.QueryRequest{Count: 2})
	require.NoError(t, err)
	assert.True(t, resp.Exhausted)
	assert.Empty(t, resp.Docs)
}

func TestToRetrieve(t *testing.T) {
	e := &Engine{cfg: Config{MinResultsToFetch: 200, MaxResultsToFetch: 2000}}
	assert.Equal(t, 200, e.toRetrieve(10))
	assert.Equal(t, 500, e.toRetrieve(500))
	assert.Equal(t, 2500, e.toRetrieve(2500))
}

func TestUseProximity(t *testing.T) {
	one := models.WordStruct{Keys: []models.Key{1}}
	quoted := models.WordStruct{Keys: []models.Key{1, 2}, QuotePositions: map[int]models.QuoteSpan{0: {Len: 2}}}
	assert.False(t, useProximity([]models.WordStruct{one}, []string{"cat"}))
	assert.True(t, useProximity([]models.WordStruct{one}, []string{"new", "york"}))
	assert.True(t, useProximity([]models.WordStruct{one, one}, nil))
	assert.True(t, useProximity([]models.WordStruct{quoted}, nil))
	assert.False(t, useProximity([]models.WordStruct{one}, nil))
}
