package engine

import (
	"context"
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/iterator"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/summary"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/proto"
)

type compiledPart struct {
	models.PresentationPart
	structs []models.WordStruct
	words   []string
}

func structsOf(parts []compiledPart) [][]models.WordStruct {
	out := make([][]models.WordStruct, len(parts))
	for i, p := range parts {
		out[i] = p.structs
	}
	return out
}

// execute computes the page of req. Parts wholly before the window are not
// run and count as full; parts after it are not run at all.
func (e *Engine) execute(ctx context.Context, req Request, parts []compiledPart, words []string) (*cache.Entry, error) {
	entry := &cache.Entry{}
	var window []models.CandidateDoc
	for seg, part := range parts {
		lo, hi, ok := part.Window(req.Limit, req.Num)
		if !ok {
			if part.End() <= req.Limit {
				entry.TotalRows += part.Bound
				continue
			}
			break
		}
		cands, found, err := e.runPart(ctx, req, seg, part, lo, hi)
		if err != nil {
			return nil, err
		}
		entry.TotalRows += found
		window = append(window, cands...)
	}

	open, err := e.hasOpenCrawl(ctx, window)
	if err != nil {
		return nil, err
	}
	entry.HasOpenCrawl = open

	rows, err := e.assembler.Assemble(ctx, window, summary.Options{
		Raw:               req.Raw,
		GroupOnlyWithDocs: req.GroupOnlyWithDocs,
		WantQA:            req.WantQA,
		HighlightTerms:    words,
		MaxDescriptionLen: e.cfg.MaxDescriptionLen,
	})
	if err != nil {
		return nil, unavailable("engine.summary", err)
	}
	entry.Rows = rows
	return entry, nil
}

// runPart returns the candidates of part inside the part-local window
// [lo, hi) and how many rows the part is known to hold.
func (e *Engine) runPart(ctx context.Context, req Request, seg int, part compiledPart, lo, hi int) ([]models.CandidateDoc, int, error) {
	opts := planner.Options{
		Raw:           req.Raw,
		ToRetrieve:    e.toRetrieve(hi),
		Machines:      e.cfg.Machines,
		SaveTimestamp: req.SaveTimestamp,
		Segment:       seg,
		DefaultIndex:  req.Index,
	}
	end := e.stage(ctx, "plan")
	root, restored, err := e.planner.PlanResumable(ctx, part.structs, opts)
	end()
	if err != nil {
		return nil, 0, unavailable("engine.plan", err)
	}
	if root == nil {
		return nil, 0, nil
	}

	if req.SaveTimestamp != 0 {
		return e.resume(ctx, root, restored, opts, lo, hi)
	}

	end = e.stage(ctx, "retrieve")
	batch, err := iterator.NextBatch(ctx, root, opts.ToRetrieve)
	end()
	if err != nil && !errors.Is(err, iterator.ErrExhausted) {
		return nil, 0, unavailable("engine.retrieve", err)
	}
	cands := docsOf(batch)
	if !req.Raw && !e.distributed() {
		end = e.stage(ctx, "rank")
		cands = ranker.Fuse(cands, ranker.Options{UseProximity: useProximity(part.structs, part.words)})
		end()
	}
	found := min(len(cands), part.Bound)
	return cands[min(lo, len(cands)):min(hi, len(cands))], found, nil
}

// resume continues a resumable run from its save point and stores the new
// one. Without a stored save point the rows before the window are read and
// discarded. Iteration order is kept as is: rank fusion never runs here, so
// consecutive resumed pages match one longer run only when that run is raw.
func (e *Engine) resume(ctx context.Context, root iterator.Iterator, restored bool, opts planner.Options, lo, hi int) ([]models.CandidateDoc, int, error) {
	var last *iterator.Posting
	exhausted := false
	if !restored && lo > 0 {
		skipped, err := iterator.NextBatch(ctx, root, lo)
		if err != nil && !errors.Is(err, iterator.ErrExhausted) {
			return nil, 0, unavailable("engine.retrieve", err)
		}
		exhausted = err != nil
		if len(skipped) > 0 {
			last = skipped[len(skipped)-1]
		}
	}
	var batch []*iterator.Posting
	if !exhausted {
		var err error
		batch, err = iterator.NextBatch(ctx, root, hi-lo)
		if err != nil && !errors.Is(err, iterator.ErrExhausted) {
			return nil, 0, unavailable("engine.retrieve", err)
		}
		if len(batch) > 0 {
			last = batch[len(batch)-1]
		}
	}
	if err := e.planner.Checkpoint(ctx, root, last, opts); err != nil {
		return nil, 0, unavailable("engine.checkpoint", err)
	}
	logger.FromContext(ctx).Debug("resumable part advanced",
		"segment", opts.Segment,
		"restored", restored,
		"rows", len(batch),
	)
	return docsOf(batch), lo + len(batch), nil
}

func (e *Engine) hasOpenCrawl(ctx context.Context, cands []models.CandidateDoc) (bool, error) {
	if e.mixes == nil {
		return false, nil
	}
	seen := make(map[string]struct{})
	for _, c := range cands {
		if _, ok := seen[c.Index]; ok {
			continue
		}
		seen[c.Index] = struct{}{}
		open, err := e.mixes.OpenCrawl(ctx, c.Index)
		if err != nil {
			return false, unavailable("engine.crawl_status", err)
		}
		if open {
			return true, nil
		}
	}
	return false, nil
}

// toRetrieve is how many candidates a part reads to rank a window ending at
// hi.
func (e *Engine) toRetrieve(hi int) int {
	n := max(hi, e.cfg.MinResultsToFetch)
	if e.cfg.MaxResultsToFetch > 0 {
		n = min(n, max(e.cfg.MaxResultsToFetch, hi))
	}
	return n
}

// ExecuteLocal runs one part against this machine's index on behalf of a
// peer. Candidates come back fused unless the request is raw.
func (e *Engine) ExecuteLocal(ctx context.Context, req *proto.QueryRequest) (*proto.QueryResponse, error) {
	start := time.Now()
	if req.RequestID != "" {
		ctx = logger.WithRequestID(ctx, req.RequestID)
	}
	count := req.Count
	if count <= 0 {
		count = e.cfg.DefaultNum
	}
	resp := &proto.QueryResponse{MachineID: e.cfg.MachineID, Docs: []models.CandidateDoc{}}

	root, _, err := e.planner.PlanResumable(ctx, req.Structs, planner.Options{
		Raw:          req.Raw,
		ToRetrieve:   count,
		Machines:     1,
		DefaultIndex: e.cfg.DefaultIndex,
	})
	if err != nil {
		return nil, unavailable("engine.plan", err)
	}
	if root == nil {
		resp.Exhausted = true
		return resp, nil
	}
	batch, err := iterator.NextBatch(ctx, root, count)
	if err != nil && !errors.Is(err, iterator.ErrExhausted) {
		return nil, unavailable("engine.retrieve", err)
	}
	docs := docsOf(batch)
	if !req.Raw {
		docs = ranker.Fuse(docs, ranker.Options{UseProximity: useProximity(req.Structs, nil)})
	}
	for i := range docs {
		docs[i].MachineID = e.cfg.MachineID
	}
	resp.Docs = docs
	resp.Exhausted = err != nil || len(docs) < count
	resp.LatencyMs = time.Since(start).Milliseconds()
	logger.FromContext(ctx).Debug("peer query executed",
		"structs", len(req.Structs),
		"docs", len(docs),
		"exhausted", resp.Exhausted,
	)
	return resp, nil
}

// useProximity reports whether more than one term or disjunct contributed.
// Peers only see the structs, so for them a quoted span also counts.
func useProximity(structs []models.WordStruct, words []string) bool {
	if len(structs) > 1 || len(words) > 1 {
		return true
	}
	if words == nil {
		for _, ws := range structs {
			if len(ws.QuotePositions) > 0 {
				return true
			}
		}
	}
	return false
}

func docsOf(batch []*iterator.Posting) []models.CandidateDoc {
	out := make([]models.CandidateDoc, 0, len(batch))
	for _, p := range batch {
		if p.Synthetic {
			continue
		}
		out = append(out, p.Doc)
	}
	return out
}
