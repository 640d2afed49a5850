// Package planner maps compiled word structs onto an iterator tree: word and
// listing leaves, negations, intersections, a union across disjuncts and a
// grouping node, or a single network leaf when the index spans machines.
package planner

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
)

type Options struct {
	Raw        bool
	ToRetrieve int
	// Machines is the number of machines holding the index. More than one
	// delegates the whole part to the network.
	Machines int
	// SaveTimestamp makes the run resumable; zero disables save points.
	SaveTimestamp int64
	Segment       int
	DefaultIndex  string
}

// Fanout builds the network leaf that runs structs on every peer.
type Fanout interface {
	Iterator(structs []models.WordStruct, raw bool, toRetrieve int) iterator.Leaf
}

// SavePoints loads and stores save points of resumable runs.
type SavePoints interface {
	Load(ctx context.Context, base int64, segment int) (models.SavePoint, bool, error)
	Save(ctx context.Context, base int64, segment int, sp models.SavePoint) error
}

type Planner struct {
	source     iterator.Source
	fanout     Fanout
	savepoints SavePoints
	adjacency  iterator.AdjacencyPolicy
	groupKey   iterator.GroupKey
	logger     *slog.Logger
}

type Option func(*Planner)

func WithFanout(f Fanout) Option { return func(p *Planner) { p.fanout = f } }

func WithSavePoints(s SavePoints) Option { return func(p *Planner) { p.savepoints = s } }

func WithAdjacency(a iterator.AdjacencyPolicy) Option { return func(p *Planner) { p.adjacency = a } }

func WithGroupKey(k iterator.GroupKey) Option { return func(p *Planner) { p.groupKey = k } }

func New(source iterator.Source, opts ...Option) *Planner {
	p := &Planner{
		source: source,
		logger: slog.Default().With("component", "planner"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan builds the iterator tree for one presentation part. It returns nil
// when no struct has a usable key; callers treat that as zero rows.
func (p *Planner) Plan(ctx context.Context, structs []models.WordStruct, opts Options) (iterator.Iterator, error) {
	root, _, err := p.PlanResumable(ctx, structs, opts)
	return root, err
}

// PlanResumable is Plan that also reports whether a stored save point was
// applied to the tree.
func (p *Planner) PlanResumable(ctx context.Context, structs []models.WordStruct, opts Options) (iterator.Iterator, bool, error) {
	var root iterator.Iterator
	if opts.Machines > 1 && p.fanout != nil {
		if len(structs) == 0 {
			return nil, false, nil
		}
		root = p.fanout.Iterator(structs, opts.Raw, opts.ToRetrieve)
	} else {
		var nodes []iterator.Iterator
		for _, ws := range structs {
			n, err := p.structNode(ctx, ws, opts.DefaultIndex)
			if err != nil {
				return nil, false, err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
		}
		switch len(nodes) {
		case 0:
			return nil, false, nil
		case 1:
			root = nodes[0]
		default:
			root = iterator.NewUnion(nodes)
		}
		if !opts.Raw {
			root = iterator.NewGroup(root, p.groupKey)
		}
	}

	restored := false
	if opts.SaveTimestamp != 0 && p.savepoints != nil {
		var err error
		if restored, err = p.restore(ctx, root, opts); err != nil {
			return nil, false, err
		}
	}
	p.logger.Debug("plan built", "segment", opts.Segment, "restored", restored, "plan", iterator.Describe(root))
	return root, restored, nil
}

func (p *Planner) structNode(ctx context.Context, ws models.WordStruct, defaultIndex string) (iterator.Iterator, error) {
	idx := ws.IndexName
	if idx == "" {
		idx = defaultIndex
	}
	var children []iterator.Iterator
	for _, k := range dedupe(ws.Keys) {
		var (
			leaf iterator.Leaf
			err  error
		)
		if k == tokenizer.AnyKey || k == tokenizer.DocKey {
			leaf, err = p.source.Listing(ctx, idx, ws.Direction)
		} else {
			leaf, err = p.source.Word(ctx, idx, k, ws.Direction)
		}
		if err != nil {
			return nil, apperrors.Unavailable("planner.leaf", err)
		}
		children = append(children, leaf)
	}
	if len(children) == 0 {
		return nil, nil
	}
	negations, err := p.negations(ctx, ws, idx)
	if err != nil {
		return nil, err
	}
	children = append(children, negations...)
	weight := ws.Weight
	if weight == 0 {
		weight = 1
	}
	if len(children) == 1 && weight == 1 && len(ws.QuotePositions) == 0 {
		return children[0], nil
	}
	return iterator.NewIntersect(children, ws.Keys, ws.QuotePositions, weight, p.adjacency), nil
}

// negations builds one negation per disallowed key, and one per disallowed
// phrase over the runs recorded in DisallowSpans.
func (p *Planner) negations(ctx context.Context, ws models.WordStruct, idx string) ([]iterator.Iterator, error) {
	var out []iterator.Iterator
	seen := make(map[models.Key]struct{}, len(ws.DisallowKeys))
	for i := 0; i < len(ws.DisallowKeys); {
		if span, ok := ws.DisallowSpans[i]; ok && span.Len > 1 && i+span.Len <= len(ws.DisallowKeys) {
			keys := ws.DisallowKeys[i : i+span.Len]
			members := make([]iterator.Iterator, 0, len(keys))
			for _, k := range dedupe(keys) {
				leaf, err := p.source.Word(ctx, idx, k, ws.Direction)
				if err != nil {
					return nil, apperrors.Unavailable("planner.leaf", err)
				}
				members = append(members, leaf)
			}
			phrase := iterator.NewIntersect(members, keys, map[int]models.QuoteSpan{0: span}, 1, p.adjacency)
			out = append(out, iterator.NewNegation(phrase))
			i += span.Len
			continue
		}
		k := ws.DisallowKeys[i]
		i++
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		leaf, err := p.source.Word(ctx, idx, k, ws.Direction)
		if err != nil {
			return nil, apperrors.Unavailable("planner.leaf", err)
		}
		out = append(out, iterator.NewNegation(leaf))
	}
	return out, nil
}

func (p *Planner) restore(ctx context.Context, root iterator.Iterator, opts Options) (bool, error) {
	sp, ok, err := p.savepoints.Load(ctx, opts.SaveTimestamp, opts.Segment)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := iterator.Restore(root, sp); err != nil {
		p.logger.Warn("save point does not fit plan, starting fresh",
			"base", opts.SaveTimestamp, "segment", opts.Segment, "error", err)
		return false, nil
	}
	return true, nil
}

// Checkpoint stores where root stands after last was consumed. A nil last
// means nothing was consumed in this run.
func (p *Planner) Checkpoint(ctx context.Context, root iterator.Iterator, last *iterator.Posting, opts Options) error {
	if p.savepoints == nil || opts.SaveTimestamp == 0 || root == nil {
		return nil
	}
	var cursor uint64
	if last != nil {
		cursor = last.Cursor
	}
	sp, err := iterator.Capture(ctx, root, cursor, last != nil)
	if err != nil && !errors.Is(err, iterator.ErrExhausted) {
		return err
	}
	return p.savepoints.Save(ctx, opts.SaveTimestamp, opts.Segment, sp)
}

func dedupe(keys []models.Key) []models.Key {
	seen := make(map[models.Key]struct{}, len(keys))
	out := make([]models.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
