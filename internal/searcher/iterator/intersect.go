package iterator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// AdjacencyPolicy decides whether a document matched by every child of an
// intersection also satisfies the quoted spans of its word struct.
type AdjacencyPolicy interface {
	Satisfied(keys []models.Key, spans map[int]models.QuoteSpan, positions map[models.Key][]int) bool
}

// PositionalAdjacency requires the members of an exact span at consecutive
// positions, and the members of a wildcard span in order with a free gap
// after every member listed in the span's Gaps.
type PositionalAdjacency struct{}

func (PositionalAdjacency) Satisfied(keys []models.Key, spans map[int]models.QuoteSpan, positions map[models.Key][]int) bool {
	for start, span := range spans {
		if span.Len < 2 {
			continue
		}
		if start < 0 || start+span.Len > len(keys) {
			return false
		}
		members := keys[start : start+span.Len]
		gaps := make(map[int]bool, len(span.Gaps))
		if span.Kind == models.SpanWildcard {
			for _, g := range span.Gaps {
				gaps[g] = true
			}
		}
		found := false
		for _, p := range positions[members[0]] {
			if spanFrom(members, 1, p, gaps, positions) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func spanFrom(members []models.Key, i, prev int, gaps map[int]bool, positions map[models.Key][]int) bool {
	if i == len(members) {
		return true
	}
	for _, q := range positions[members[i]] {
		if gaps[i-1] {
			if q > prev && spanFrom(members, i+1, q, gaps, positions) {
				return true
			}
		} else if q == prev+1 {
			return spanFrom(members, i+1, q, gaps, positions)
		}
	}
	return false
}

// Intersect is a leapfrog join over its children. Negation children prune
// cursors; positive children contribute relevance and positions.
type Intersect struct {
	children []Iterator
	keys     []models.Key
	spans    map[int]models.QuoteSpan
	weight   float64
	policy   AdjacencyPolicy

	pos    uint64
	peeked *Posting
	done   bool
}

// NewIntersect joins children for the word struct keys. A nil policy
// selects PositionalAdjacency.
func NewIntersect(children []Iterator, keys []models.Key, spans map[int]models.QuoteSpan, weight float64, policy AdjacencyPolicy) *Intersect {
	if policy == nil {
		policy = PositionalAdjacency{}
	}
	if weight == 0 {
		weight = 1
	}
	return &Intersect{
		children: children,
		keys:     keys,
		spans:    spans,
		weight:   weight,
		policy:   policy,
	}
}

func (x *Intersect) Next(ctx context.Context) (*Posting, error) {
	p, err := x.Seek(ctx, x.pos)
	if err != nil {
		return nil, err
	}
	x.peeked = nil
	x.pos = p.Cursor + 1
	return p, nil
}

func (x *Intersect) Seek(ctx context.Context, cursor uint64) (*Posting, error) {
	if x.peeked != nil && x.peeked.Cursor >= cursor {
		return x.peeked, nil
	}
	x.peeked = nil
	if x.done {
		return nil, ErrExhausted
	}
	target := max(cursor, x.pos)
	parts := make([]*Posting, 0, len(x.children))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parts = parts[:0]
		aligned := true
		for _, c := range x.children {
			p, err := c.Seek(ctx, target)
			if errors.Is(err, ErrExhausted) {
				x.done = true
				return nil, ErrExhausted
			}
			if err != nil {
				return nil, err
			}
			if p.Cursor > target {
				target = p.Cursor
				aligned = false
				break
			}
			parts = append(parts, p)
		}
		if !aligned {
			continue
		}
		out := x.combine(target, parts)
		if out != nil && x.policy.Satisfied(x.keys, x.spans, out.Positions) {
			x.peeked = out
			return out, nil
		}
		target++
	}
}

func (x *Intersect) combine(cursor uint64, parts []*Posting) *Posting {
	var out *Posting
	relevance := 0.0
	for _, p := range parts {
		if p.Synthetic {
			continue
		}
		if out == nil {
			out = &Posting{Cursor: cursor, Doc: p.Doc}
		}
		relevance += p.Doc.Relevance
		out.Positions = mergePositions(out.Positions, p.Positions)
	}
	if out == nil {
		return nil
	}
	out.Doc.Relevance = relevance * x.weight
	out.Doc.Proximity = Proximity(x.keys, out.Positions)
	return out
}

func (x *Intersect) Children() []Iterator { return x.children }

func (x *Intersect) Plan() string {
	return fmt.Sprintf("intersect weight=%g spans=%d", x.weight, len(x.spans))
}

// Proximity scores how tightly the distinct keys cluster in a document:
// distinct key count over the width of the smallest window holding one
// position of each. Documents with fewer than two positioned keys score 1.
func Proximity(keys []models.Key, positions map[models.Key][]int) float64 {
	type hit struct {
		pos int
		key int
	}
	var hits []hit
	distinct := make(map[models.Key]int)
	for _, k := range keys {
		if _, seen := distinct[k]; seen {
			continue
		}
		ps := positions[k]
		if len(ps) == 0 {
			continue
		}
		id := len(distinct)
		distinct[k] = id
		for _, p := range ps {
			hits = append(hits, hit{pos: p, key: id})
		}
	}
	need := len(distinct)
	if need < 2 {
		return 1
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	counts := make([]int, need)
	covered, best, lo := 0, -1, 0
	for hi := range hits {
		if counts[hits[hi].key] == 0 {
			covered++
		}
		counts[hits[hi].key]++
		for covered == need {
			if w := hits[hi].pos - hits[lo].pos + 1; best < 0 || w < best {
				best = w
			}
			counts[hits[lo].key]--
			if counts[hits[lo].key] == 0 {
				covered--
			}
			lo++
		}
	}
	return float64(need) / float64(best)
}
