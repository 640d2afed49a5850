// Package iterator implements the posting-list algebra the planner composes:
// word and listing leaves supplied by a Source, negation, intersection with
// phrase adjacency, union, grouping and network fan-out.
//
// Every posting carries a direction-normalised cursor. Iterators yield
// postings in strictly increasing cursor order, so leapfrog joins and k-way
// merges work the same for ascending and descending indexes.
package iterator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// ErrExhausted is returned once an iterator has no postings left.
var ErrExhausted = errors.New("iterator exhausted")

// Posting is one document yielded by an iterator.
type Posting struct {
	Cursor    uint64
	Doc       models.CandidateDoc
	Positions map[models.Key][]int
	// Synthetic postings come from negation and carry no document data.
	Synthetic bool
}

// Iterator yields postings in increasing cursor order.
type Iterator interface {
	// Next returns the next posting and moves past it.
	Next(ctx context.Context) (*Posting, error)
	// Seek positions the iterator at the first posting whose cursor is at
	// least cursor and returns it without consuming it.
	Seek(ctx context.Context, cursor uint64) (*Posting, error)
	Children() []Iterator
	Plan() string
}

// Leaf is an iterator reading postings straight from a source. Its offset
// is what a save point records.
type Leaf interface {
	Iterator
	Offset() models.Offset
	Advance(off models.Offset)
}

// Source supplies leaf iterators for one machine's indexes.
type Source interface {
	Word(ctx context.Context, index string, key models.Key, dir models.Direction) (Leaf, error)
	Listing(ctx context.Context, index string, dir models.Direction) (Leaf, error)
}

// NextBatch pulls up to n postings. err is ErrExhausted when the iterator ran
// dry; the postings collected before that are still returned.
func NextBatch(ctx context.Context, it Iterator, n int) ([]*Posting, error) {
	batch := make([]*Posting, 0, min(n, 256))
	for len(batch) < n {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		p, err := it.Next(ctx)
		if err != nil {
			return batch, err
		}
		batch = append(batch, p)
	}
	return batch, nil
}

// Leaves returns the leaf iterators of a tree in depth-first order.
func Leaves(it Iterator) []Leaf {
	var out []Leaf
	var walk func(Iterator)
	walk = func(n Iterator) {
		if l, ok := n.(Leaf); ok && len(n.Children()) == 0 {
			out = append(out, l)
			return
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(it)
	return out
}

// Capture records where every leaf stands after the posting at lastCursor
// was consumed. Pass started=false when nothing was consumed yet.
func Capture(ctx context.Context, it Iterator, lastCursor uint64, started bool) (models.SavePoint, error) {
	if started {
		if _, err := it.Seek(ctx, lastCursor+1); err != nil && !errors.Is(err, ErrExhausted) {
			return nil, fmt.Errorf("positioning for save point: %w", err)
		}
	}
	leaves := Leaves(it)
	sp := make(models.SavePoint, len(leaves))
	for i, l := range leaves {
		sp[i] = l.Offset()
	}
	return sp, nil
}

// Restore advances every leaf to its recorded offset. A save point taken
// from a differently shaped tree is rejected.
func Restore(it Iterator, sp models.SavePoint) error {
	leaves := Leaves(it)
	if len(leaves) != len(sp) {
		return fmt.Errorf("save point has %d offsets for %d leaves", len(sp), len(leaves))
	}
	for i, l := range leaves {
		l.Advance(sp[i])
	}
	return nil
}

// Describe renders the plan of a whole tree, one node per line.
func Describe(it Iterator) string {
	var b strings.Builder
	var walk func(Iterator, int)
	walk = func(n Iterator, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Plan())
		b.WriteByte('\n')
		for _, c := range n.Children() {
			walk(c, depth+1)
		}
	}
	walk(it, 0)
	return b.String()
}

func mergePositions(dst, src map[models.Key][]int) map[models.Key][]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[models.Key][]int, len(src))
	}
	for k, v := range src {
		dst[k] = append(dst[k], v...)
	}
	return dst
}
