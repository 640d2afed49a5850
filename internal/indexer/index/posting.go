package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/iterator"
)

// postingLeaf walks a snapshot of one bitmap. Entries are append-only, so
// the slice header taken at creation stays valid for every ordinal in ords.
type postingLeaf struct {
	name      string
	key       models.Key
	word      bool
	dir       models.Direction
	ords      []uint32
	entries   []entry
	machineID int
	idf       float64
	avgLen    float64
	i         int
	// floor is the lowest cursor still to be yielded. Documents indexed
	// later never move it, unlike i, which indexes the snapshot.
	floor uint64
}

// Cursor normalises an ordinal so that iteration order is ascending cursor
// order for both directions.
func Cursor(ord uint32, dir models.Direction) uint64 {
	if dir == models.Descending {
		return uint64(math.MaxUint32 - ord)
	}
	return uint64(ord)
}

func (l *postingLeaf) posting(i int) *iterator.Posting {
	ord := l.ords[i]
	e := &l.entries[ord]
	p := &iterator.Posting{
		Cursor: Cursor(ord, l.dir),
		Doc: models.CandidateDoc{
			Key:           e.doc.Key,
			MachineID:     l.machineID,
			Index:         e.index,
			CrawlTime:     e.doc.Meta.CrawlTime,
			Generation:    e.doc.Generation,
			SummaryOffset: e.doc.SummaryOffset,
			DocRank:       e.doc.DocRank,
			Proximity:     1,
			UserRanks:     e.doc.UserRanks,
		},
	}
	if l.word {
		if pos := e.positions[l.key]; len(pos) > 0 {
			p.Positions = map[models.Key][]int{l.key: pos}
			p.Doc.Relevance = l.idf * computeTFNorm(float64(len(pos)), float64(e.length), l.avgLen)
		}
	}
	return p
}

func (l *postingLeaf) Next(ctx context.Context) (*iterator.Posting, error) {
	if l.i >= len(l.ords) {
		return nil, iterator.ErrExhausted
	}
	p := l.posting(l.i)
	l.i++
	l.floor = p.Cursor + 1
	return p, nil
}

func (l *postingLeaf) Seek(ctx context.Context, cursor uint64) (*iterator.Posting, error) {
	rest := l.ords[l.i:]
	l.i += sort.Search(len(rest), func(j int) bool { return Cursor(rest[j], l.dir) >= cursor })
	l.floor = max(l.floor, cursor)
	if l.i >= len(l.ords) {
		return nil, iterator.ErrExhausted
	}
	return l.posting(l.i), nil
}

// Offset is the cursor floor rather than a slice index: a descending
// snapshot taken after more documents arrive starts with the new ones, so
// indexes shift between runs while cursors do not.
func (l *postingLeaf) Offset() models.Offset {
	if l.i >= len(l.ords) {
		return models.OffsetDone
	}
	return models.Offset(l.floor)
}

func (l *postingLeaf) Advance(off models.Offset) {
	if off == models.OffsetDone {
		l.i = len(l.ords)
		return
	}
	l.floor = uint64(max(off, 0))
	l.i = sort.Search(len(l.ords), func(j int) bool { return Cursor(l.ords[j], l.dir) >= l.floor })
}

func (l *postingLeaf) Children() []iterator.Iterator { return nil }

func (l *postingLeaf) Plan() string {
	return fmt.Sprintf("word %s %s docs=%d", l.name, l.dir, len(l.ords))
}
