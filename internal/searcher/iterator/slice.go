package iterator

import (
	"context"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// SliceLeaf is a leaf over postings already held in memory, sorted by
// cursor. Its offset is the number of postings consumed.
type SliceLeaf struct {
	name     string
	postings []*Posting
	i        int
}

func NewSliceLeaf(name string, postings []*Posting) *SliceLeaf {
	sort.SliceStable(postings, func(a, b int) bool { return postings[a].Cursor < postings[b].Cursor })
	return &SliceLeaf{name: name, postings: postings}
}

func (s *SliceLeaf) Next(ctx context.Context) (*Posting, error) {
	if s.i >= len(s.postings) {
		return nil, ErrExhausted
	}
	p := s.postings[s.i]
	s.i++
	return p, nil
}

func (s *SliceLeaf) Seek(ctx context.Context, cursor uint64) (*Posting, error) {
	rest := s.postings[s.i:]
	s.i += sort.Search(len(rest), func(j int) bool { return rest[j].Cursor >= cursor })
	if s.i >= len(s.postings) {
		return nil, ErrExhausted
	}
	return s.postings[s.i], nil
}

func (s *SliceLeaf) Offset() models.Offset {
	if s.i >= len(s.postings) {
		return models.OffsetDone
	}
	return models.Offset(s.i)
}

func (s *SliceLeaf) Advance(off models.Offset) {
	if off == models.OffsetDone || int(off) > len(s.postings) {
		s.i = len(s.postings)
		return
	}
	s.i = max(int(off), 0)
}

func (s *SliceLeaf) Children() []Iterator { return nil }

func (s *SliceLeaf) Plan() string { return "slice " + s.name }
