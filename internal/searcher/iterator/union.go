package iterator

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// Union is a k-way merge of its children by cursor. Postings for the same
// document at the same cursor are merged into one, keeping the best scores.
type Union struct {
	children []Iterator
	live     []bool

	pos     uint64
	pending []*Posting
}

func NewUnion(children []Iterator) *Union {
	live := make([]bool, len(children))
	for i := range live {
		live[i] = true
	}
	return &Union{children: children, live: live}
}

func (u *Union) Next(ctx context.Context) (*Posting, error) {
	p, err := u.Seek(ctx, u.pos)
	if err != nil {
		return nil, err
	}
	u.pending = u.pending[1:]
	if len(u.pending) == 0 {
		if err := u.consume(ctx, p.Cursor); err != nil {
			return nil, err
		}
		u.pos = p.Cursor + 1
	}
	return p, nil
}

// Seek merges the heads at the smallest cursor at or past cursor. Children
// are only peeked; Next consumes them once every merged posting is out.
func (u *Union) Seek(ctx context.Context, cursor uint64) (*Posting, error) {
	if len(u.pending) > 0 {
		if u.pending[0].Cursor >= cursor {
			return u.pending[0], nil
		}
		u.pending = nil
	}
	target := max(cursor, u.pos)
	var (
		best  uint64
		found bool
		heads []*Posting
	)
	for i, c := range u.children {
		if !u.live[i] {
			continue
		}
		p, err := c.Seek(ctx, target)
		if errors.Is(err, ErrExhausted) {
			u.live[i] = false
			continue
		}
		if err != nil {
			return nil, err
		}
		switch {
		case !found || p.Cursor < best:
			best, found = p.Cursor, true
			heads = append(heads[:0], p)
		case p.Cursor == best:
			heads = append(heads, p)
		}
	}
	if !found {
		return nil, ErrExhausted
	}
	u.pending = mergeHeads(heads)
	return u.pending[0], nil
}

func (u *Union) consume(ctx context.Context, cursor uint64) error {
	for i, c := range u.children {
		if !u.live[i] {
			continue
		}
		for {
			p, err := c.Seek(ctx, cursor)
			if errors.Is(err, ErrExhausted) {
				u.live[i] = false
				break
			}
			if err != nil {
				return err
			}
			if p.Cursor != cursor {
				break
			}
			if _, err := c.Next(ctx); err != nil && !errors.Is(err, ErrExhausted) {
				return err
			}
		}
	}
	return nil
}

func mergeHeads(heads []*Posting) []*Posting {
	out := make([]*Posting, 0, len(heads))
	byDoc := make(map[docIdentity]int, len(heads))
	for _, h := range heads {
		id := docIdentity{key: h.Doc.Key, machine: h.Doc.MachineID, index: h.Doc.Index}
		i, ok := byDoc[id]
		if !ok {
			byDoc[id] = len(out)
			cp := *h
			cp.Positions = mergePositions(nil, h.Positions)
			out = append(out, &cp)
			continue
		}
		m := out[i]
		m.Doc.Relevance = max(m.Doc.Relevance, h.Doc.Relevance)
		m.Doc.Proximity = max(m.Doc.Proximity, h.Doc.Proximity)
		m.Positions = mergePositions(m.Positions, h.Positions)
	}
	return out
}

type docIdentity struct {
	key     models.Key
	machine int
	index   string
}

func (u *Union) Children() []Iterator { return u.children }

func (u *Union) Plan() string { return fmt.Sprintf("union children=%d", len(u.children)) }
