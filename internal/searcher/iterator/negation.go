package iterator

import (
	"context"
	"errors"
)

var errStandaloneNegation = errors.New("negation can only be probed by an intersection")

// Negation matches every cursor its inner iterator does not contain. It has
// no universe of its own, so it only answers Seek probes from an Intersect.
type Negation struct {
	inner Iterator
}

func NewNegation(inner Iterator) *Negation {
	return &Negation{inner: inner}
}

func (n *Negation) Next(ctx context.Context) (*Posting, error) {
	return nil, errStandaloneNegation
}

// Seek returns a synthetic posting at cursor when the inner iterator lacks
// it, or at cursor+1 to tell the caller to move on.
func (n *Negation) Seek(ctx context.Context, cursor uint64) (*Posting, error) {
	p, err := n.inner.Seek(ctx, cursor)
	if errors.Is(err, ErrExhausted) || (err == nil && p.Cursor != cursor) {
		return &Posting{Cursor: cursor, Synthetic: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Posting{Cursor: cursor + 1, Synthetic: true}, nil
}

func (n *Negation) Children() []Iterator { return []Iterator{n.inner} }

func (n *Negation) Plan() string { return "not" }
