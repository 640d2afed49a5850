package iterator

import (
	"context"
	"fmt"
)

// GroupKey maps a posting to the identity it is deduplicated on.
type GroupKey func(p *Posting) string

// ByDocument groups postings of the same document from the same machine.
func ByDocument(p *Posting) string {
	return fmt.Sprintf("%d/%s", p.Doc.MachineID, p.Doc.Key)
}

// Group drops every posting whose group key was already yielded. The first
// posting of a group wins.
type Group struct {
	inner Iterator
	key   GroupKey
	seen  map[string]struct{}
}

func NewGroup(inner Iterator, key GroupKey) *Group {
	if key == nil {
		key = ByDocument
	}
	return &Group{inner: inner, key: key, seen: make(map[string]struct{})}
}

func (g *Group) Next(ctx context.Context) (*Posting, error) {
	for {
		p, err := g.inner.Next(ctx)
		if err != nil {
			return nil, err
		}
		k := g.key(p)
		if _, dup := g.seen[k]; dup {
			continue
		}
		g.seen[k] = struct{}{}
		return p, nil
	}
}

func (g *Group) Seek(ctx context.Context, cursor uint64) (*Posting, error) {
	for {
		p, err := g.inner.Seek(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if _, dup := g.seen[g.key(p)]; !dup {
			return p, nil
		}
		if _, err := g.inner.Next(ctx); err != nil {
			return nil, err
		}
		cursor = p.Cursor
	}
}

func (g *Group) Children() []Iterator { return []Iterator{g.inner} }

func (g *Group) Plan() string { return "group" }

// Seen reports how many distinct groups were yielded so far.
func (g *Group) Seen() int { return len(g.seen) }
