// Package network runs a presentation part on every machine of the cluster
// and exposes the merged answer as a single leaf iterator.
package network

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/iterator"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/merger"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/proto"
)

// Transport reaches every machine of the cluster. *grpc.FanOut satisfies it.
type Transport interface {
	Broadcast(ctx context.Context, method string, params any, newResult func(i int) any) error
	Peers() int
}

type Client struct {
	transport Transport
	logger    *slog.Logger
}

func New(t Transport) *Client {
	return &Client{
		transport: t,
		logger:    slog.Default().With("component", "network"),
	}
}

// Iterator returns a leaf that lazily queries every peer with structs.
func (c *Client) Iterator(structs []models.WordStruct, raw bool, toRetrieve int) iterator.Leaf {
	return &Leaf{client: c, structs: structs, raw: raw, count: toRetrieve}
}

// Leaf yields the peers' candidates merged by fused score. Its cursor is the
// row number in the merged list and its offset the number of rows consumed.
type Leaf struct {
	client  *Client
	structs []models.WordStruct
	raw     bool
	count   int

	fetched   bool
	exhausted bool
	skip      int
	docs      []models.CandidateDoc
	pos       int
}

func (l *Leaf) fetch(ctx context.Context) error {
	if l.fetched {
		return nil
	}
	if l.exhausted {
		l.fetched = true
		return nil
	}
	req := &proto.QueryRequest{
		RequestID: logger.RequestID(ctx),
		Structs:   l.structs,
		Raw:       l.raw,
		Count:     l.skip + l.count,
	}
	responses := make([]proto.QueryResponse, l.client.transport.Peers())
	err := l.client.transport.Broadcast(ctx, proto.MethodQuery, req, func(i int) any {
		return &responses[i]
	})
	if err != nil {
		return apperrors.Unavailable("network.query", err)
	}
	lists := make([][]models.CandidateDoc, len(responses))
	exhausted := true
	for i, r := range responses {
		lists[i] = r.Docs
		exhausted = exhausted && r.Exhausted
	}
	l.docs = merger.Merge(lists, 0)
	l.exhausted = exhausted
	l.pos = min(l.skip, len(l.docs))
	l.fetched = true
	l.client.logger.Debug("peers answered",
		"peers", len(responses),
		"docs", len(l.docs),
		"skip", l.skip,
	)
	return nil
}

func (l *Leaf) posting(i int) *iterator.Posting {
	return &iterator.Posting{Cursor: uint64(i), Doc: l.docs[i]}
}

func (l *Leaf) Next(ctx context.Context) (*iterator.Posting, error) {
	if err := l.fetch(ctx); err != nil {
		return nil, err
	}
	if l.pos >= len(l.docs) {
		return nil, iterator.ErrExhausted
	}
	p := l.posting(l.pos)
	l.pos++
	return p, nil
}

func (l *Leaf) Seek(ctx context.Context, cursor uint64) (*iterator.Posting, error) {
	if err := l.fetch(ctx); err != nil {
		return nil, err
	}
	if cursor > uint64(l.pos) {
		l.pos = int(min(cursor, uint64(len(l.docs))))
	}
	if l.pos >= len(l.docs) {
		return nil, iterator.ErrExhausted
	}
	return l.posting(l.pos), nil
}

func (l *Leaf) Offset() models.Offset {
	if !l.fetched {
		if l.exhausted {
			return models.OffsetDone
		}
		return models.Offset(l.skip)
	}
	if l.exhausted && l.pos >= len(l.docs) {
		return models.OffsetDone
	}
	return models.Offset(l.pos)
}

func (l *Leaf) Advance(off models.Offset) {
	if off == models.OffsetDone {
		l.exhausted = true
		l.pos = len(l.docs)
		return
	}
	if l.fetched {
		l.pos = min(max(int(off), 0), len(l.docs))
		return
	}
	l.skip = max(int(off), 0)
}

func (l *Leaf) Children() []iterator.Iterator { return nil }

func (l *Leaf) Plan() string {
	return fmt.Sprintf("network peers=%d structs=%d raw=%t count=%d",
		l.client.transport.Peers(), len(l.structs), l.raw, l.count)
}
