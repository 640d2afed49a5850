package docstore

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/proto"
)

// PeerCaller reaches one machine by id. *grpc.FanOut satisfies it.
type PeerCaller interface {
	Call(ctx context.Context, machineID int, method string, params any, result any) error
}

// Remote resolves summaries held by another machine.
type Remote struct {
	caller PeerCaller
}

func NewRemote(caller PeerCaller) *Remote {
	return &Remote{caller: caller}
}

func (r *Remote) Resolve(ctx context.Context, machineID int, docs []models.CandidateDoc, p models.Projection) ([]models.Summary, error) {
	var resp proto.SummaryResponse
	err := r.caller.Call(ctx, machineID, proto.MethodSummary, &proto.SummaryRequest{Docs: docs, Projection: p}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Summaries) != len(docs) {
		return nil, fmt.Errorf("machine %d returned %d summaries for %d docs", machineID, len(resp.Summaries), len(docs))
	}
	return resp.Summaries, nil
}

func (r *Remote) ResolveURLs(ctx context.Context, machineID int, refs []models.URLRef, p models.Projection) ([]models.Summary, error) {
	var resp proto.SummaryResponse
	err := r.caller.Call(ctx, machineID, proto.MethodSummaryURLs, &proto.URLRequest{Refs: refs, Projection: p}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Summaries) != len(refs) {
		return nil, fmt.Errorf("machine %d returned %d summaries for %d urls", machineID, len(resp.Summaries), len(refs))
	}
	return resp.Summaries, nil
}
