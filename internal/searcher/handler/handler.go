// Package handler serves the searcher over RPC: whole searches for clients,
// and for peers running a presentation part against the local index,
// resolving summaries from the local store and reporting health.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/engine"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/proto"
)

// Engine is satisfied by *engine.Engine.
type Engine interface {
	Search(ctx context.Context, req engine.Request) (*engine.SearchResult, error)
	ExecuteLocal(ctx context.Context, req *proto.QueryRequest) (*proto.QueryResponse, error)
}

// Store resolves summaries this machine holds. It must be the local store,
// never the router, so that peers do not forward each other's lookups.
type Store interface {
	Resolve(ctx context.Context, docs []models.CandidateDoc, p models.Projection) ([]models.Summary, error)
	ResolveURLs(ctx context.Context, refs []models.URLRef, p models.Projection) ([]models.Summary, error)
}

type Handler struct {
	machineID int
	engine    Engine
	store     Store
	checker   *health.Checker
	docCount  func() int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds the handler. docCount reports the documents indexed here.
func New(machineID int, eng Engine, store Store, checker *health.Checker, docCount func() int, m *metrics.Metrics) *Handler {
	return &Handler{
		machineID: machineID,
		engine:    eng,
		store:     store,
		checker:   checker,
		docCount:  docCount,
		metrics:   m,
		logger:    slog.Default().With("component", "peer-handler"),
	}
}

// Register adds every peer method to s.
func (h *Handler) Register(s *grpc.Server) {
	s.Register(proto.MethodSearch, h.instrument(proto.MethodSearch, h.Search))
	s.Register(proto.MethodQuery, h.instrument(proto.MethodQuery, h.Query))
	s.Register(proto.MethodSummary, h.instrument(proto.MethodSummary, h.Summaries))
	s.Register(proto.MethodSummaryURLs, h.instrument(proto.MethodSummaryURLs, h.SummariesByURL))
	s.Register(proto.MethodHealth, h.instrument(proto.MethodHealth, h.Health))
}

func (h *Handler) instrument(method string, fn grpc.HandlerFunc) grpc.HandlerFunc {
	return func(ctx context.Context, req json.RawMessage) (any, error) {
		start := time.Now()
		resp, err := fn(ctx, req)
		h.metrics.RPCRequest(method, err)
		logger.FromContext(ctx).Debug("peer request served",
			"method", method,
			"latency_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return resp, err
	}
}

func decode[T any](op string, raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, op, "decoding request: %v", err)
	}
	return &v, nil
}

// Search handles Search.Query. Collaborator failures reach the client as
// the error; the empty page is not sent.
func (h *Handler) Search(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decode[engine.Request]("handler.search", raw)
	if err != nil {
		return nil, err
	}
	return h.engine.Search(ctx, *req)
}

// Query handles Query.Execute.
func (h *Handler) Query(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decode[proto.QueryRequest]("handler.query", raw)
	if err != nil {
		return nil, err
	}
	if req.Count < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "handler.query", "negative count %d", req.Count)
	}
	return h.engine.ExecuteLocal(ctx, req)
}

// Summaries handles Summary.Resolve.
func (h *Handler) Summaries(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decode[proto.SummaryRequest]("handler.summary", raw)
	if err != nil {
		return nil, err
	}
	for _, d := range req.Docs {
		if d.MachineID != h.machineID {
			h.logger.Warn("summary requested for a document indexed elsewhere",
				"key", d.Key,
				"owner", d.MachineID,
			)
			break
		}
	}
	sums, err := h.store.Resolve(ctx, req.Docs, req.Projection)
	if err != nil {
		return nil, apperrors.Unavailable("handler.summary", err)
	}
	return &proto.SummaryResponse{Summaries: sums}, nil
}

// SummariesByURL handles Summary.ResolveURLs.
func (h *Handler) SummariesByURL(ctx context.Context, raw json.RawMessage) (any, error) {
	req, err := decode[proto.URLRequest]("handler.summary_urls", raw)
	if err != nil {
		return nil, err
	}
	sums, err := h.store.ResolveURLs(ctx, req.Refs, req.Projection)
	if err != nil {
		return nil, apperrors.Unavailable("handler.summary_urls", err)
	}
	return &proto.SummaryResponse{Summaries: sums}, nil
}

// Health handles Health.Check.
func (h *Handler) Health(ctx context.Context, _ json.RawMessage) (any, error) {
	resp := &proto.HealthCheckResponse{Status: health.Serving, MachineID: h.machineID}
	if h.docCount != nil {
		resp.Docs = h.docCount()
	}
	if h.checker != nil {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		resp.Status = h.checker.Run(cctx).ServingStatus()
	}
	return resp, nil
}
