package handler

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/proto"
)

type fakeExec struct{ got *proto.QueryRequest }

func (f *fakeExec) Search(_ context.Context, req engine.Request) (*engine.SearchResult, error) {
	if req.Query == "" {
		return &engine.SearchResult{Rows: []models.Result{}}, errors.New("collaborator unavailable: engine.summary: store offline")
	}
	return &engine.SearchResult{
		Query:       req.Query,
		Rows:        []models.Result{{Summary: models.Summary{URL: "https://a"}}},
		TotalRows:   1,
		CacheStatus: engine.CacheMiss,
	}, nil
}

func (f *fakeExec) ExecuteLocal(_ context.Context, req *proto.QueryRequest) (*proto.QueryResponse, error) {
	f.got = req
	return &proto.QueryResponse{
		MachineID: 1,
		Docs:      []models.CandidateDoc{{Key: 7, MachineID: 1, OutScore: 2.5}},
		Exhausted: true,
	}, nil
}

type fakeStore struct{ err error }

func (f *fakeStore) Resolve(_ context.Context, docs []models.CandidateDoc, _ models.Projection) ([]models.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Summary, len(docs))
	for i, d := range docs {
		out[i] = models.Summary{URL: "https://peer/" + d.Key.String(), IsDoc: true}
	}
	return out, nil
}

func (f *fakeStore) ResolveURLs(_ context.Context, refs []models.URLRef, _ models.Projection) ([]models.Summary, error) {
	out := make([]models.Summary, len(refs))
	for i, r := range refs {
		if r.URL == "https://known" {
			out[i] = models.Summary{URL: r.URL, Title: "Known"}
		}
	}
	return out, nil
}

func serve(t *testing.T, h *Handler) *grpc.Client {
	t.Helper()
	s := grpc.NewServer()
	h.Register(s)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)
	c := grpc.NewClient(s.Addr().String())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestQueryExecute(t *testing.T) {
	exec := &fakeExec{}
	c := serve(t, New(1, exec, &fakeStore{}, nil, nil, nil))

	var resp proto.QueryResponse
	req := &proto.QueryRequest{Structs: []models.WordStruct{{Keys: []models.Key{3}, Weight: 1}}, Count: 50}
	require.NoError(t, c.Call(context.Background(), proto.MethodQuery, req, &resp))
	assert.Equal(t, 50, exec.got.Count)
	require.Len(t, resp.Docs, 1)
	assert.Equal(t, models.Key(7), resp.Docs[0].Key)
	assert.True(t, resp.Exhausted)

	err := c.Call(context.Background(), proto.MethodQuery, &proto.QueryRequest{Count: -1}, &resp)
	var remote *grpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "invalid input")
}

func TestSearchQuery(t *testing.T) {
	c := serve(t, New(0, &fakeExec{}, &fakeStore{}, nil, nil, nil))

	var res engine.SearchResult
	require.NoError(t, c.Call(context.Background(), proto.MethodSearch, engine.Request{Query: "cats", Num: 10}, &res))
	assert.Equal(t, "cats", res.Query)
	assert.Equal(t, 1, res.TotalRows)
	assert.Equal(t, "https://a", res.Rows[0].Summary.URL)

	err := c.Call(context.Background(), proto.MethodSearch, engine.Request{}, &res)
	var remote *grpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "collaborator unavailable")
}

func TestSummaryMethods(t *testing.T) {
	c := serve(t, New(1, &fakeExec{}, &fakeStore{}, nil, nil, nil))
	ctx := context.Background()

	var resp proto.SummaryResponse
	req := &proto.SummaryRequest{Docs: []models.CandidateDoc{{Key: 9, MachineID: 1}, {Key: 10, MachineID: 1}}}
	require.NoError(t, c.Call(ctx, proto.MethodSummary, req, &resp))
	require.Len(t, resp.Summaries, 2)
	assert.True(t, resp.Summaries[1].IsDoc)

	resp = proto.SummaryResponse{}
	urls := &proto.URLRequest{Refs: []models.URLRef{{URL: "https://unknown"}, {URL: "https://known"}}}
	require.NoError(t, c.Call(ctx, proto.MethodSummaryURLs, urls, &resp))
	require.Len(t, resp.Summaries, 2)
	assert.Empty(t, resp.Summaries[0].URL)
	assert.Equal(t, "Known", resp.Summaries[1].Title)
}

func TestSummaryStoreFailure(t *testing.T) {
	c := serve(t, New(1, &fakeExec{}, &fakeStore{err: errors.New("disk I/O error")}, nil, nil, nil))
	err := c.Call(context.Background(), proto.MethodSummary, &proto.SummaryRequest{Docs: []models.CandidateDoc{{Key: 1}}}, nil)
	var remote *grpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "collaborator unavailable")
}

func TestHealthCheck(t *testing.T) {
	checker := health.NewChecker()
	checker.RegisterOptional("redis", health.PingCheck(func(context.Context) error { return errors.New("down") }))
	c := serve(t, New(2, &fakeExec{}, &fakeStore{}, checker, func() int { return 42 }, nil))

	var resp proto.HealthCheckResponse
	require.NoError(t, c.Call(context.Background(), proto.MethodHealth, &proto.HealthCheckRequest{}, &resp))
	assert.Equal(t, health.Serving, resp.Status)
	assert.Equal(t, 2, resp.MachineID)
	assert.Equal(t, 42, resp.Docs)

	checker.Register("docstore", health.PingCheck(func(context.Context) error { return errors.New("locked") }))
	require.NoError(t, c.Call(context.Background(), proto.MethodHealth, &proto.HealthCheckRequest{}, &resp))
	assert.Equal(t, health.NotServing, resp.Status)
}
