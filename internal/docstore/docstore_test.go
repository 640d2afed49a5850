package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/proto"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteResolveProjection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Put(ctx, Record{
		Generation: 1, SummaryOffset: 10, Key: 7, CrawlTime: 100,
		Summary: models.Summary{
			URL: "https://a", Title: "A", Description: "about a", Hash: "h", IsDoc: true,
			RobotMetas: []string{"noarchive"}, Answers: []string{"42"},
			Body: "full body", Links: []string{"https://b"}, Scores: map[string]float64{"pr": 0.5},
		},
	}))

	docs := []models.CandidateDoc{{Key: 7, Generation: 1, SummaryOffset: 10}, {Key: 8, Generation: 1, SummaryOffset: 11}}
	sums, err := s.Resolve(ctx, docs, models.Projection{})
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "A", sums[0].Title)
	assert.True(t, sums[0].IsDoc)
	assert.Equal(t, []string{"noarchive"}, sums[0].RobotMetas)
	assert.Empty(t, sums[0].Body)
	assert.Empty(t, sums[0].Answers)
	assert.Equal(t, models.Summary{}, sums[1])

	sums, err = s.Resolve(ctx, docs[:1], models.Projection{Full: true, QA: true})
	require.NoError(t, err)
	assert.Equal(t, "full body", sums[0].Body)
	assert.Equal(t, []string{"https://b"}, sums[0].Links)
	assert.Equal(t, []string{"42"}, sums[0].Answers)
	assert.InDelta(t, 0.5, sums[0].Scores["pr"], 1e-9)
}

func TestSQLiteResolveURLsPrefersEarlierCapture(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Put(ctx, Record{Generation: 1, SummaryOffset: 1, CrawlTime: 100, Summary: models.Summary{URL: "https://x", Title: "old"}}))
	require.NoError(t, s.Put(ctx, Record{Generation: 2, SummaryOffset: 1, CrawlTime: 300, Summary: models.Summary{URL: "https://x", Title: "new"}}))

	sums, err := s.ResolveURLs(ctx, []models.URLRef{{URL: "https://x", CrawlTime: 200}, {URL: "https://x", CrawlTime: 50}, {URL: "https://none"}}, models.Projection{})
	require.NoError(t, err)
	assert.Equal(t, "old", sums[0].Title)
	assert.Equal(t, "new", sums[1].Title)
	assert.Empty(t, sums[2].URL)
}

type fakePeers struct {
	summaries map[int]map[models.Key]models.Summary
	urls      map[int]map[string]models.Summary
	calls     []int
	err       error
}

func (f *fakePeers) Call(_ context.Context, machineID int, method string, params any, result any) error {
	f.calls = append(f.calls, machineID)
	if f.err != nil {
		return f.err
	}
	resp := result.(*proto.SummaryResponse)
	switch method {
	case proto.MethodSummary:
		for _, d := range params.(*proto.SummaryRequest).Docs {
			resp.Summaries = append(resp.Summaries, f.summaries[machineID][d.Key])
		}
	case proto.MethodSummaryURLs:
		for _, r := range params.(*proto.URLRequest).Refs {
			resp.Summaries = append(resp.Summaries, f.urls[machineID][r.URL])
		}
	}
	return nil
}

func TestRouterSplitsByMachine(t *testing.T) {
	ctx := context.Background()
	local := openTestStore(t)
	require.NoError(t, local.Put(ctx, Record{Generation: 0, SummaryOffset: 1, Key: 1, Summary: models.Summary{URL: "https://local"}}))
	peers := &fakePeers{summaries: map[int]map[models.Key]models.Summary{
		2: {5: {URL: "https://remote"}},
	}}
	r := NewRouter(0, local, NewRemote(peers), []int{0, 1, 2})

	docs := []models.CandidateDoc{{Key: 5, MachineID: 2}, {Key: 1, MachineID: 0, SummaryOffset: 1}}
	sums, err := r.Resolve(ctx, docs, models.Projection{})
	require.NoError(t, err)
	assert.Equal(t, "https://remote", sums[0].URL)
	assert.Equal(t, "https://local", sums[1].URL)
	assert.Equal(t, []int{2}, peers.calls)
}

func TestRouterURLFallsBackToPeers(t *testing.T) {
	ctx := context.Background()
	peers := &fakePeers{urls: map[int]map[string]models.Summary{
		1: {},
		2: {"https://t": {URL: "https://t", Title: "T"}},
	}}
	r := NewRouter(0, openTestStore(t), NewRemote(peers), []int{0, 1, 2})
	sums, err := r.ResolveURLs(ctx, []models.URLRef{{URL: "https://t"}}, models.Projection{})
	require.NoError(t, err)
	assert.Equal(t, "T", sums[0].Title)
	assert.Equal(t, []int{1, 2}, peers.calls)
}

func TestRouterPropagatesPeerFailure(t *testing.T) {
	peers := &fakePeers{err: errors.New("peer down")}
	r := NewRouter(0, openTestStore(t), NewRemote(peers), []int{0, 1})
	_, err := r.Resolve(context.Background(), []models.CandidateDoc{{MachineID: 1}}, models.Projection{})
	assert.EqualError(t, err, "peer down")
}
