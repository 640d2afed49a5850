package summary

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
)

type fakeStore struct {
	byKey    map[models.Key]models.Summary
	byURL    map[string]models.Summary
	batches  []int
	urlCalls int
	err      error
}

func (f *fakeStore) Resolve(_ context.Context, docs []models.CandidateDoc, p models.Projection) ([]models.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, len(docs))
	out := make([]models.Summary, len(docs))
	for i, d := range docs {
		out[i] = f.byKey[d.Key]
	}
	return out, nil
}

func (f *fakeStore) ResolveURLs(_ context.Context, refs []models.URLRef, p models.Projection) ([]models.Summary, error) {
	f.urlCalls++
	out := make([]models.Summary, len(refs))
	for i, r := range refs {
		out[i] = f.byURL[r.URL]
	}
	return out, nil
}

func cands(keys ...models.Key) []models.CandidateDoc {
	out := make([]models.CandidateDoc, len(keys))
	for i, k := range keys {
		out[i] = models.CandidateDoc{Key: k}
	}
	return out
}

func urls(rows []models.Result) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Summary.URL
	}
	return out
}

func TestAssembleFiltersAndOrders(t *testing.T) {
	store := &fakeStore{byKey: map[models.Key]models.Summary{
		1: {URL: "https://a", Hash: "h1", IsDoc: true, Description: "about cats"},
		2: {URL: "https://b", Hash: "h1", IsDoc: true, Description: "copy"},
		3: {URL: "https://c", Hash: "h3", IsDoc: true, RobotMetas: []string{"noindex,follow"}},
		4: {URL: "https://d", Hash: "h4", IsDoc: true, Description: "about cats"},
		5: {URL: "https://e", Hash: "h5", IsDoc: true, Description: "dogs"},
	}}
	a := New(store, nil, 2, nil)
	rows, err := a.Assemble(context.Background(), cands(1, 2, 3, 4, 5, 6), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a", "https://e"}, urls(rows))
	assert.Equal(t, []int{2, 2, 2}, store.batches)
}

func TestAssembleFollowsRedirects(t *testing.T) {
	store := &fakeStore{
		byKey: map[models.Key]models.Summary{
			1: {URL: "http://old", Location: "https://new", Hash: "r1"},
			2: {URL: "http://gone", Location: "https://missing", Hash: "r2"},
		},
		byURL: map[string]models.Summary{
			"https://new": {URL: "https://new", Hash: "n1", IsDoc: true, Title: "New"},
		},
	}
	a := New(store, nil, 10, nil)
	rows, err := a.Assemble(context.Background(), cands(1, 2), Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "New", rows[0].Summary.Title)
	assert.Equal(t, "https://missing", rows[1].Summary.URL)
	assert.True(t, rows[1].Summary.IsRedirect())
	assert.Equal(t, 1, store.urlCalls)

	rows, err = a.Assemble(context.Background(), cands(1, 2), Options{GroupOnlyWithDocs: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://new"}, urls(rows))
}

func TestAssembleRawKeepsDuplicates(t *testing.T) {
	store := &fakeStore{byKey: map[models.Key]models.Summary{
		1: {URL: "https://a", Hash: "h", Description: "same"},
		2: {URL: "https://b", Hash: "h", Description: "same"},
		3: {URL: "https://c", RobotMetas: []string{"NONE"}},
	}}
	rows, err := New(store, nil, 10, nil).Assemble(context.Background(), cands(1, 2, 3), Options{Raw: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a", "https://b"}, urls(rows))
}

func TestAssembleStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("disk gone")}
	_, err := New(store, nil, 10, nil).Assemble(context.Background(), cands(1), Options{})
	assert.True(t, apperrors.Is(err, apperrors.ErrCollaboratorUnavailable))
}

func TestAssembleSnippets(t *testing.T) {
	store := &fakeStore{byKey: map[models.Key]models.Summary{
		1: {URL: "https://a", Description: "Cats are great pets"},
	}}
	rows, err := New(store, nil, 10, nil).Assemble(context.Background(), cands(1), Options{HighlightTerms: []string{"cat"}, MaxDescriptionLen: 100})
	require.NoError(t, err)
	assert.Equal(t, "<b>Cats</b> are great pets", rows[0].Snippet)
}

func TestHighlighter(t *testing.T) {
	h := Highlighter{}
	tests := []struct {
		name  string
		text  string
		terms []string
		max   int
		want  string
	}{
		{"no terms", "plain text", nil, 0, "plain text"},
		{"stem match", "Running runners run.", []string{"run"}, 0, "<b>Running</b> runners <b>run</b>."},
		{"phrase terms", "new york city", []string{"new york"}, 0, "<b>new</b> <b>york</b> city"},
		{"truncate at space", "one two three four", nil, 12, "one two..."},
		{"truncate runes", "ééééé", nil, 3, "ééé..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.Snippet(tt.text, tt.terms, tt.max))
		})
	}
}
