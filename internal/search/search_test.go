package search_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketintel/internal/blobstore"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/search"
	"marketintel/internal/services"
	"marketintel/internal/testsupport"
)

func TestSelectURLsRanksStablyAndCaps(t *testing.T) {
	input := []payload.Candidate{
		{URL: "a", RelevanceScore: 0.5},
		{URL: "", RelevanceScore: 0.99},
		{URL: "b", RelevanceScore: 0.9},
		{URL: "c", RelevanceScore: 0.5},
		{URL: "d", RelevanceScore: 0.7},
	}
	snapshot := append([]payload.Candidate(nil), input...)

	got := search.SelectURLs(input, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "d", "a"}, urls(got))
	assert.Equal(t, snapshot, input, "input must not be mutated")

	assert.Equal(t, []string{"b", "d", "a", "c"}, urls(search.SelectURLs(input, 10)))
	assert.Empty(t, search.SelectURLs(input, 0))
	assert.Empty(t, search.SelectURLs(nil, 3))
}

func TestSelectURLsTwentyFiveToThree(t *testing.T) {
	var input []payload.Candidate
	for i := 0; i < 25; i++ {
		input = append(input, payload.Candidate{URL: fmt.Sprintf("u%02d", i), RelevanceScore: float64(i%5) / 10})
	}
	got := search.SelectURLs(input, 3)
	assert.Equal(t, []string{"u04", "u09", "u14"}, urls(got))
}

func urls(candidates []payload.Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.URL)
	}
	return out
}

func searchItem(t *testing.T) *queue.Item {
	t.Helper()
	doc, err := payload.Encode(payload.Search{
		Keywords: []string{"oncology"},
		Source:   payload.Source{Name: "statnews", URL: "statnews.com", Type: "news"},
		Queries:  []string{"oncology"},
	})
	require.NoError(t, err)
	return &queue.Item{ScopeKey: "proj#req", Stage: queue.StageSearch, SequenceKey: "search#1", PayloadJSON: doc}
}

func TestExecuteStoresResultsAndArchives(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(3))
	blobs, err := blobstore.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	handler := search.NewHandler(cfg, testsupport.FixedSearcher(25), blobs, nil)
	item := searchItem(t)
	require.NoError(t, handler.Execute(context.Background(), item))

	doc, err := payload.Decode[payload.Search](item.PayloadJSON)
	require.NoError(t, err)
	assert.Equal(t, 25, doc.ResultCount)
	require.NotNil(t, doc.SearchedAt)
	require.NotEmpty(t, doc.ResultsLocator)

	raw, err := blobs.Get(context.Background(), doc.ResultsLocator)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "statnews.com/article-00")

	successors, err := handler.PrepareDownstream(context.Background(), item, queue.StageFetch)
	require.NoError(t, err)
	require.Len(t, successors, 3)
	for i, successor := range successors {
		fetch, err := payload.Decode[payload.Fetch](successor.PayloadJSON)
		require.NoError(t, err)
		assert.Equal(t, i+1, fetch.URLIndex)
		assert.Equal(t, 3, fetch.TotalURLs)
		assert.Equal(t, 25, fetch.TotalFoundURLs)
		assert.True(t, fetch.URLLimitApplied)
		assert.Contains(t, fetch.UserPrompt, fetch.URL.URL)
	}
}

func TestExecuteEmptyResultsIsSuccess(t *testing.T) {
	handler := search.NewHandler(testsupport.NewConfig(t), testsupport.FixedSearcher(0), nil, nil)
	item := searchItem(t)
	require.NoError(t, handler.Execute(context.Background(), item))

	doc, err := payload.Decode[payload.Search](item.PayloadJSON)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.ResultCount)
	assert.Empty(t, doc.ResultsLocator)

	successors, err := handler.PrepareDownstream(context.Background(), item, queue.StageFetch)
	require.NoError(t, err)
	assert.Empty(t, successors)
}

func TestExecuteProviderFailureIsTransient(t *testing.T) {
	failing := testsupport.SearcherFunc(func(context.Context, services.SearchRequest) ([]payload.Candidate, error) {
		return nil, errors.New("connection reset")
	})
	handler := search.NewHandler(testsupport.NewConfig(t), failing, nil, nil)
	err := handler.Execute(context.Background(), searchItem(t))
	require.Error(t, err)
	assert.False(t, services.IsPermanent(err))
}

func TestHealthCheckWithoutProvider(t *testing.T) {
	handler := search.NewHandler(testsupport.NewConfig(t), nil, nil, nil)
	health := handler.HealthCheck(context.Background())
	assert.False(t, health.Ready)
}
