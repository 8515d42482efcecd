package fetch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketintel/internal/blobstore"
	"marketintel/internal/fetch"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/services"
	"marketintel/internal/services/static"
	"marketintel/internal/testsupport"
)

func fetchItem(t *testing.T) *queue.Item {
	t.Helper()
	doc, err := payload.Encode(payload.Fetch{
		Keywords:   []string{"oncology"},
		Source:     payload.Source{Name: "statnews"},
		URL:        payload.Candidate{URL: "https://statnews.com/a", Title: "Oncology pricing"},
		URLIndex:   1,
		TotalURLs:  1,
		UserPrompt: "Summarize",
	})
	require.NoError(t, err)
	return &queue.Item{ScopeKey: "proj#req", Stage: queue.StageFetch, SequenceKey: "fetch#1", PayloadJSON: doc}
}

func TestExecuteStoresSummary(t *testing.T) {
	blobs, err := blobstore.NewFS(t.TempDir())
	require.NoError(t, err)
	handler := fetch.NewHandler(static.Summarizer{}, blobs, nil)

	item := fetchItem(t)
	require.NoError(t, handler.Execute(context.Background(), item))

	doc, err := payload.Decode[payload.Fetch](item.PayloadJSON)
	require.NoError(t, err)
	require.NotNil(t, doc.Summary)
	assert.Equal(t, "Oncology pricing", doc.Summary.Title)
	assert.NotEmpty(t, doc.Summary.Response)
	assert.NotNil(t, doc.SummarizedAt)
	assert.Empty(t, doc.Error)
	assert.Contains(t, doc.ContentLocator, "raw-content/proj/req/content/")
}

func TestExecuteRecordsErrorInPayload(t *testing.T) {
	failing := testsupport.SummarizerFunc(func(context.Context, services.SummaryRequest) (payload.Summary, error) {
		return payload.Summary{}, errors.New("http 503")
	})
	handler := fetch.NewHandler(failing, nil, nil)

	item := fetchItem(t)
	err := handler.Execute(context.Background(), item)
	require.Error(t, err)
	assert.False(t, services.IsPermanent(err))

	doc, err := payload.Decode[payload.Fetch](item.PayloadJSON)
	require.NoError(t, err)
	assert.Contains(t, doc.Error, "http 503")
	assert.Nil(t, doc.Summary)
}

func TestPrepareDownstreamTagsEachKind(t *testing.T) {
	handler := fetch.NewHandler(static.Summarizer{}, nil, nil)
	item := fetchItem(t)
	require.NoError(t, handler.Execute(context.Background(), item))

	for _, next := range queue.AnalysisStages() {
		successors, err := handler.PrepareDownstream(context.Background(), item, next)
		require.NoError(t, err)
		require.Len(t, successors, 1)
		assert.Equal(t, string(next), successors[0].Metadata["analysis_kind"])

		doc, err := payload.Decode[payload.Analysis](successors[0].PayloadJSON)
		require.NoError(t, err)
		assert.Equal(t, string(next), doc.AnalysisType)
		require.NotNil(t, doc.Summary)
		assert.Equal(t, "https://statnews.com/a", doc.URL.URL)
	}

	none, err := handler.PrepareDownstream(context.Background(), item, queue.StageSearch)
	require.NoError(t, err)
	assert.Empty(t, none)
}
