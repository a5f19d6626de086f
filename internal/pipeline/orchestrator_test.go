package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/metrics"
	"github.com/gestordocs/ingestor/internal/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	data  []byte
	errs  []error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.data, nil
}

type fakeExtractor struct {
	rc    *models.RawContent
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, kind models.Kind) (*models.RawContent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rc := *f.rc
	rc.Kind = kind
	return &rc, nil
}

type fakeEmbedder struct {
	mu       sync.Mutex
	failures int
	failErr  error
	dim      int
	calls    int
}

func (f *fakeEmbedder) EmbedChunks(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, f.failErr
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = make([]float32, f.dim)
	}
	return vecs, nil
}

type fakeIndexer struct {
	mu      sync.Mutex
	calls   int
	lastDoc string
	last    []models.IndexRecord
	err     error
	delay   time.Duration
	active  int
	maxSeen int
}

func (f *fakeIndexer) IndexDocument(_ context.Context, documentID string, records []models.IndexRecord) error {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	f.calls++
	f.lastDoc = documentID
	f.last = append([]models.IndexRecord(nil), records...)
	return f.err
}

func testRawContent() *models.RawContent {
	return &models.RawContent{
		Pages: []models.PageText{
			{Index: 0, Lines: []string{"Revenue grew strongly this quarter."}},
			{Index: 1, Lines: []string{"Costs were flat across every region."}},
		},
		Metadata: models.DocumentMetadata{Author: "analyst", PageCount: 2},
	}
}

func testRetryPolicy() core.RetryPolicy {
	return core.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, f core.Fetcher, x core.Extractor, e core.Embedder, ix core.Indexer) *Orchestrator {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	orch, err := NewOrchestrator(
		f, x,
		NewCleaner(DefaultCleanerConfig()),
		NewChunker(DefaultChunkerConfig()),
		e, ix,
		testRetryPolicy(), 2, m,
	)
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	return orch
}

func testRequest(id string) models.IngestionRequest {
	return models.IngestionRequest{
		DocumentID: id,
		IsPublic:   true,
		Metadata:   models.RequestMetadata{Title: "Q1 Report", DocumentType: "report"},
		AreaIDs:    []string{"finance"},
	}
}

func TestProcessSuccess(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("pdf-bytes")}
	extractor := &fakeExtractor{rc: testRawContent()}
	embedder := &fakeEmbedder{dim: core.EmbeddingDim}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	out := orch.Process(context.Background(), testRequest("rep.pdf"))

	require.True(t, out.Completed, "err: %v", out.Err)
	require.Equal(t, 1, indexer.calls)
	require.NotEmpty(t, indexer.last)
	assert.Equal(t, "rep.pdf", indexer.lastDoc)
	for i, rec := range indexer.last {
		assert.Equal(t, "rep.pdf", rec.DocumentID)
		assert.Equal(t, i, rec.ChunkSequenceNo)
		assert.Len(t, rec.Vector, core.EmbeddingDim)
		assert.True(t, rec.IsPublic)
		assert.Equal(t, []string{"finance"}, rec.AreaIDs)
		assert.Equal(t, "Q1 Report", rec.Metadata.Titulo)
		assert.Equal(t, "analyst", rec.Metadata.Autor)
		assert.Equal(t, 2, rec.Metadata.Paginas)
	}

	st, ok := orch.states.get("rep.pdf")
	require.True(t, ok)
	assert.Equal(t, StageCompleted, st.Stage)
}

func TestProcessRetriesTransientFetch(t *testing.T) {
	fetcher := &fakeFetcher{
		data: []byte("pdf-bytes"),
		errs: []error{
			fmt.Errorf("%w: timeout", core.ErrTransient),
			fmt.Errorf("%w: timeout", core.ErrTransient),
			nil,
		},
	}
	extractor := &fakeExtractor{rc: testRawContent()}
	embedder := &fakeEmbedder{dim: core.EmbeddingDim}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	out := orch.Process(context.Background(), testRequest("rep.pdf"))

	require.True(t, out.Completed, "err: %v", out.Err)
	assert.Equal(t, 3, fetcher.calls)
	assert.Equal(t, 1, indexer.calls)
}

func TestProcessRetryCeilingDeadEnds(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("pdf-bytes")}
	extractor := &fakeExtractor{rc: testRawContent()}
	embedder := &fakeEmbedder{
		failures: 100,
		failErr:  fmt.Errorf("%w: endpoint down", core.ErrTransient),
		dim:      core.EmbeddingDim,
	}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	out := orch.Process(context.Background(), testRequest("rep.pdf"))

	require.False(t, out.Completed)
	assert.Equal(t, "TransientError", out.Reason)
	assert.Equal(t, 3, embedder.calls)
	assert.Equal(t, 0, indexer.calls, "failed run must not touch the index")

	st, ok := orch.states.get("rep.pdf")
	require.True(t, ok)
	assert.Equal(t, StageFailed, st.Stage)
	assert.Equal(t, "TransientError", st.Reason)
}

func TestProcessFatalErrorSkipsRetry(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("pdf-bytes")}
	extractor := &fakeExtractor{err: fmt.Errorf("%w: truncated xref", core.ErrCorruptDocument)}
	embedder := &fakeEmbedder{dim: core.EmbeddingDim}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	out := orch.Process(context.Background(), testRequest("rep.pdf"))

	require.False(t, out.Completed)
	assert.Equal(t, "CorruptDocument", out.Reason)
	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, 0, embedder.calls)
	assert.Equal(t, 0, indexer.calls)
}

func TestProcessUnsupportedKind(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("bytes")}
	extractor := &fakeExtractor{rc: testRawContent()}
	embedder := &fakeEmbedder{dim: core.EmbeddingDim}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	out := orch.Process(context.Background(), testRequest("notes.txt"))

	require.False(t, out.Completed)
	assert.Equal(t, "UnsupportedKind", out.Reason)
	assert.Equal(t, 0, extractor.calls)
}

func TestProcessEmptyDocumentIndexesZeroFragments(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("pdf-bytes")}
	extractor := &fakeExtractor{rc: &models.RawContent{}}
	embedder := &fakeEmbedder{dim: core.EmbeddingDim}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	out := orch.Process(context.Background(), testRequest("rep.pdf"))

	require.True(t, out.Completed, "err: %v", out.Err)
	assert.Equal(t, 0, embedder.calls, "nothing to embed")
	require.Equal(t, 1, indexer.calls, "empty set still replaces stale fragments")
	assert.Empty(t, indexer.last)
}

func TestProcessRejectsMisalignedVectors(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("pdf-bytes")}
	extractor := &fakeExtractor{rc: testRawContent()}
	embedder := &fakeEmbedder{dim: 128}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	out := orch.Process(context.Background(), testRequest("rep.pdf"))

	require.False(t, out.Completed)
	assert.Equal(t, "ProviderError", out.Reason)
	assert.Equal(t, 0, indexer.calls)
}

func TestProcessValidatesDocumentID(t *testing.T) {
	orch := newTestOrchestrator(t,
		&fakeFetcher{}, &fakeExtractor{rc: testRawContent()},
		&fakeEmbedder{dim: core.EmbeddingDim}, &fakeIndexer{})

	out := orch.Process(context.Background(), models.IngestionRequest{})

	require.False(t, out.Completed)
	assert.Equal(t, "ValidationError", out.Reason)
}

func TestProcessSerializesSameDocument(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("pdf-bytes")}
	extractor := &fakeExtractor{rc: testRawContent()}
	embedder := &fakeEmbedder{dim: core.EmbeddingDim}
	indexer := &fakeIndexer{delay: 20 * time.Millisecond}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := orch.Process(context.Background(), testRequest("rep.pdf"))
			assert.True(t, out.Completed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, indexer.calls)
	assert.Equal(t, 1, indexer.maxSeen, "runs for one document must not overlap")
}

func TestProcessCoverAndFooterDocument(t *testing.T) {
	// Page 1 is a title-only cover; pages 2 and 3 share a per-page footer.
	extractor := &fakeExtractor{rc: &models.RawContent{
		Pages: []models.PageText{
			{Index: 0, Lines: []string{"Q1 Report", "Acme Corporation"}},
			{Index: 1, Lines: []string{
				"Revenue grew strongly this quarter.",
				"Confidential — Page 2",
			}},
			{Index: 2, Lines: []string{
				"Costs were flat across every region.",
				"Confidential — Page 3",
			}},
		},
		Metadata: models.DocumentMetadata{PageCount: 3},
	}}
	fetcher := &fakeFetcher{data: []byte("pdf-bytes")}
	embedder := &fakeEmbedder{dim: core.EmbeddingDim}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	out := orch.Process(context.Background(), testRequest("rep.pdf"))

	require.True(t, out.Completed, "err: %v", out.Err)
	require.NotEmpty(t, indexer.last)
	for _, rec := range indexer.last {
		assert.NotContains(t, rec.Text, "Confidential")
		assert.NotContains(t, rec.Text, "Acme Corporation")
		assert.True(t, rec.IsPublic)
		assert.Equal(t, []string{"finance"}, rec.AreaIDs)
		assert.Len(t, rec.Vector, core.EmbeddingDim)
	}
}

func TestSubmitRunsOnPool(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("pdf-bytes")}
	extractor := &fakeExtractor{rc: testRawContent()}
	embedder := &fakeEmbedder{dim: core.EmbeddingDim}
	indexer := &fakeIndexer{}
	orch := newTestOrchestrator(t, fetcher, extractor, embedder, indexer)

	done := make(chan Outcome, 1)
	err := orch.Submit(context.Background(), testRequest("rep.pdf"), func(out Outcome) {
		done <- out
	})
	require.NoError(t, err)

	select {
	case out := <-done:
		assert.True(t, out.Completed, "err: %v", out.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline run did not finish")
	}
}
