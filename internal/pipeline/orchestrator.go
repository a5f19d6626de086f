// Package pipeline owns the per-document ingestion state machine and
// the content cleaning and chunking algorithms it drives.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/extract"
	"github.com/gestordocs/ingestor/internal/metrics"
	"github.com/gestordocs/ingestor/internal/models"
)

// Outcome is the terminal result of one pipeline run.
type Outcome struct {
	Completed bool
	// Reason names the failure class when Completed is false.
	Reason string
	Err    error
}

// Orchestrator drives fetch → extract → clean → chunk → embed → index
// for each request. It is the sole writer of PipelineState, serializes
// runs per document id, and bounds global concurrency with a worker
// pool. Transient stage failures re-enter the same stage under the
// retry policy; fatal failures terminate the run immediately.
type Orchestrator struct {
	fetcher   core.Fetcher
	extractor core.Extractor
	cleaner   *Cleaner
	chunker   *Chunker
	embedder  core.Embedder
	indexer   core.Indexer

	retry   core.RetryPolicy
	pool    *ants.Pool
	locks   *keyedLocks
	states  *stateRegistry
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewOrchestrator(
	fetcher core.Fetcher,
	extractor core.Extractor,
	cleaner *Cleaner,
	chunker *Chunker,
	embedder core.Embedder,
	indexer core.Indexer,
	retry core.RetryPolicy,
	workers int,
	m *metrics.Metrics,
) (*Orchestrator, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		cleaner:   cleaner,
		chunker:   chunker,
		embedder:  embedder,
		indexer:   indexer,
		retry:     retry,
		pool:      pool,
		locks:     newKeyedLocks(),
		states:    newStateRegistry(),
		metrics:   m,
		logger:    slog.Default().With("component", "orchestrator"),
	}, nil
}

// Submit schedules a run on the worker pool and invokes done with the
// terminal outcome. Blocks when all workers are busy.
func (o *Orchestrator) Submit(ctx context.Context, req models.IngestionRequest, done func(Outcome)) error {
	return o.pool.Submit(func() {
		done(o.Process(ctx, req))
	})
}

// Close releases the worker pool. In-flight runs finish first.
func (o *Orchestrator) Close() {
	o.pool.Release()
}

// States returns a snapshot of per-document pipeline states, terminal
// ones included.
func (o *Orchestrator) States() []PipelineState {
	return o.states.snapshot()
}

// Process runs the full state machine for one request and returns the
// terminal outcome. A second request for an id already in flight waits
// here until the first reaches a terminal state.
func (o *Orchestrator) Process(ctx context.Context, req models.IngestionRequest) Outcome {
	if req.DocumentID == "" {
		return o.failed(req.DocumentID, fmt.Errorf("%w: empty document id", core.ErrValidation))
	}

	release, err := o.locks.acquire(ctx, req.DocumentID)
	if err != nil {
		return Outcome{Reason: "Cancelled", Err: err}
	}
	defer release()

	o.metrics.InFlight.Inc()
	defer o.metrics.InFlight.Dec()

	start := time.Now()
	o.states.set(req.DocumentID, StageReceived)

	// Fetching (retryable: remote transfer faults are transient).
	var data []byte
	err = o.runStage(ctx, req.DocumentID, StageFetching, true, func(c context.Context) error {
		var ferr error
		data, ferr = o.fetcher.Fetch(c, req.DocumentID)
		return ferr
	})
	if err != nil {
		return o.failed(req.DocumentID, err)
	}

	// Extracting (parse failures are never fixed by retrying).
	var raw *models.RawContent
	err = o.runStage(ctx, req.DocumentID, StageExtracting, false, func(c context.Context) error {
		kind, kerr := extract.KindFromFilename(req.DocumentID)
		if kerr != nil {
			return kerr
		}
		var xerr error
		raw, xerr = o.extractor.Extract(c, data, kind)
		return xerr
	})
	data = nil
	if err != nil {
		return o.failed(req.DocumentID, err)
	}

	// Cleaning and Chunking are pure and cannot fail.
	o.states.set(req.DocumentID, StageCleaning)
	cleaned := o.cleaner.Clean(raw)

	o.states.set(req.DocumentID, StageChunking)
	chunks := o.chunker.Chunk(cleaned)
	meta := raw.Metadata
	raw = nil

	// Embedding (provider faults retried up to the ceiling). Zero chunks
	// skip the provider entirely; the document is still indexed below so
	// stale fragments are removed.
	var vectors [][]float32
	err = o.runStage(ctx, req.DocumentID, StageEmbedding, true, func(c context.Context) error {
		if len(chunks) == 0 {
			vectors = nil
			return nil
		}
		texts := make([]string, len(chunks))
		for i := range chunks {
			texts[i] = chunks[i].Text
		}
		vecs, eerr := o.embedder.EmbedChunks(c, texts)
		if eerr != nil {
			return eerr
		}
		if verr := validateVectors(vecs, len(chunks)); verr != nil {
			return verr
		}
		vectors = vecs
		return nil
	})
	if err != nil {
		return o.failed(req.DocumentID, err)
	}

	// Indexing (replace-before-write; transient write faults retried).
	records := buildRecords(req, meta, chunks, vectors)
	err = o.runStage(ctx, req.DocumentID, StageIndexing, true, func(c context.Context) error {
		return o.indexer.IndexDocument(c, req.DocumentID, records)
	})
	if err != nil {
		return o.failed(req.DocumentID, err)
	}

	o.states.set(req.DocumentID, StageCompleted)
	o.metrics.Completed.Inc()
	o.logger.Info("document ingested",
		"document_id", req.DocumentID,
		"fragments", len(records),
		"elapsed", time.Since(start))
	return Outcome{Completed: true}
}

func (o *Orchestrator) runStage(ctx context.Context, documentID string, stage Stage, retryable bool, fn func(context.Context) error) error {
	o.states.set(documentID, stage)
	start := time.Now()

	var err error
	if retryable {
		err = o.retry.Do(ctx, func() error { return fn(ctx) })
	} else {
		err = fn(ctx)
	}

	o.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.metrics.StageTotal.WithLabelValues(string(stage), result).Inc()
	return err
}

func (o *Orchestrator) failed(documentID string, err error) Outcome {
	reason := core.Reason(err)
	o.states.fail(documentID, reason)
	o.logger.Error("pipeline run failed",
		"document_id", documentID,
		"reason", reason,
		"err", err)
	return Outcome{Reason: reason, Err: err}
}

// validateVectors enforces the alignment invariant: one vector per
// chunk, every vector exactly EmbeddingDim wide. Violations are
// provider faults so the batch is retried as a whole.
func validateVectors(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: got %d vectors for %d chunks", core.ErrProvider, len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) != core.EmbeddingDim {
			return fmt.Errorf("%w: vector %d has %d components, want %d", core.ErrProvider, i, len(v), core.EmbeddingDim)
		}
	}
	return nil
}

// buildRecords joins request metadata with extracted native metadata
// onto every fragment. The request title wins over the embedded one,
// mirroring how the triggering system names documents.
func buildRecords(req models.IngestionRequest, meta models.DocumentMetadata, chunks []models.Chunk, vectors [][]float32) []models.IndexRecord {
	title := req.Metadata.Title
	if title == "" {
		title = meta.Title
	}
	recordMeta := models.RecordMetadata{
		Titulo:            title,
		Descripcion:       req.Metadata.Description,
		TipoDocumento:     req.Metadata.DocumentType,
		Autor:             meta.Author,
		FechaCreacion:     meta.CreatedAt,
		FechaModificacion: meta.ModifiedAt,
		Paginas:           meta.PageCount,
	}

	records := make([]models.IndexRecord, len(chunks))
	for i := range chunks {
		records[i] = models.IndexRecord{
			DocumentID:      req.DocumentID,
			ChunkSequenceNo: chunks[i].SequenceNo,
			Text:            chunks[i].Text,
			Vector:          vectors[i],
			IsPublic:        req.IsPublic,
			AreaIDs:         req.AreaIDs,
			Metadata:        recordMeta,
		}
	}
	return records
}
