package core

import (
	"context"

	"github.com/gestordocs/ingestor/internal/models"
)

// EmbeddingDim is the fixed dimensionality of every vector written to the
// search store. Providers returning any other length are rejected.
const EmbeddingDim = 384

// Fetcher retrieves raw document bytes from remote storage.
// Implementations release any local transfer resources on every exit
// path and classify failures as ErrNotFound, ErrTransient or ErrSizeLimit.
type Fetcher interface {
	Fetch(ctx context.Context, documentID string) ([]byte, error)
}

// Extractor turns raw bytes into structured content for one document kind.
// Partial extraction (some pages unreadable) is reported as success with
// the failed pages omitted and counted in metadata; only an irrecoverable
// parse fails with ErrCorruptDocument.
type Extractor interface {
	Extract(ctx context.Context, data []byte, kind models.Kind) (*models.RawContent, error)
}

// Embedder maps chunk texts to fixed-dimension vectors, batching requests
// to the external provider. Output length always equals input length; a
// single failed item fails the whole batch so vector-to-chunk alignment
// is never ambiguous.
type Embedder interface {
	EmbedChunks(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer replaces all fragments for a document id with the given set.
// The replace happens before or atomically with the write, so reprocessing
// never leaves stale fragments. An empty record set is a valid write:
// prior fragments are still removed.
type Indexer interface {
	IndexDocument(ctx context.Context, documentID string, records []models.IndexRecord) error
}
