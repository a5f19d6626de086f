// Package embed turns chunk text into dense vectors through an
// external provider. Providers batch requests, preserve input order,
// and classify faults as transient (network) or provider (API).
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gestordocs/ingestor/internal/config"
	"github.com/gestordocs/ingestor/internal/core"
)

// OpenAIEmbedder calls any OpenAI-compatible embeddings endpoint,
// including self-hosted gateways in front of sentence-transformer
// models. Batching and newline stripping are delegated to the client.
type OpenAIEmbedder struct {
	embedder  *embeddings.EmbedderImpl
	batchSize int
	logger    *slog.Logger
}

func NewOpenAIEmbedder(cfg *config.Config) (*OpenAIEmbedder, error) {
	if cfg.EmbedHost == "" {
		return nil, fmt.Errorf("embedding host not set")
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.EmbedHost),
		openai.WithToken(cfg.EmbedAPIKey),
		openai.WithEmbeddingModel(cfg.EmbedModel),
	)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.EmbedBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return &OpenAIEmbedder{
		embedder:  embedder,
		batchSize: cfg.EmbedBatchSize,
		logger:    slog.Default().With("component", "embed.openai"),
	}, nil
}

// EmbedChunks embeds the texts in order. One vector per input text.
func (e *OpenAIEmbedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classifyEmbedError(err)
	}
	e.logger.Debug("chunks embedded", "texts", len(texts), "batch_size", e.batchSize)
	return vecs, nil
}

// classifyEmbedError separates connectivity faults from API rejections.
// Both are retried upstream; the distinction matters for the reason
// recorded when retries run out.
func classifyEmbedError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: embedding endpoint unreachable: %v", core.ErrTransient, err)
	}
	return fmt.Errorf("%w: embedding request failed: %v", core.ErrProvider, err)
}
