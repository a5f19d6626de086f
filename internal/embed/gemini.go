package embed

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/gestordocs/ingestor/internal/config"
	"github.com/gestordocs/ingestor/internal/core"
)

// GeminiEmbedder uses the Gemini embedding API. The API has no
// output-dimensionality parameter, so the wider native vectors are cut
// down to the pipeline width with fitVector before they leave this
// package.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	batchSize int
	logger    *slog.Logger
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.Config) (*GeminiEmbedder, error) {
	if cfg.EmbedAPIKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.EmbedAPIKey))
	if err != nil {
		return nil, err
	}
	model := cfg.EmbedModel
	if model == "" {
		model = "gemini-embedding-001"
	}
	batch := cfg.EmbedBatchSize
	if batch < 1 {
		batch = 32
	}
	return &GeminiEmbedder{
		client:    cl,
		modelName: model,
		batchSize: batch,
		logger:    slog.Default().With("component", "embed.gemini"),
	}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedChunks embeds the texts in order, splitting the work into
// fixed-size API batches.
func (g *GeminiEmbedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, classifyEmbedError(fmt.Errorf("gemini batch embed: %w", err))
		}
		for _, e := range resp.Embeddings {
			vec, fitErr := fitVector(e.Values, core.EmbeddingDim)
			if fitErr != nil {
				return nil, fitErr
			}
			out = append(out, vec)
		}
	}

	g.logger.Debug("chunks embedded", "texts", len(texts), "batch_size", g.batchSize)
	return out, nil
}

// fitVector reduces a vector to dim components. Gemini embedding models
// are trained so a truncated prefix stays a valid embedding once
// re-normalized to unit length. A vector narrower than dim cannot be
// widened and is a provider fault.
func fitVector(v []float32, dim int) ([]float32, error) {
	if len(v) < dim {
		return nil, fmt.Errorf("%w: got %d components, need %d", core.ErrProvider, len(v), dim)
	}
	out := make([]float32, dim)
	copy(out, v[:dim])

	var sum float64
	for _, x := range out {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out, nil
	}
	norm := float32(math.Sqrt(sum))
	for i := range out {
		out[i] /= norm
	}
	return out, nil
}
