// Package app wires configuration into the concrete pipeline
// components and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/gestordocs/ingestor/internal/config"
	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/embed"
	"github.com/gestordocs/ingestor/internal/extract"
	"github.com/gestordocs/ingestor/internal/fetch"
	"github.com/gestordocs/ingestor/internal/index"
	"github.com/gestordocs/ingestor/internal/metrics"
	"github.com/gestordocs/ingestor/internal/pipeline"
	"github.com/gestordocs/ingestor/internal/queue"
)

type App struct {
	Orchestrator *pipeline.Orchestrator
	Consumer     *queue.Consumer
	Ops          *OpsServer

	closers []io.Closer
	logger  *slog.Logger
}

// NewApp builds the full component graph from configuration. Backend
// selection (fetch, embed, index) happens here; everything downstream
// sees only the interfaces.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := slog.Default().With("component", "app")
	a := &App{logger: logger}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}

	extractor := extract.New()

	cleaner := pipeline.NewCleaner(pipeline.CleanerConfig{
		CoverMaxLines:        cfg.CoverMaxLines,
		CoverTitleRatio:      cfg.CoverTitleRatio,
		HeaderFooterFraction: cfg.HeaderFooterFraction,
		MinHeaderFooterChars: cfg.MinHeaderFooterChars,
		TOCMaxLabelChars:     cfg.TOCMaxLabelChars,
		FoldOutput:           cfg.FoldCleanedText,
	})

	chunker := pipeline.NewChunker(pipeline.ChunkerConfig{
		MaxChars:     cfg.MaxChunkChars,
		OverlapChars: cfg.ChunkOverlapChars,
	})

	embedder, err := newEmbedder(ctx, cfg, a)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	indexer, err := newIndexer(ctx, cfg, a)
	if err != nil {
		return nil, fmt.Errorf("indexer: %w", err)
	}

	retry := core.RetryPolicy{
		MaxAttempts:     cfg.MaxRetryAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}

	orch, err := pipeline.NewOrchestrator(
		fetcher, extractor, cleaner, chunker, embedder, indexer,
		retry, cfg.Workers, m,
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	a.Orchestrator = orch

	a.Consumer = queue.NewConsumer(cfg, orch, m)
	a.Ops = NewOpsServer(cfg.OpsPort, registry, orch)

	logger.Info("components wired",
		"fetch_backend", cfg.FetchBackend,
		"embed_provider", cfg.EmbedProvider,
		"index_backend", cfg.IndexBackend,
		"workers", cfg.Workers)
	return a, nil
}

// Run blocks until ctx is cancelled or a component fails fatally.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Consumer.Run(gctx)
	})
	g.Go(func() error {
		return a.Ops.Run(gctx)
	})

	err := g.Wait()
	a.Orchestrator.Close()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", "err", err)
		}
	}
}

func newFetcher(ctx context.Context, cfg *config.Config) (core.Fetcher, error) {
	switch cfg.FetchBackend {
	case "sftp":
		return fetch.NewSFTPFetcher(cfg)
	case "s3":
		return fetch.NewS3Fetcher(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", cfg.FetchBackend)
	}
}

func newEmbedder(ctx context.Context, cfg *config.Config, a *App) (core.Embedder, error) {
	switch cfg.EmbedProvider {
	case "openai":
		return embed.NewOpenAIEmbedder(cfg)
	case "gemini":
		e, err := embed.NewGeminiEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, e)
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

func newIndexer(ctx context.Context, cfg *config.Config, a *App) (core.Indexer, error) {
	switch cfg.IndexBackend {
	case "elasticsearch":
		return index.NewElasticIndexer(ctx, cfg)
	case "pgvector":
		idx, err := index.NewPgVectorIndexer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, idx)
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}
