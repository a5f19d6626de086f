package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "gestor-documental-movimientos", cfg.Queue)
	assert.Equal(t, "gestor-documental-movimientos.DLQ", cfg.DeadLetterQueue)
	assert.Equal(t, "sftp", cfg.FetchBackend)
	assert.Equal(t, int64(50<<20), cfg.FetchMaxBytes)
	assert.Equal(t, 1000, cfg.MaxChunkChars)
	assert.Equal(t, 200, cfg.ChunkOverlapChars)
	assert.Equal(t, 32, cfg.EmbedBatchSize)
	assert.Equal(t, 3, cfg.MaxRetryAttempts)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 6, cfg.MinHeaderFooterChars)
	assert.Equal(t, 0.5, cfg.HeaderFooterFraction)
}

func TestLoadConfigCleaningOverrides(t *testing.T) {
	t.Setenv("CLEAN_MIN_HEADER_FOOTER_CHARS", "10")
	t.Setenv("CLEAN_HEADER_FOOTER_FRACTION", "0.7")

	cfg := LoadConfig()
	assert.Equal(t, 10, cfg.MinHeaderFooterChars)
	assert.Equal(t, 0.7, cfg.HeaderFooterFraction)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BROKER_QUEUE", "docs-in")
	t.Setenv("BROKER_DLQ", "docs-dead")
	t.Setenv("WORKERS", "8")
	t.Setenv("RETRY_INITIAL_INTERVAL", "250ms")
	t.Setenv("CLEAN_FOLD_TEXT", "true")

	cfg := LoadConfig()
	assert.Equal(t, "docs-in", cfg.Queue)
	assert.Equal(t, "docs-dead", cfg.DeadLetterQueue)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInitialInterval)
	assert.True(t, cfg.FoldCleanedText)
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("WORKERS", "many")
	t.Setenv("CLEAN_COVER_TITLE_RATIO", "lots")

	cfg := LoadConfig()
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 0.6, cfg.CoverTitleRatio)
}
