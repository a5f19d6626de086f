package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/gestordocs/ingestor/internal/config"
	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

// PgVectorIndexer persists fragments in Postgres with the pgvector
// extension. Replacement is a single transaction so readers never see
// a half-written document.
type PgVectorIndexer struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

func NewPgVectorIndexer(ctx context.Context, cfg *config.Config) (*PgVectorIndexer, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	table := sanitizeIdentifier(cfg.IndexName)
	idx := &PgVectorIndexer{
		db:     db,
		table:  table,
		logger: slog.Default().With("component", "index.pgvector"),
	}
	if err := idx.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PgVectorIndexer) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *PgVectorIndexer) ensureSchema(ctx context.Context) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id       text NOT NULL,
			chunk_sequence_no integer NOT NULL,
			text              text NOT NULL,
			embedding         vector(%d) NOT NULL,
			is_public         boolean NOT NULL,
			area_ids          text[] NOT NULL DEFAULT '{}',
			metadata          jsonb NOT NULL DEFAULT '{}',
			indexed_at        timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (document_id, chunk_sequence_no)
		)`, p.table, core.EmbeddingDim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctxBoot, stmt); err != nil {
			return classifyPgError(fmt.Errorf("ensure schema: %w", err))
		}
	}
	return nil
}

// IndexDocument replaces the document's fragment set atomically.
// An empty record set still deletes whatever older versions left behind.
func (p *PgVectorIndexer) IndexDocument(ctx context.Context, documentID string, records []models.IndexRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyPgError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	delQ := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, p.table)
	if _, err := tx.ExecContext(ctx, delQ, documentID); err != nil {
		return classifyPgError(fmt.Errorf("delete fragments: %w", err))
	}

	insQ := fmt.Sprintf(`
		INSERT INTO %s (document_id, chunk_sequence_no, text, embedding, is_public, area_ids, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.table)
	stmt, err := tx.PrepareContext(ctx, insQ)
	if err != nil {
		return classifyPgError(fmt.Errorf("prepare insert: %w", err))
	}
	defer stmt.Close()

	for _, rec := range records {
		metaJSON, err := marshalRecordMetadata(rec.Metadata)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			rec.DocumentID,
			rec.ChunkSequenceNo,
			rec.Text,
			pgvector.NewVector(rec.Vector),
			rec.IsPublic,
			rec.AreaIDs,
			metaJSON,
		)
		if err != nil {
			return classifyPgError(fmt.Errorf("insert fragment %d: %w", rec.ChunkSequenceNo, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyPgError(fmt.Errorf("commit: %w", err))
	}

	p.logger.Debug("document indexed", "document_id", documentID, "fragments", len(records))
	return nil
}

// classifyPgError maps Postgres class 42 (syntax/access/undefined
// object) onto schema faults; everything else is treated as transient
// so the write is retried.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "42") {
		return fmt.Errorf("%w: %v", core.ErrSchema, err)
	}
	return fmt.Errorf("%w: %v", core.ErrTransient, err)
}

// sanitizeIdentifier keeps only characters legal in an unquoted
// Postgres identifier. Index names arrive from configuration and may
// use dashes.
func sanitizeIdentifier(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "document_fragments"
	}
	return b.String()
}
