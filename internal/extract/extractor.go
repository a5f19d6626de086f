// Package extract turns raw document bytes into structured RawContent.
// One variant per document kind; selection is a pure mapping from the
// declared file name to the closed kind set.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

var _ core.Extractor = (*Extractor)(nil)

type Extractor struct {
	logger *slog.Logger
}

func New() *Extractor {
	return &Extractor{logger: slog.Default().With("component", "extractor")}
}

// KindFromFilename maps a document file name to its extractor variant.
func KindFromFilename(name string) (models.Kind, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return models.KindPDF, nil
	case ".doc", ".docx":
		return models.KindWord, nil
	case ".xls", ".xlsx":
		return models.KindExcel, nil
	case ".ppt", ".pptx":
		return models.KindPresentation, nil
	default:
		return models.KindUnknown, fmt.Errorf("%w: extension %q", core.ErrUnsupportedKind, path.Ext(name))
	}
}

// Extract parses data with the variant for kind. Pages that fail to parse
// are skipped and counted in metadata; only an unreadable document as a
// whole fails.
func (e *Extractor) Extract(ctx context.Context, data []byte, kind models.Kind) (*models.RawContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		rc  *models.RawContent
		err error
	)
	switch kind {
	case models.KindPDF:
		rc, err = e.extractPDF(data)
	case models.KindWord:
		rc, err = e.extractWord(data)
	case models.KindExcel:
		rc, err = e.extractExcel(data)
	case models.KindPresentation:
		rc, err = e.extractPresentation(data)
	default:
		return nil, fmt.Errorf("%w: %v", core.ErrUnsupportedKind, kind)
	}
	if err != nil {
		return nil, err
	}

	rc.Kind = kind
	if rc.Metadata.SkippedPages > 0 {
		e.logger.Warn("partial extraction",
			"kind", kind.String(),
			"pages", len(rc.Pages),
			"skipped", rc.Metadata.SkippedPages)
	}
	return rc, nil
}

// splitLines breaks flowing text into trimmed, non-empty lines.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
