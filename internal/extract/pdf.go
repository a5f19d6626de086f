package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

// cellGapPoints is the horizontal whitespace (in PDF points) that
// separates two table cells on the same row. Rows carrying two or more
// cells, stacked with a constant cell count, are treated as a table.
const cellGapPoints = 18.0

// minTableRows is the minimum stacked rows before the column heuristic
// accepts a region as a table rather than spaced prose.
const minTableRows = 2

// extractPDF walks pages in visual order, keeping row-ordered lines per
// page. The underlying parser panics on some malformed files, so the
// whole pass is recovered into ErrCorruptDocument.
func (e *Extractor) extractPDF(data []byte) (rc *models.RawContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			rc, err = nil, fmt.Errorf("%w: pdf parse: %v", core.ErrCorruptDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: pdf open: %v", core.ErrCorruptDocument, err)
	}

	rc = &models.RawContent{Metadata: pdfMetadata(reader)}
	rc.Metadata.PageCount = reader.NumPage()

	tableIndex := 0
	for pageNo := 1; pageNo <= reader.NumPage(); pageNo++ {
		page := reader.Page(pageNo)
		if page.V.IsNull() {
			rc.Metadata.SkippedPages++
			continue
		}

		rows, rowErr := page.GetTextByRow()
		if rowErr != nil {
			e.logger.Warn("skipping unreadable pdf page", "page", pageNo, "err", rowErr)
			rc.Metadata.SkippedPages++
			continue
		}

		var lines []string
		var cellRows [][]string
		for _, row := range rows {
			cells := splitRowCells(row)
			if line := strings.TrimSpace(strings.Join(cells, " ")); line != "" {
				lines = append(lines, line)
			}
			cellRows = append(cellRows, cells)
		}
		if len(lines) > 0 {
			rc.Pages = append(rc.Pages, models.PageText{Index: len(rc.Pages), Lines: lines})
		}

		for _, tbl := range tablesFromCells(cellRows) {
			tableIndex++
			tbl.Index = tableIndex
			rc.Tables = append(rc.Tables, tbl)
		}
	}

	return rc, nil
}

func pdfMetadata(reader *pdf.Reader) models.DocumentMetadata {
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return models.DocumentMetadata{}
	}
	return models.DocumentMetadata{
		Title:      info.Key("Title").Text(),
		Author:     info.Key("Author").Text(),
		CreatedAt:  info.Key("CreationDate").Text(),
		ModifiedAt: info.Key("ModDate").Text(),
	}
}

// splitRowCells groups a row's positioned text runs into cells separated
// by wide horizontal gaps.
func splitRowCells(row *pdf.Row) []string {
	var cells []string
	var cell strings.Builder
	var prevEnd float64
	for i, t := range row.Content {
		if i > 0 && t.X-prevEnd > cellGapPoints && cell.Len() > 0 {
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		}
		cell.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	if s := strings.TrimSpace(cell.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}

// tablesFromCells finds runs of consecutive rows sharing a constant cell
// count >= 2 and lifts them into Tables, first row as column names.
// Purely lattice-less: PDFs carry no native table markup.
func tablesFromCells(cellRows [][]string) []models.Table {
	var tables []models.Table
	var run [][]string

	flush := func() {
		if len(run) >= minTableRows {
			if tbl, ok := tableFromGrid(run); ok {
				tables = append(tables, tbl)
			}
		}
		run = nil
	}

	for _, cells := range cellRows {
		if len(cells) >= 2 && (len(run) == 0 || len(cells) == len(run[0])) {
			run = append(run, cells)
			continue
		}
		flush()
		if len(cells) >= 2 {
			run = append(run, cells)
		}
	}
	flush()
	return tables
}
