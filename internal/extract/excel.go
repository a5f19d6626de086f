package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

// extractExcel treats each sheet as one page (row per line) and one
// Table whose column names come from the sheet's first non-empty row.
// A sheet that fails to read is skipped and counted, not fatal.
func (e *Extractor) extractExcel(data []byte) (*models.RawContent, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx open: %v", core.ErrCorruptDocument, err)
	}
	defer f.Close()

	rc := &models.RawContent{Metadata: excelMetadata(f)}
	sheets := f.GetSheetList()
	rc.Metadata.PageCount = len(sheets)

	for _, sheet := range sheets {
		rows, rowErr := f.GetRows(sheet)
		if rowErr != nil {
			e.logger.Warn("skipping unreadable sheet", "sheet", sheet, "err", rowErr)
			rc.Metadata.SkippedPages++
			continue
		}

		var lines []string
		var grid [][]string
		for _, cells := range rows {
			trimmed := trimRow(cells)
			if len(trimmed) == 0 {
				continue
			}
			lines = append(lines, strings.Join(trimmed, " "))
			grid = append(grid, trimmed)
		}
		if len(lines) == 0 {
			continue
		}

		rc.Pages = append(rc.Pages, models.PageText{Index: len(rc.Pages), Lines: lines})
		if tbl, ok := tableFromGrid(grid); ok {
			tbl.Index = len(rc.Tables) + 1
			rc.Tables = append(rc.Tables, tbl)
		}
	}

	return rc, nil
}

func excelMetadata(f *excelize.File) models.DocumentMetadata {
	var md models.DocumentMetadata
	props, err := f.GetDocProps()
	if err != nil || props == nil {
		return md
	}
	md.Title = props.Title
	md.Author = props.Creator
	md.CreatedAt = props.Created
	md.ModifiedAt = props.Modified
	return md
}

// trimRow drops trailing empty cells and returns nil for all-empty rows.
func trimRow(cells []string) []string {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	if end == 0 {
		return nil
	}
	out := make([]string, end)
	for i := 0; i < end; i++ {
		out[i] = strings.TrimSpace(cells[i])
	}
	return out
}
