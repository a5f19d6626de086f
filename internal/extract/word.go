package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

// extractWord reads the document flow through docconv (which resolves the
// native paragraph order) and recovers table structure from the raw
// word/document.xml part, since docconv flattens tables into prose.
// Word has no fixed pagination in the flow, so the text lands on a
// single page.
func (e *Extractor) extractWord(data []byte) (*models.RawContent, error) {
	body, meta, err := docconv.ConvertDocx(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: docx convert: %v", core.ErrCorruptDocument, err)
	}

	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}

	md := readCoreProperties(zr)
	if md.CreatedAt == "" {
		md.CreatedAt = meta["CreatedDate"]
	}
	if md.ModifiedAt == "" {
		md.ModifiedAt = meta["ModifiedDate"]
	}
	md.PageCount = 1

	rc := &models.RawContent{Metadata: md}
	if lines := splitLines(body); len(lines) > 0 {
		rc.Pages = append(rc.Pages, models.PageText{Index: 0, Lines: lines})
	}

	tables, err := parseDocxTables(zr)
	if err != nil {
		return nil, err
	}
	rc.Tables = tables
	return rc, nil
}

// parseDocxTables walks word/document.xml and lifts top-level w:tbl
// elements into Tables, first row as column names. Nested tables are
// folded into their parent cell's text.
func parseDocxTables(zr *zip.Reader) ([]models.Table, error) {
	raw, err := readPart(zr, "word/document.xml")
	if err != nil {
		return nil, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		tables   []models.Table
		grid     [][]string
		row      []string
		cell     strings.Builder
		tblDepth int
		inCell   bool
		inText   bool
	)

	for {
		tok, tokErr := dec.Token()
		if tokErr == io.EOF {
			break
		}
		if tokErr != nil {
			return nil, fmt.Errorf("%w: document.xml: %v", core.ErrCorruptDocument, tokErr)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					grid = nil
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					inCell = true
					cell.Reset()
				}
			case "t":
				inText = inCell
			}
		case xml.CharData:
			if inText {
				cell.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "tc":
				if tblDepth == 1 && inCell {
					row = append(row, strings.TrimSpace(cell.String()))
					inCell = false
				}
			case "tr":
				if tblDepth == 1 && len(row) > 0 {
					grid = append(grid, row)
				}
			case "tbl":
				tblDepth--
				if tblDepth == 0 {
					if tbl, ok := tableFromGrid(grid); ok {
						tbl.Index = len(tables) + 1
						tables = append(tables, tbl)
					}
				}
			}
		}
	}
	return tables, nil
}

// tableFromGrid converts a header row plus data rows into a Table.
// Rows shorter than the header leave the missing columns empty; longer
// rows drop the overflow.
func tableFromGrid(grid [][]string) (models.Table, bool) {
	if len(grid) < 2 {
		return models.Table{}, false
	}
	header := grid[0]
	rows := make([]map[string]string, 0, len(grid)-1)
	for _, r := range grid[1:] {
		m := make(map[string]string, len(header))
		for c, name := range header {
			if c < len(r) {
				m[name] = r[c]
			} else {
				m[name] = ""
			}
		}
		rows = append(rows, m)
	}
	return models.Table{Rows: rows}, true
}
