package extract

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/models"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPresentation maps each slide to one page. Shape text is grouped
// per a:p paragraph into lines; a:tbl graphic frames become Tables.
// Unreadable slides are skipped and counted.
func (e *Extractor) extractPresentation(data []byte) (*models.RawContent, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}

	type slidePart struct {
		no   int
		name string
	}
	var slides []slidePart
	for _, f := range zr.File {
		if m := slidePartRe.FindStringSubmatch(f.Name); m != nil {
			no, _ := strconv.Atoi(m[1])
			slides = append(slides, slidePart{no: no, name: f.Name})
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("%w: package has no slides", core.ErrCorruptDocument)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].no < slides[j].no })

	md := readCoreProperties(zr)
	md.PageCount = len(slides)
	rc := &models.RawContent{Metadata: md}

	for _, s := range slides {
		raw, partErr := readPart(zr, s.name)
		if partErr != nil {
			rc.Metadata.SkippedPages++
			continue
		}
		lines, grids, parseErr := parseSlide(raw)
		if parseErr != nil {
			e.logger.Warn("skipping unreadable slide", "slide", s.no, "err", parseErr)
			rc.Metadata.SkippedPages++
			continue
		}
		if len(lines) > 0 {
			rc.Pages = append(rc.Pages, models.PageText{Index: len(rc.Pages), Lines: lines})
		}
		for _, grid := range grids {
			if tbl, ok := tableFromGrid(grid); ok {
				tbl.Index = len(rc.Tables) + 1
				rc.Tables = append(rc.Tables, tbl)
			}
		}
	}

	return rc, nil
}

// parseSlide walks slide XML once, splitting a:t runs between flowing
// paragraphs and table cells depending on the enclosing element.
func parseSlide(raw []byte) (lines []string, grids [][][]string, err error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		para    strings.Builder
		cell    strings.Builder
		row     []string
		grid    [][]string
		inTable bool
		inCell  bool
		inText  bool
	)

	for {
		tok, tokErr := dec.Token()
		if tokErr == io.EOF {
			break
		}
		if tokErr != nil {
			return nil, nil, tokErr
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				inTable = true
				grid = nil
			case "tr":
				if inTable {
					row = nil
				}
			case "tc":
				if inTable {
					inCell = true
					cell.Reset()
				}
			case "p":
				if !inTable {
					para.Reset()
				}
			case "t":
				inText = true
			}
		case xml.CharData:
			if !inText {
				continue
			}
			if inCell {
				cell.Write(t)
			} else if !inTable {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if !inTable {
					if s := strings.TrimSpace(para.String()); s != "" {
						lines = append(lines, s)
					}
				}
			case "tc":
				if inTable && inCell {
					row = append(row, strings.TrimSpace(cell.String()))
					inCell = false
				}
			case "tr":
				if inTable && len(row) > 0 {
					grid = append(grid, row)
				}
			case "tbl":
				if inTable && len(grid) > 0 {
					grids = append(grids, grid)
				}
				inTable = false
			}
		}
	}
	return lines, grids, nil
}
