package pipeline

import (
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/gestordocs/ingestor/internal/models"
)

// CleanerConfig holds the noise-removal heuristics. All thresholds are
// policy knobs: corpora differ, so defaults are starting points.
type CleanerConfig struct {
	// CoverMaxLines is the most lines a page may have and still be
	// considered a cover candidate.
	CoverMaxLines int
	// CoverTitleRatio is the minimum fraction of title-like lines for a
	// candidate first page to be excluded as a cover.
	CoverTitleRatio float64
	// HeaderFooterFraction: a normalized edge line recurring on more than
	// this fraction of pages is removed everywhere it appears.
	HeaderFooterFraction float64
	// MinHeaderFooterChars ignores very short edge lines (page numbers
	// are handled by the ToC shape filter instead).
	MinHeaderFooterChars int
	// TOCMaxLabelChars bounds how long a "label ..... page" line's label
	// part may be before the line stops looking like a ToC entry.
	TOCMaxLabelChars int
	// FoldOutput lowercases and accent-folds the cleaned paragraphs,
	// matching the source corpus convention. Folding is always applied
	// for matching and hashing regardless of this flag.
	FoldOutput bool
}

func DefaultCleanerConfig() CleanerConfig {
	return CleanerConfig{
		CoverMaxLines:        8,
		CoverTitleRatio:      0.6,
		HeaderFooterFraction: 0.5,
		MinHeaderFooterChars: 6,
		TOCMaxLabelChars:     80,
	}
}

// Cleaner strips cover pages, table-of-contents lines, repeating
// headers/footers and duplicate paragraphs from extracted text.
// Page order is preserved; tables are untouched (they live separately
// on RawContent).
type Cleaner struct {
	cfg    CleanerConfig
	logger *slog.Logger
}

func NewCleaner(cfg CleanerConfig) *Cleaner {
	def := DefaultCleanerConfig()
	if cfg.CoverMaxLines <= 0 {
		cfg.CoverMaxLines = def.CoverMaxLines
	}
	if cfg.CoverTitleRatio <= 0 {
		cfg.CoverTitleRatio = def.CoverTitleRatio
	}
	if cfg.HeaderFooterFraction <= 0 {
		cfg.HeaderFooterFraction = def.HeaderFooterFraction
	}
	if cfg.MinHeaderFooterChars <= 0 {
		cfg.MinHeaderFooterChars = def.MinHeaderFooterChars
	}
	if cfg.TOCMaxLabelChars <= 0 {
		cfg.TOCMaxLabelChars = def.TOCMaxLabelChars
	}
	return &Cleaner{cfg: cfg, logger: slog.Default().With("component", "cleaner")}
}

// coverKeywords flag title-page/front-matter lines in either language of
// the source corpus.
var coverKeywords = []string{
	"indice", "index", "contenido", "contents", "tabla de contenido",
	"table of contents", "resumen ejecutivo", "executive summary",
}

var tocTailRe = regexp.MustCompile(`^(.*?)([ .\-·]{2,})(\d{1,4})$`)

// Clean runs the four passes in order: cover exclusion, header/footer
// removal, ToC filtering, then paragraph reconstruction with duplicate
// removal. All matching happens on whitespace/case/accent-normalized
// forms so formatting variance does not defeat the heuristics.
func (c *Cleaner) Clean(rc *models.RawContent) models.CleanedText {
	pages := rc.Pages
	if len(pages) > 0 && c.isCoverPage(pages[0]) {
		c.logger.Debug("excluding cover page", "lines", len(pages[0].Lines))
		pages = pages[1:]
	}

	repeating := c.repeatingEdgeLines(pages)

	var paragraphs []string
	seen := make(map[uint64]struct{})
	for _, page := range pages {
		var kept []string
		for _, line := range page.Lines {
			if normKey(line) == "" {
				continue
			}
			if _, ok := repeating[edgeKey(line)]; ok {
				continue
			}
			if c.isTOCLine(line) {
				continue
			}
			kept = append(kept, strings.TrimSpace(line))
		}

		for _, para := range reconstructParagraphs(kept) {
			h := fnv.New64a()
			h.Write([]byte(normKey(para)))
			sum := h.Sum64()
			if _, dup := seen[sum]; dup {
				continue
			}
			seen[sum] = struct{}{}
			if c.cfg.FoldOutput {
				para = foldText(para)
			}
			paragraphs = append(paragraphs, para)
		}
	}

	return models.CleanedText{Paragraphs: paragraphs}
}

// isCoverPage: few lines, mostly title-like, or explicit front-matter
// keywords. Only ever applied to the first page.
func (c *Cleaner) isCoverPage(page models.PageText) bool {
	total := len(page.Lines)
	if total == 0 || total > c.cfg.CoverMaxLines {
		return false
	}
	titleLike := 0
	for _, line := range page.Lines {
		if isTitleLine(line) || hasCoverKeyword(line) {
			titleLike++
		}
	}
	return float64(titleLike) >= c.cfg.CoverTitleRatio*float64(total)
}

// isTitleLine: short, starts with an uppercase letter (or is all caps),
// and does not end like a sentence.
func isTitleLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	words := strings.Fields(line)
	if len(words) > 8 {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") {
		return false
	}
	first := []rune(line)[0]
	return unicode.IsUpper(first) || unicode.IsDigit(first)
}

func hasCoverKeyword(line string) bool {
	folded := foldText(line)
	for _, kw := range coverKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// repeatingEdgeLines counts the normalized first and last line of each
// page and returns those recurring on more than the configured fraction
// of pages.
func (c *Cleaner) repeatingEdgeLines(pages []models.PageText) map[string]struct{} {
	if len(pages) < 2 {
		return nil
	}

	counts := make(map[string]int)
	for _, page := range pages {
		if len(page.Lines) == 0 {
			continue
		}
		edges := map[string]struct{}{edgeKey(page.Lines[0]): {}}
		if len(page.Lines) > 1 {
			edges[edgeKey(page.Lines[len(page.Lines)-1])] = struct{}{}
		}
		// Count each edge line once per page, however often it appears.
		for key := range edges {
			if len(key) >= c.cfg.MinHeaderFooterChars {
				counts[key]++
			}
		}
	}

	threshold := c.cfg.HeaderFooterFraction * float64(len(pages))
	repeating := make(map[string]struct{})
	for key, n := range counts {
		if float64(n) > threshold {
			repeating[key] = struct{}{}
		}
	}
	return repeating
}

// isTOCLine matches the "label ···· pageNumber" shape: a trailing digit
// run, reached over a fill of dots/dashes or a wide gap, after a short
// label.
func (c *Cleaner) isTOCLine(line string) bool {
	m := tocTailRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return false
	}
	label := strings.TrimSpace(m[1])
	fill := m[2]
	if label == "" || len([]rune(label)) > c.cfg.TOCMaxLabelChars {
		return false
	}
	if strings.Count(fill, ".")+strings.Count(fill, "-")+strings.Count(fill, "·") >= 3 {
		return true
	}
	// A run of spaces before the number also reads as a ToC column, as
	// long as the label is not a sentence.
	return strings.Contains(fill, "  ") && !strings.HasSuffix(label, ".")
}

// reconstructParagraphs rebuilds paragraphs from fragmented lines:
// sentence-ending punctuation closes a paragraph, a lowercase start
// continues the current one, anything else opens a new one.
func reconstructParagraphs(lines []string) []string {
	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
	}

	for _, line := range lines {
		switch {
		case strings.HasSuffix(line, ".") || strings.HasSuffix(line, "!") || strings.HasSuffix(line, "?"):
			current = append(current, line)
			flush()
		case len(current) > 0 && startsLower(line):
			current = append(current, line)
		default:
			flush()
			current = []string{line}
		}
	}
	flush()
	return paragraphs
}

func startsLower(line string) bool {
	for _, r := range line {
		return unicode.IsLower(r)
	}
	return false
}

// normKey normalizes a line for duplicate matching: collapsed
// whitespace, lowercased, accents folded.
func normKey(line string) string {
	return foldText(strings.Join(strings.Fields(line), " "))
}

var digitRunRe = regexp.MustCompile(`\d+`)

// edgeKey additionally masks digit runs so running headers/footers that
// differ only in a page counter still match across pages.
func edgeKey(line string) string {
	return digitRunRe.ReplaceAllString(normKey(line), "#")
}

// foldText lowercases and strips combining marks (NFD decomposition),
// the same normalization the source corpus applies.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}
