package pipeline

import (
	"unicode"

	"github.com/gestordocs/ingestor/internal/models"
)

// ChunkerConfig tunes fragmentation of cleaned text.
//
// MaxChars bounds every chunk; OverlapChars is carried verbatim from the
// tail of one chunk into the head of the next so retrieval keeps
// cross-boundary context.
type ChunkerConfig struct {
	MaxChars     int
	OverlapChars int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{MaxChars: 1000, OverlapChars: 200}
}

// Chunker splits cleaned text into overlapping, bounded fragments.
// Splitting prefers paragraph, then sentence, then word boundaries and
// never lands inside a word. The output is a pure function of the input
// text and the config.
type Chunker struct {
	cfg ChunkerConfig
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultChunkerConfig().MaxChars
	}
	if cfg.OverlapChars < 0 || cfg.OverlapChars >= cfg.MaxChars {
		cfg.OverlapChars = cfg.MaxChars / 5
	}
	return &Chunker{cfg: cfg}
}

// Chunk fragments cleaned into ordered chunks with rune spans into
// cleaned.Text(). Empty input yields zero chunks, which is valid: the
// document is then indexed with zero fragments.
func (c *Chunker) Chunk(cleaned models.CleanedText) []models.Chunk {
	text := []rune(cleaned.Text())
	if len(text) == 0 {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	for {
		end := start + c.cfg.MaxChars
		if end >= len(text) {
			chunks = append(chunks, models.Chunk{
				SequenceNo: len(chunks),
				Text:       string(text[start:]),
				CharStart:  start,
				CharEnd:    len(text),
			})
			return chunks
		}

		end = splitPoint(text, start, end)
		chunks = append(chunks, models.Chunk{
			SequenceNo: len(chunks),
			Text:       string(text[start:end]),
			CharStart:  start,
			CharEnd:    end,
		})

		next := end - c.cfg.OverlapChars
		if next <= start {
			// Guarantee forward progress on pathological inputs.
			next = start + 1
		}
		start = next
	}
}

// splitPoint picks the best boundary in (start, limit]: the last
// paragraph break, else the last sentence end, else the last space.
// With no whitespace at all the cut falls at the limit; a single run
// longer than MaxChars cannot be kept whole.
func splitPoint(text []rune, start, limit int) int {
	lastSpace := -1
	lastSentence := -1
	lastParagraph := -1

	for i := start + 1; i <= limit && i < len(text); i++ {
		r := text[i-1]
		if r == '\n' && i < len(text) && text[i] == '\n' {
			lastParagraph = i
		}
		if !unicode.IsSpace(r) {
			continue
		}
		lastSpace = i
		if i >= start+2 {
			prev := text[i-2]
			if prev == '.' || prev == '!' || prev == '?' {
				lastSentence = i
			}
		}
	}

	switch {
	case lastParagraph > start:
		return lastParagraph
	case lastSentence > start:
		return lastSentence
	case lastSpace > start:
		return lastSpace
	default:
		return limit
	}
}
