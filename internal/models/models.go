package models

import "strings"

// Kind identifies the document family an extractor variant handles.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindWord
	KindExcel
	KindPresentation
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindWord:
		return "word"
	case KindExcel:
		return "excel"
	case KindPresentation:
		return "presentation"
	default:
		return "unknown"
	}
}

// IngestionRequest is the validated form of an incoming queue message.
// It identifies exactly one document version and is immutable once built.
type IngestionRequest struct {
	DocumentID string
	IsPublic   bool
	Metadata   RequestMetadata
	AreaIDs    []string
}

// RequestMetadata carries the descriptive fields delivered with the message.
type RequestMetadata struct {
	Title        string
	Description  string
	DocumentType string
}

// DocumentMetadata holds native metadata collected during extraction.
// SkippedPages counts pages the extractor could not parse and omitted.
type DocumentMetadata struct {
	Author       string
	Title        string
	CreatedAt    string
	ModifiedAt   string
	PageCount    int
	SkippedPages int
}

// PageText is the line-ordered text of one source page (or slide/sheet).
type PageText struct {
	Index int
	Lines []string
}

// Table preserves row/column structure from the source document.
// The column set is fixed per table; row order follows the source.
type Table struct {
	Index int
	Rows  []map[string]string
}

// RawContent is the extractor output for a single pipeline run.
// Pages and Tables keep source order. Discarded after chunking.
type RawContent struct {
	Kind     Kind
	Pages    []PageText
	Tables   []Table
	Metadata DocumentMetadata
}

// CleanedText is the ordered paragraph sequence left after noise removal.
type CleanedText struct {
	Paragraphs []string
}

// Text joins the paragraphs into the single stream the chunker consumes.
// Chunk spans are rune offsets into this string.
func (c CleanedText) Text() string {
	return strings.Join(c.Paragraphs, "\n\n")
}

// Chunk is one retrieval fragment of a document's cleaned text.
// Chunks from the same document are totally ordered by SequenceNo;
// CharStart/CharEnd are rune offsets into CleanedText.Text() and may
// overlap across adjacent chunks.
type Chunk struct {
	SequenceNo int
	Text       string
	CharStart  int
	CharEnd    int
}

// RecordMetadata is the metadata object persisted on every fragment.
// Field names follow the search-store record contract.
type RecordMetadata struct {
	Titulo            string `json:"titulo"`
	Descripcion       string `json:"descripcion"`
	TipoDocumento     string `json:"tipo_documento"`
	Autor             string `json:"autor,omitempty"`
	FechaCreacion     string `json:"fecha_creacion,omitempty"`
	FechaModificacion string `json:"fecha_modificacion,omitempty"`
	Paginas           int    `json:"paginas,omitempty"`
}

// IndexRecord is the unit persisted to the search store: one fragment
// with its vector and the access-control fields used for filtering.
type IndexRecord struct {
	DocumentID      string         `json:"document_id"`
	ChunkSequenceNo int            `json:"chunk_sequence_no"`
	Text            string         `json:"text"`
	Vector          []float32      `json:"vector"`
	IsPublic        bool           `json:"is_public"`
	AreaIDs         []string       `json:"area_ids"`
	Metadata        RecordMetadata `json:"metadata"`
}
