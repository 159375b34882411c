package models

// Source types recognized by the parser.
const (
	SourcePDF  = "pdf"
	SourceCSV  = "csv"
	SourceTXT  = "txt"
	SourceMD   = "md"
	SourceDOCX = "docx"
	SourceXLSX = "xlsx"
	SourceODS  = "ods"
)

// Document is an uploaded file after text extraction. It only lives
// until its chunks have been indexed.
type Document struct {
	ID         string
	Filename   string
	SourceType string
	Text       string
}

// Chunk is a contiguous segment of a document's text. Start and End are
// byte offsets into the extracted text; consecutive chunks overlap by
// the configured overlap length.
type Chunk struct {
	Content  string
	Source   string // source document filename
	DocID    string
	Position int
	Start    int
	End      int
}

// ChunkEmbedding pairs a chunk with its vector, ready for indexing.
type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

// SearchResult is one nearest-neighbor match, most similar first in a
// result slice. Score is higher-is-better across all index backends.
type SearchResult struct {
	ID       string
	Content  string
	Source   string
	Position int
	Score    float32
}

// SourceRef cites the document and chunk position an answer drew from.
type SourceRef struct {
	Document string `json:"document"`
	Position int    `json:"position"`
}

// Answer is the outcome of a query. Refused means the model (or the
// similarity gate) determined the indexed content does not address the
// question; it is a successful outcome, not an error.
type Answer struct {
	Content string      `json:"answerText"`
	Sources []SourceRef `json:"sources"`
	Refused bool        `json:"refused"`
}
