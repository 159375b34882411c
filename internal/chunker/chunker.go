package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/seyitcvk/chatbot-rag/internal/models"
)

// DefaultSeparators is the split hierarchy, highest priority first: a
// chunk boundary prefers a paragraph break over a line break, a line
// break over a sentence end, and so on down to plain whitespace. A raw
// rune boundary is the implicit last resort.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " "}

// Chunker splits document text into overlapping windows of at most Size
// bytes. Each window after the first starts Overlap bytes before the end
// of the previous one, so neighbouring chunks share an Overlap-byte
// region and no semantic unit is lost at a boundary.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d with size %d", overlap, size)
	}
	return &Chunker{Size: size, Overlap: overlap, Separators: DefaultSeparators}, nil
}

// Split produces the ordered chunk sequence for text. Empty text yields
// no chunks; text no longer than the chunk size yields exactly one.
func (c *Chunker) Split(text, source, docID string) []models.Chunk {
	if len(text) == 0 {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	for {
		end := c.cut(text, start)
		chunks = append(chunks, models.Chunk{
			Content:  text[start:end],
			Source:   source,
			DocID:    docID,
			Position: len(chunks),
			Start:    start,
			End:      end,
		})
		if end == len(text) {
			return chunks
		}
		next := end - c.Overlap
		for next > start && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			// Degenerate window shorter than the overlap; advance
			// without overlap rather than stalling.
			next = end
		}
		start = next
	}
}

// cut picks the end of the chunk starting at start: the full window if
// the remaining text fits, otherwise the latest separator boundary
// within the window, preferring higher-priority separators. When no
// separator qualifies the window is cut at the last rune boundary.
func (c *Chunker) cut(text string, start int) int {
	limit := start + c.Size
	if limit >= len(text) {
		return len(text)
	}
	window := text[start:limit]
	for _, sep := range c.Separators {
		i := strings.LastIndex(window, sep)
		if i < 0 {
			continue
		}
		end := start + i + len(sep)
		// The boundary must leave the chunk longer than the overlap,
		// otherwise the next window could not make progress.
		if end-start > c.Overlap {
			return end
		}
	}
	for limit > start && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return limit
}

// Reassemble inverts Split: it concatenates chunk contents, dropping the
// prefix of each chunk that repeats the tail of its predecessor, and
// returns the original text exactly.
func Reassemble(chunks []models.Chunk) string {
	var b strings.Builder
	prevEnd := 0
	for _, ch := range chunks {
		skip := prevEnd - ch.Start
		if skip < 0 || skip > len(ch.Content) {
			skip = 0
		}
		b.WriteString(ch.Content[skip:])
		prevEnd = ch.End
	}
	return b.String()
}
