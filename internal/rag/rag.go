package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/seyitcvk/chatbot-rag/internal/chunker"
	"github.com/seyitcvk/chatbot-rag/internal/config"
	"github.com/seyitcvk/chatbot-rag/internal/llmservice"
	"github.com/seyitcvk/chatbot-rag/internal/models"
	"github.com/seyitcvk/chatbot-rag/internal/parser"
)

// Index is the vector store the pipeline reads and writes. Both the
// chromem and the Postgres backends satisfy it.
type Index interface {
	Upsert(ctx context.Context, entries []models.ChunkEmbedding) error
	Search(ctx context.Context, queryVector []float32, topK int) ([]models.SearchResult, error)
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Embedder turns text into vectors. Satisfied by embedding.Client.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RAG wires the pipeline stages together: extraction and chunking feed
// the index on ingestion; embed, search, assemble and generate run per
// query. One RAG value is built per process and passed around
// explicitly.
type RAG struct {
	index    Index
	embedder Embedder
	model    llms.Model
	cfg      *config.Config
}

func NewRAG(index Index, embedder Embedder, model llms.Model, cfg *config.Config) *RAG {
	return &RAG{index: index, embedder: embedder, model: model, cfg: cfg}
}

// IngestReport summarizes one multi-file ingestion. Failures holds the
// per-file extraction errors; the rest of the upload still indexes.
type IngestReport struct {
	Files    int
	Chunks   int
	Failures []error
}

// Ingest extracts, chunks, embeds and indexes the given files.
// Extraction failures are isolated per file and collected in the
// report; embedding and storage failures abort the whole ingestion with
// the failing stage named.
func (r *RAG) Ingest(ctx context.Context, paths []string) (*IngestReport, error) {
	ck, err := chunker.New(r.cfg.RAG.ChunkSize, r.cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, fail(StageChunk, err)
	}

	report := &IngestReport{}
	var chunks []models.Chunk
	for _, path := range paths {
		doc, err := parser.Extract(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping file")
			report.Failures = append(report.Failures, err)
			continue
		}
		docChunks := ck.Split(doc.Text, doc.Filename, doc.ID)
		log.Info().Str("file", doc.Filename).Int("chunks", len(docChunks)).Msg("Chunked document")
		chunks = append(chunks, docChunks...)
		report.Files++
	}

	if len(chunks) == 0 {
		return report, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.Provider.Timeout())
	defer cancel()
	vectors, err := r.embedder.EmbedTexts(embedCtx, texts)
	if err != nil {
		return report, fail(StageEmbed, err)
	}

	entries := make([]models.ChunkEmbedding, len(chunks))
	for i, c := range chunks {
		entries[i] = models.ChunkEmbedding{Chunk: c, Embedding: vectors[i]}
	}
	if err := r.index.Upsert(ctx, entries); err != nil {
		return report, fail(StageStore, err)
	}

	report.Chunks = len(entries)
	return report, nil
}

// Query answers a question from the indexed content. The stages run
// strictly in order (embed, search, assemble, generate); the first
// failure aborts with its stage named. A question the content does not
// cover yields a refused answer, not an error.
func (r *RAG) Query(ctx context.Context, question string) (*models.Answer, error) {
	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.Provider.Timeout())
	queryVector, err := r.embedder.EmbedQuery(embedCtx, question)
	cancel()
	if err != nil {
		return nil, fail(StageEmbed, err)
	}

	results, err := r.index.Search(ctx, queryVector, r.cfg.RAG.TopK)
	if err != nil {
		return nil, fail(StageSearch, err)
	}

	contextBlock, err := assembleContext(results)
	if err != nil {
		log.Info().Str("question", question).Msg("No context available, refusing without generation")
		return refusedAnswer(), nil
	}

	if gate := r.cfg.RAG.MinSimilarity; gate > 0 && results[0].Score < gate {
		log.Info().Float32("score", results[0].Score).Float32("min", gate).Msg("Top result below similarity gate, refusing")
		return refusedAnswer(), nil
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, models.SystemPromptTemplate),
		llms.TextParts(schema.ChatMessageTypeHuman, fmt.Sprintf(models.AnswerPromptTemplate, contextBlock, question)),
	}

	genCtx, cancel := context.WithTimeout(ctx, r.cfg.Provider.Timeout())
	defer cancel()
	content, err := llmservice.GenerateContent(genCtx, r.model, messages)
	if err != nil {
		return nil, fail(StageGenerate, err)
	}

	answer := &models.Answer{Sources: sourceRefs(results)}
	answer.Content, answer.Refused = detectRefusal(content)
	if answer.Refused {
		answer.Sources = nil
	}
	return answer, nil
}

// Reset wipes the index. Irreversible.
func (r *RAG) Reset(ctx context.Context) error {
	if err := r.index.Reset(ctx); err != nil {
		return fail(StageStore, err)
	}
	return nil
}

// Count reports the number of indexed entries.
func (r *RAG) Count(ctx context.Context) (int, error) {
	n, err := r.index.Count(ctx)
	if err != nil {
		return 0, fail(StageStore, err)
	}
	return n, nil
}

// assembleContext builds the grounding block: chunk texts in descending
// similarity order, each annotated with its source document and
// position so the answer can cite them. Zero results is ErrNoContext,
// never a fabricated block.
func assembleContext(results []models.SearchResult) (string, error) {
	if len(results) == 0 {
		return "", ErrNoContext
	}
	var b strings.Builder
	for _, res := range results {
		fmt.Fprintf(&b, "[source: %s, chunk %d]\n%s\n\n", res.Source, res.Position, res.Content)
	}
	return b.String(), nil
}

func sourceRefs(results []models.SearchResult) []models.SourceRef {
	refs := make([]models.SourceRef, len(results))
	for i, res := range results {
		refs[i] = models.SourceRef{Document: res.Source, Position: res.Position}
	}
	return refs
}

// detectRefusal maps the fixed marker the prompt asks for onto the
// Refused flag, stripping the marker from the visible answer.
func detectRefusal(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	stripped := strings.TrimLeft(trimmed, `"'`)
	if !strings.HasPrefix(stripped, models.RefusalMarker) {
		return trimmed, false
	}
	rest := strings.TrimPrefix(stripped, models.RefusalMarker)
	rest = strings.TrimLeft(rest, `"':.,- `)
	rest = strings.TrimSpace(rest)
	if rest == "" {
		rest = models.RefusalFallback
	}
	return rest, true
}

func refusedAnswer() *models.Answer {
	return &models.Answer{Content: models.RefusalFallback, Refused: true}
}
