package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/seyitcvk/chatbot-rag/internal/config"
	"github.com/seyitcvk/chatbot-rag/internal/embedding"
	"github.com/seyitcvk/chatbot-rag/internal/models"
	"github.com/seyitcvk/chatbot-rag/internal/parser"
	"github.com/seyitcvk/chatbot-rag/internal/vectordb"
)

// keywordEmbedder maps texts onto a tiny fixed vocabulary so similarity
// behaves predictably in tests.
type keywordEmbedder struct {
	err error
}

func keywordVector(text string) []float32 {
	v := []float32{0, 0, 0, 0.1}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "revenue") || strings.Contains(lower, "profit") {
		v[0] = 1
	}
	if strings.Contains(lower, "weather") {
		v[1] = 1
	}
	if strings.Contains(lower, "alice") {
		v[2] = 1
	}
	return v
}

func (e *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return keywordVector(text), nil
}

// fakeModel is a canned chat model capturing the prompt it received.
type fakeModel struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	var b strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				b.WriteString(tc.Text)
				b.WriteString("\n")
			}
		}
	}
	m.prompt = b.String()
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	m.calls++
	m.prompt = prompt
	return m.response, m.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RAG.EmbeddingDim = 4
	cfg.RAG.BatchSize = 4
	return cfg
}

func newTestRAG(t *testing.T, cfg *config.Config, embedder *keywordEmbedder, model *fakeModel) *RAG {
	t.Helper()
	index, err := vectordb.NewChromemIndex("", "rag_test")
	require.NoError(t, err)
	client := embedding.NewClient(embedder, cfg.RAG.EmbeddingDim, cfg.RAG.BatchSize)
	return NewRAG(index, client, model, cfg)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestAndQuery(t *testing.T) {
	cfg := testConfig()
	model := &fakeModel{response: "Revenue grew by 20 percent."}
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{}, model)
	ctx := context.Background()

	path := writeFile(t, "report.txt", "The company revenue grew by 20 percent last year. Profit margins improved as well.")
	report, err := pipeline.Ingest(ctx, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Greater(t, report.Chunks, 0)
	assert.Empty(t, report.Failures)

	answer, err := pipeline.Query(ctx, "How much did revenue grow?")
	require.NoError(t, err)

	assert.False(t, answer.Refused)
	assert.Equal(t, "Revenue grew by 20 percent.", answer.Content)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "report.txt", answer.Sources[0].Document)

	assert.Equal(t, 1, model.calls)
	assert.Contains(t, model.prompt, "revenue grew by 20 percent")
	assert.Contains(t, model.prompt, "How much did revenue grow?")
	assert.Contains(t, model.prompt, "[source: report.txt, chunk 0]")
}

func TestQueryOffTopicRefused(t *testing.T) {
	cfg := testConfig()
	model := &fakeModel{response: "NO_ANSWER: the uploaded documents do not mention the weather."}
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{}, model)
	ctx := context.Background()

	path := writeFile(t, "report.txt", "Quarterly revenue and profit figures for the fiscal year.")
	_, err := pipeline.Ingest(ctx, []string{path})
	require.NoError(t, err)

	answer, err := pipeline.Query(ctx, "What is the weather today?")
	require.NoError(t, err)

	assert.True(t, answer.Refused)
	assert.NotContains(t, answer.Content, models.RefusalMarker)
	assert.Contains(t, answer.Content, "do not mention the weather")
	assert.Empty(t, answer.Sources)
}

func TestQueryEmptyIndexRefusesWithoutGeneration(t *testing.T) {
	cfg := testConfig()
	model := &fakeModel{response: "should never be used"}
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{}, model)

	answer, err := pipeline.Query(context.Background(), "Anything at all?")
	require.NoError(t, err)

	assert.True(t, answer.Refused)
	assert.Equal(t, models.RefusalFallback, answer.Content)
	assert.Zero(t, model.calls)
}

func TestResetThenQuery(t *testing.T) {
	cfg := testConfig()
	model := &fakeModel{response: "should never be used"}
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{}, model)
	ctx := context.Background()

	path := writeFile(t, "report.txt", "Revenue details.")
	_, err := pipeline.Ingest(ctx, []string{path})
	require.NoError(t, err)

	require.NoError(t, pipeline.Reset(ctx))

	count, err := pipeline.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	answer, err := pipeline.Query(ctx, "How much revenue?")
	require.NoError(t, err)
	assert.True(t, answer.Refused)
	assert.Zero(t, model.calls)
}

func TestMinSimilarityGate(t *testing.T) {
	cfg := testConfig()
	cfg.RAG.MinSimilarity = 0.9
	model := &fakeModel{response: "should never be used"}
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{}, model)
	ctx := context.Background()

	path := writeFile(t, "report.txt", "Revenue and profit numbers only.")
	_, err := pipeline.Ingest(ctx, []string{path})
	require.NoError(t, err)

	answer, err := pipeline.Query(ctx, "What is the weather today?")
	require.NoError(t, err)
	assert.True(t, answer.Refused)
	assert.Zero(t, model.calls)
}

func TestQueryEmbedFailure(t *testing.T) {
	cfg := testConfig()
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{err: errors.New("connection refused")}, &fakeModel{})

	_, err := pipeline.Query(context.Background(), "anything")
	require.Error(t, err)

	var stageErr *PipelineError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageEmbed, stageErr.Stage)

	var svcErr *embedding.ServiceError
	assert.True(t, errors.As(err, &svcErr))
}

func TestQueryGenerateFailure(t *testing.T) {
	cfg := testConfig()
	model := &fakeModel{err: errors.New("model overloaded")}
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{}, model)
	ctx := context.Background()

	path := writeFile(t, "report.txt", "Revenue data.")
	_, err := pipeline.Ingest(ctx, []string{path})
	require.NoError(t, err)

	_, err = pipeline.Query(ctx, "How much revenue?")
	require.Error(t, err)

	var stageErr *PipelineError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageGenerate, stageErr.Stage)
}

func TestIngestPartialFailure(t *testing.T) {
	cfg := testConfig()
	model := &fakeModel{response: "Alice is 30 years old."}
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{}, model)
	ctx := context.Background()

	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a pdf"), 0o644))
	valid := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(valid, []byte("name,age\nAlice,30\n"), 0o644))

	report, err := pipeline.Ingest(ctx, []string{corrupt, valid})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Files)
	assert.Greater(t, report.Chunks, 0)
	require.Len(t, report.Failures, 1)

	var extractErr *parser.ExtractionError
	require.True(t, errors.As(report.Failures[0], &extractErr))
	assert.Equal(t, corrupt, extractErr.File)

	answer, err := pipeline.Query(ctx, "How old is Alice?")
	require.NoError(t, err)
	assert.False(t, answer.Refused)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "people.csv", answer.Sources[0].Document)
}

func TestIngestEmbedFailureAborts(t *testing.T) {
	cfg := testConfig()
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{err: errors.New("provider down")}, &fakeModel{})
	ctx := context.Background()

	path := writeFile(t, "report.txt", "Some content to embed.")
	_, err := pipeline.Ingest(ctx, []string{path})
	require.Error(t, err)

	var stageErr *PipelineError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageEmbed, stageErr.Stage)
}

func TestIngestOnlyFailuresIsNotFatal(t *testing.T) {
	cfg := testConfig()
	pipeline := newTestRAG(t, cfg, &keywordEmbedder{}, &fakeModel{})

	corrupt := writeFile(t, "broken.pdf", "not a pdf")
	report, err := pipeline.Ingest(context.Background(), []string{corrupt})
	require.NoError(t, err)
	assert.Zero(t, report.Files)
	assert.Zero(t, report.Chunks)
	assert.Len(t, report.Failures, 1)
}

func TestAssembleContext(t *testing.T) {
	_, err := assembleContext(nil)
	assert.ErrorIs(t, err, ErrNoContext)

	block, err := assembleContext([]models.SearchResult{
		{Content: "first passage", Source: "a.txt", Position: 2, Score: 0.9},
		{Content: "second passage", Source: "b.csv", Position: 0, Score: 0.5},
	})
	require.NoError(t, err)

	assert.Contains(t, block, "[source: a.txt, chunk 2]\nfirst passage")
	assert.Contains(t, block, "[source: b.csv, chunk 0]\nsecond passage")
	assert.Less(t, strings.Index(block, "first passage"), strings.Index(block, "second passage"))
}

func TestDetectRefusal(t *testing.T) {
	content, refused := detectRefusal("A plain answer.")
	assert.False(t, refused)
	assert.Equal(t, "A plain answer.", content)

	content, refused = detectRefusal("NO_ANSWER: nothing relevant found.")
	assert.True(t, refused)
	assert.Equal(t, "nothing relevant found.", content)

	content, refused = detectRefusal("  NO_ANSWER  ")
	assert.True(t, refused)
	assert.Equal(t, models.RefusalFallback, content)

	content, refused = detectRefusal(`"NO_ANSWER" - not covered`)
	assert.True(t, refused)
	assert.Equal(t, "not covered", content)
}
