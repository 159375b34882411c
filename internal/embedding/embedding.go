package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/seyitcvk/chatbot-rag/internal/config"
)

// ServiceError wraps any failure of the embedding provider: unreachable
// endpoint, malformed response, wrong vector count or dimension. It is
// never retried here; the caller decides.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Client embeds chunk and query text through a langchaingo embedder,
// validating that every returned vector has the configured dimension.
type Client struct {
	embedder  embeddings.Embedder
	dim       int
	batchSize int
}

// NewEmbedder builds the langchaingo OpenAI-compatible embedder from the
// provider config.
func NewEmbedder(cfg *config.ProviderConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// NewClient wraps any embeddings.Embedder with dimension checking and
// batching. dim is the expected vector length, batchSize the number of
// texts per provider call.
func NewClient(embedder embeddings.Embedder, dim, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	return &Client{embedder: embedder, dim: dim, batchSize: batchSize}
}

// maxConcurrentBatches bounds the parallel provider calls issued by
// EmbedTexts during ingestion.
const maxConcurrentBatches = 4

// EmbedTexts embeds texts in order: the result slice is index-aligned
// with the input. Batches are sent concurrently (bounded) and the
// results reassembled into input order before returning.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, maxConcurrentBatches)

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(start int, batch []string) {
			defer wg.Done()
			defer func() { <-sem }()

			batchVectors, err := c.embedder.EmbedDocuments(ctx, batch)
			if err == nil && len(batchVectors) != len(batch) {
				err = fmt.Errorf("provider returned %d vectors for %d inputs", len(batchVectors), len(batch))
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			copy(vectors[start:], batchVectors)
		}(start, texts[start:end])
	}
	wg.Wait()

	if firstErr != nil {
		return nil, &ServiceError{Err: firstErr}
	}
	for i, v := range vectors {
		if len(v) != c.dim {
			return nil, &ServiceError{Err: fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), c.dim)}
		}
	}

	log.Debug().Int("texts", len(texts)).Int("dim", c.dim).Msg("Generated embeddings")
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	if len(vector) != c.dim {
		return nil, &ServiceError{Err: fmt.Errorf("query vector has dimension %d, expected %d", len(vector), c.dim)}
	}
	return vector, nil
}

// Dimension reports the vector length this client enforces.
func (c *Client) Dimension() int { return c.dim }
