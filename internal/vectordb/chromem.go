package vectordb

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/seyitcvk/chatbot-rag/internal/models"
)

// StorageError wraps an index read/write failure. It is fatal to the
// operation that triggered it and never swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vector storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EntryID derives the index entry identifier for a chunk. Zero-padding
// the position keeps lexicographic ID order equal to insertion order
// within a document, which is the tie-break order for equal scores.
func EntryID(docID string, position int) string {
	return fmt.Sprintf("%s-%06d", docID, position)
}

const (
	metaSource   = "source"
	metaPosition = "position"
	compress     = false
)

// ChromemIndex stores chunk vectors in a chromem-go collection,
// persisted on disk unless constructed in memory. Entries sharing an ID
// are overwritten on upsert; similarity is cosine.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
}

// NewChromemIndex opens (or creates) the persistent store at path and
// its named collection. An empty path builds an in-memory index.
func NewChromemIndex(path, collectionName string) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, &StorageError{Op: "open", Err: err}
		}
	}

	c, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, &StorageError{Op: "open collection", Err: err}
	}

	return &ChromemIndex{db: db, collection: c, name: collectionName}, nil
}

// Upsert persists entries, overwriting any entry with the same ID.
func (m *ChromemIndex) Upsert(ctx context.Context, entries []models.ChunkEmbedding) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:      EntryID(e.DocID, e.Position),
			Content: e.Content,
			Metadata: map[string]string{
				metaSource:   e.Source,
				metaPosition: fmt.Sprintf("%d", e.Position),
			},
			Embedding: e.Embedding,
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	log.Debug().Int("entries", len(entries)).Int("total", m.collection.Count()).Msg("Upserted index entries")
	return nil
}

// Search returns up to topK entries by descending cosine similarity.
// When the collection holds fewer than topK entries, all of them are
// returned; equal scores keep insertion order.
func (m *ChromemIndex) Search(ctx context.Context, queryVector []float32, topK int) ([]models.SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}

	n := m.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if topK > n {
		topK = n
	}

	results, err := m.collection.QueryEmbedding(ctx, queryVector, topK, nil, nil)
	if err != nil {
		return nil, &StorageError{Op: "search", Err: err}
	}

	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		out[i] = models.SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Source:   r.Metadata[metaSource],
			Position: parsePosition(r.Metadata[metaPosition]),
			Score:    r.Similarity,
		}
	}
	sortResults(out)
	return out, nil
}

// Reset irreversibly wipes the collection.
func (m *ChromemIndex) Reset(ctx context.Context) error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return &StorageError{Op: "reset", Err: err}
	}
	c, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return &StorageError{Op: "reset", Err: err}
	}
	m.collection = c
	log.Info().Str("collection", m.name).Msg("Index reset")
	return nil
}

// Count reports the number of stored entries.
func (m *ChromemIndex) Count(ctx context.Context) (int, error) {
	return m.collection.Count(), nil
}

func parsePosition(s string) int {
	var p int
	fmt.Sscanf(s, "%d", &p)
	return p
}

// sortResults orders by descending score with ascending ID as the tie
// break, so equal-similarity entries come back in insertion order.
func sortResults(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
