package vectordb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/seyitcvk/chatbot-rag/internal/models"
)

// pgEntry is the persisted row for one index entry. The vector column
// width matches the default embedding dimension; change it together
// with rag.embedding_dim when switching embedding models.
type pgEntry struct {
	bun.BaseModel `bun:"table:index_entries,alias:e"`

	ID        string    `bun:"id,pk"`
	Content   string    `bun:"content,notnull"`
	Embedding []float32 `bun:"embedding,notnull,type:vector(1536)"`
	Source    string    `bun:"source,notnull"`
	Position  int       `bun:"position,notnull"`
}

// pgSearchRow is the projection Search scans into: the entry columns
// plus the computed cosine distance.
type pgSearchRow struct {
	ID       string  `bun:"id"`
	Content  string  `bun:"content"`
	Source   string  `bun:"source"`
	Position int     `bun:"position"`
	Distance float32 `bun:"distance"`
}

// PostgresIndex stores chunk vectors in a pgvector-enabled Postgres
// table through bun. Ordering uses cosine distance, reported to callers
// as 1 - distance so scores are higher-is-better like the chromem
// backend.
type PostgresIndex struct {
	db *bun.DB
}

// ConnectPostgres opens the DSN and prepares the entry table.
func ConnectPostgres(ctx context.Context, dsn string, debug bool) (*PostgresIndex, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	idx := &PostgresIndex{db: db}
	if err := idx.init(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (p *PostgresIndex) init(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().Model((*pgEntry)(nil)).IfNotExists().Exec(ctx); err != nil {
		return &StorageError{Op: "init", Err: err}
	}
	return nil
}

func (p *PostgresIndex) Upsert(ctx context.Context, entries []models.ChunkEmbedding) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]pgEntry, len(entries))
	for i, e := range entries {
		rows[i] = pgEntry{
			ID:        EntryID(e.DocID, e.Position),
			Content:   e.Content,
			Embedding: e.Embedding,
			Source:    e.Source,
			Position:  e.Position,
		}
	}

	_, err := p.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Set("source = EXCLUDED.source").
		Set("position = EXCLUDED.position").
		Exec(ctx)
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

func (p *PostgresIndex) Search(ctx context.Context, queryVector []float32, topK int) ([]models.SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}

	var rows []pgSearchRow
	err := p.db.NewSelect().
		Model((*pgEntry)(nil)).
		Column("id", "content", "source", "position").
		ColumnExpr("embedding <=> ? AS distance", queryVector).
		OrderExpr("embedding <=> ?", queryVector).
		OrderExpr("id ASC").
		Limit(topK).
		Scan(ctx, &rows)
	if err != nil {
		return nil, &StorageError{Op: "search", Err: err}
	}

	out := make([]models.SearchResult, len(rows))
	for i, r := range rows {
		out[i] = models.SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Source:   r.Source,
			Position: r.Position,
			Score:    1 - r.Distance,
		}
	}
	return out, nil
}

func (p *PostgresIndex) Reset(ctx context.Context) error {
	if _, err := p.db.NewTruncateTable().Model((*pgEntry)(nil)).Exec(ctx); err != nil {
		return &StorageError{Op: "reset", Err: err}
	}
	return nil
}

func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	count, err := p.db.NewSelect().Model((*pgEntry)(nil)).Count(ctx)
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return count, nil
}

// Close releases the underlying connection pool.
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}
