package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Default and by LoadConfig for zero-valued fields.
const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultInferenceModel = "gpt-4o-mini"
	DefaultTimeoutSeconds = 60

	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultTopK         = 5
	DefaultEmbeddingDim = 1536
	DefaultBatchSize    = 16

	DefaultBackend     = "chromem"
	DefaultStoragePath = "./data/index"
	DefaultCollection  = "rag_documents"
)

type ProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	InferenceModel string `yaml:"inference_model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout is the deadline applied to every provider round-trip.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
	EmbeddingDim int `yaml:"embedding_dim"`
	BatchSize    int `yaml:"batch_size"`
	// MinSimilarity refuses a query before generation when the best
	// search hit scores below it. Zero disables the gate.
	MinSimilarity float32 `yaml:"min_similarity"`
}

type StorageConfig struct {
	Backend    string `yaml:"backend"` // chromem or postgres
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	DSN        string `yaml:"dsn"`
	Debug      bool   `yaml:"debug"`
}

type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	RAG      RAGConfig      `yaml:"rag"`
	Storage  StorageConfig  `yaml:"storage"`
}

// Default returns a config populated with every documented default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = DefaultBaseURL
	}
	if c.Provider.EmbeddingModel == "" {
		c.Provider.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.Provider.InferenceModel == "" {
		c.Provider.InferenceModel = DefaultInferenceModel
	}
	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = DefaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = DefaultChunkOverlap
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = DefaultTopK
	}
	if c.RAG.EmbeddingDim == 0 {
		c.RAG.EmbeddingDim = DefaultEmbeddingDim
	}
	if c.RAG.BatchSize == 0 {
		c.RAG.BatchSize = DefaultBatchSize
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultBackend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Storage.Collection == "" {
		c.Storage.Collection = DefaultCollection
	}
}

// Validate reports the first configuration inconsistency found.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag.top_k must be >= 1, got %d", c.RAG.TopK)
	}
	if c.RAG.EmbeddingDim < 1 {
		return fmt.Errorf("rag.embedding_dim must be >= 1, got %d", c.RAG.EmbeddingDim)
	}
	switch c.Storage.Backend {
	case "chromem":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
