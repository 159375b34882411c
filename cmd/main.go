package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seyitcvk/chatbot-rag/internal/config"
	"github.com/seyitcvk/chatbot-rag/internal/embedding"
	"github.com/seyitcvk/chatbot-rag/internal/helper"
	"github.com/seyitcvk/chatbot-rag/internal/llmservice"
	"github.com/seyitcvk/chatbot-rag/internal/rag"
	"github.com/seyitcvk/chatbot-rag/internal/vectordb"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	files := flag.String("file", "", "Comma-separated list of document files to ingest")
	query := flag.String("query", "", "Question to answer from the indexed documents")
	reset := flag.Bool("reset", false, "Wipe the vector index")
	stats := flag.Bool("stats", false, "Print the number of indexed entries")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *files == "" && *query == "" && !*reset && !*stats {
		log.Fatal().Msg("Provide documents with -file, a question with -query, or one of -reset/-stats")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Error loading config")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx := context.Background()
	pipeline := buildPipeline(ctx, cfg)

	if *reset {
		if err := pipeline.Reset(ctx); err != nil {
			log.Fatal().Err(err).Msg("Error resetting index")
		}
		log.Info().Msg("Index reset")
	}

	if *files != "" {
		ingestFiles(ctx, pipeline, strings.Split(*files, ","))
	}

	if *query != "" {
		answerQuery(ctx, pipeline, *query)
	}

	if *stats {
		count, err := pipeline.Count(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Error reading index stats")
		}
		fmt.Printf("Indexed entries: %d\n", count)
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config) *rag.RAG {
	var (
		index rag.Index
		err   error
	)
	switch cfg.Storage.Backend {
	case "postgres":
		index, err = vectordb.ConnectPostgres(ctx, cfg.Storage.DSN, cfg.Storage.Debug)
	default:
		if err = helper.CreateFolder(cfg.Storage.Path); err == nil {
			index, err = vectordb.NewChromemIndex(cfg.Storage.Path, cfg.Storage.Collection)
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector index")
	}

	embedder, err := embedding.NewEmbedder(&cfg.Provider)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	model, err := llmservice.NewChatModel(&cfg.Provider)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chat model")
	}

	client := embedding.NewClient(embedder, cfg.RAG.EmbeddingDim, cfg.RAG.BatchSize)
	return rag.NewRAG(index, client, model, cfg)
}

func ingestFiles(ctx context.Context, pipeline *rag.RAG, paths []string) {
	for i := range paths {
		paths[i] = strings.TrimSpace(paths[i])
	}

	report, err := pipeline.Ingest(ctx, paths)
	if err != nil {
		log.Fatal().Err(err).Msg("Error ingesting documents")
	}
	for _, failure := range report.Failures {
		log.Warn().Err(failure).Msg("File skipped")
	}
	log.Info().Int("files", report.Files).Int("chunks", report.Chunks).Int("skipped", len(report.Failures)).Msg("Ingestion finished")
}

func answerQuery(ctx context.Context, pipeline *rag.RAG, question string) {
	answer, err := pipeline.Query(ctx, question)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering query")
	}

	fmt.Printf("Question: %s\n\n", question)
	if answer.Refused {
		fmt.Printf("Refused: %s\n", answer.Content)
		return
	}

	fmt.Printf("Answer: %s\n\n", answer.Content)
	fmt.Println("Sources:")
	for _, src := range answer.Sources {
		fmt.Printf("  - %s (chunk %d)\n", src.Document, src.Position)
	}
}
