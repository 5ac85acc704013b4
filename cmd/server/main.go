package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docchat/internal/anthropic"
	"github.com/dgallion1/docchat/internal/api"
	"github.com/dgallion1/docchat/internal/chunker"
	"github.com/dgallion1/docchat/internal/config"
	"github.com/dgallion1/docchat/internal/gemini"
	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/ingest"
	"github.com/dgallion1/docchat/internal/llm"
	"github.com/dgallion1/docchat/internal/ollama"
	"github.com/dgallion1/docchat/internal/parser"
	"github.com/dgallion1/docchat/internal/rag"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(cfg)
	if err != nil {
		log.Error("opening index", "backend", cfg.IndexBackend, "error", err)
		os.Exit(1)
	}

	// Initialize providers.
	limiter := llm.NewLimiter(cfg.ProviderRPS, cfg.ProviderBurst)
	var closers []func()
	var ollamaClient *ollama.Client
	ollamaFor := func() *ollama.Client {
		if ollamaClient == nil {
			ollamaClient = ollama.New(ollama.Config{
				BaseURL:    cfg.OllamaURL,
				ChatModel:  cfg.OllamaChatModel,
				EmbedModel: cfg.OllamaEmbedModel,
			}, limiter, log)
			closers = append(closers, ollamaClient.Close)
		}
		return ollamaClient
	}
	var geminiClient *gemini.Client
	geminiFor := func() (*gemini.Client, error) {
		if geminiClient == nil {
			c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiChatModel, cfg.GeminiEmbedModel, limiter, log)
			if err != nil {
				return nil, err
			}
			geminiClient = c
			closers = append(closers, c.Close)
		}
		return geminiClient, nil
	}

	var embedder rag.Embedder
	switch cfg.EmbedProvider {
	case "gemini":
		c, err := geminiFor()
		if err != nil {
			log.Error("creating gemini client", "error", err)
			os.Exit(1)
		}
		embedder = c
	default:
		embedder = ollamaFor()
	}

	var generator rag.Generator
	switch cfg.GeneratorProvider {
	case "anthropic":
		c := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, limiter, log)
		closers = append(closers, c.Close)
		generator = c
	case "gemini":
		c, err := geminiFor()
		if err != nil {
			log.Error("creating gemini client", "error", err)
			os.Exit(1)
		}
		generator = c
	default:
		generator = ollamaFor()
	}

	var archive *rag.Archive
	if cfg.UploadDir != "" {
		archive, err = rag.NewArchive(cfg.UploadDir)
		if err != nil {
			log.Error("creating upload dir", "error", err)
			os.Exit(1)
		}
	}

	orch := rag.New(rag.Deps{
		Store:     store,
		Embedder:  embedder,
		Generator: generator,
		Extractor: parser.NewExtractor(parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext}),
		Stats:     llm.NewProviderStats(time.Hour),
		Archive:   archive,
		Logger:    log,
	}, ragConfig(cfg))

	// Initialize batch ingestion.
	pool := ingest.NewPool(ingest.Config{
		Workers:   cfg.IngestWorkers,
		QueueSize: cfg.IngestQueueSize,
		JobTTL:    cfg.JobTTL,
	}, orch, log)
	pool.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, pool, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.GenerateTimeout + cfg.EmbedTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}

		pool.Stop()
		for _, c := range closers {
			c()
		}
		if err := store.Close(); err != nil {
			log.Warn("closing index", "error", err)
		}
	}()

	log.Info("starting docchat",
		"port", cfg.Port,
		"index_backend", cfg.IndexBackend,
		"embed_provider", cfg.EmbedProvider,
		"generator_provider", cfg.GeneratorProvider,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}

func openStore(cfg config.Config) (index.Store, error) {
	switch cfg.IndexBackend {
	case "memory":
		return index.NewMemoryStore(), nil
	case "sqlite":
		s, err := index.NewSQLiteStore(cfg.IndexPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
}

func ragConfig(cfg config.Config) rag.Config {
	return rag.Config{
		Chunk: chunker.Config{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
		},
		EmbedBatchSize:   cfg.EmbedBatchSize,
		EmbedConcurrency: cfg.EmbedConcurrency,
		EmbedTimeout:     cfg.EmbedTimeout,
		SearchTimeout:    cfg.SearchTimeout,
		GenerateTimeout:  cfg.GenerateTimeout,
		HealthTimeout:    cfg.HealthTimeout,
		DefaultTopK:      cfg.DefaultTopK,
		MaxTopK:          cfg.MaxTopK,
		HistoryTurns:     cfg.HistoryTurns,
		MaxPerFile:       cfg.MaxPerFile,
		MaxContextChars:  cfg.MaxContextChars,
		MinScore:         cfg.MinScore,
		ExcerptChars:     cfg.ExcerptChars,
		ExtractiveOnly:   cfg.ExtractiveOnly,
		ExtractiveMax:    cfg.ExtractiveMax,
		VerbatimOnly:     cfg.VerbatimOnly,
		VerbatimMinChars: cfg.VerbatimMinChars,
	}
}
