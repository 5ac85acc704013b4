package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	// Vector index
	IndexBackend string
	IndexPath    string
	UploadDir    string

	// Providers
	EmbedProvider     string
	GeneratorProvider string

	OllamaURL        string
	OllamaChatModel  string
	OllamaEmbedModel string

	AnthropicAPIKey string
	AnthropicModel  string

	GeminiAPIKey     string
	GeminiChatModel  string
	GeminiEmbedModel string

	ProviderRPS   float64
	ProviderBurst int

	// Embedding fan-out
	EmbedBatchSize   int
	EmbedConcurrency int

	// Timeouts
	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	GenerateTimeout time.Duration
	HealthTimeout   time.Duration

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Retrieval and prompt budget
	DefaultTopK     int
	MaxTopK         int
	HistoryTurns    int
	MaxPerFile      int
	MaxContextChars int
	MinScore        float64
	ExcerptChars    int

	ExtractiveOnly   bool
	ExtractiveMax    int
	VerbatimOnly     bool
	VerbatimMinChars int

	// Upload limits
	MaxUploadBytes int64

	// Batch ingestion
	IngestWorkers   int
	IngestQueueSize int
	JobTTL          time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:     envOr("PORT", "8000"),
		LogLevel: envOr("LOG_LEVEL", "info"),

		IndexBackend: strings.ToLower(envOr("INDEX_BACKEND", "sqlite")),
		IndexPath:    envOr("INDEX_PATH", "data/index.db"),
		UploadDir:    os.Getenv("UPLOAD_DIR"),

		EmbedProvider:     strings.ToLower(envOr("EMBED_PROVIDER", "ollama")),
		GeneratorProvider: strings.ToLower(envOr("GENERATOR_PROVIDER", "ollama")),

		OllamaURL:        strings.TrimRight(envOr("OLLAMA_URL", "http://127.0.0.1:11434"), "/"),
		OllamaChatModel:  envOr("OLLAMA_CHAT_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: envOr("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiChatModel:  envOr("GEMINI_CHAT_MODEL", "gemini-1.5-flash-latest"),
		GeminiEmbedModel: envOr("GEMINI_EMBED_MODEL", "text-embedding-004"),

		ProviderRPS:   envFloat("PROVIDER_RPS", 0),
		ProviderBurst: envInt("PROVIDER_BURST", 4),

		EmbedBatchSize:   envInt("EMBED_BATCH_SIZE", 32),
		EmbedConcurrency: envInt("EMBED_CONCURRENCY", 2),

		EmbedTimeout:    envDuration("EMBED_TIMEOUT", 60*time.Second),
		SearchTimeout:   envDuration("SEARCH_TIMEOUT", 5*time.Second),
		GenerateTimeout: envDuration("GENERATE_TIMEOUT", 120*time.Second),
		HealthTimeout:   envDuration("HEALTH_TIMEOUT", 2*time.Second),

		ChunkSize:    envInt("RAG_CHUNK_SIZE", 1200),
		ChunkOverlap: envInt("RAG_CHUNK_OVERLAP", 200),

		DefaultTopK:     envInt("RAG_DEFAULT_TOP_K", 5),
		MaxTopK:         envInt("RAG_MAX_TOP_K", 20),
		HistoryTurns:    envInt("RAG_HISTORY_TURNS", 12),
		MaxPerFile:      envInt("RAG_MAX_PER_FILE", 3),
		MaxContextChars: envInt("RAG_MAX_CONTEXT_CHARS", 7000),
		MinScore:        envFloat("RAG_MIN_SCORE", 0),
		ExcerptChars:    envInt("RAG_EXCERPT_CHARS", 300),

		ExtractiveOnly:   envBool("RAG_EXTRACTIVE_ONLY", false),
		ExtractiveMax:    envInt("RAG_EXTRACTIVE_MAX", 2),
		VerbatimOnly:     envBool("RAG_VERBATIM_ONLY", false),
		VerbatimMinChars: envInt("RAG_VERBATIM_MIN_CHARS", 20),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		IngestWorkers:   envInt("INGEST_WORKERS", 2),
		IngestQueueSize: envInt("INGEST_QUEUE_SIZE", 100),
		JobTTL:          envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.ProviderRPS < 0 {
		cfg.ProviderRPS = 0
	}
	if cfg.ProviderBurst <= 0 {
		cfg.ProviderBurst = 4
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 2
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 60 * time.Second
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 5 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 120 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 20
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 12
	}
	if cfg.MaxPerFile < 0 {
		cfg.MaxPerFile = 0
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 7000
	}
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = 300
	}
	if cfg.ExtractiveMax <= 0 {
		cfg.ExtractiveMax = 2
	}
	if cfg.VerbatimMinChars <= 0 {
		cfg.VerbatimMinChars = 20
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.IngestWorkers <= 0 {
		cfg.IngestWorkers = 2
	}
	if cfg.IngestQueueSize <= 0 {
		cfg.IngestQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	switch c.IndexBackend {
	case "sqlite":
		if c.IndexPath == "" {
			return fmt.Errorf("INDEX_PATH is required for the sqlite backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q", c.IndexBackend)
	}

	switch c.EmbedProvider {
	case "ollama":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EMBED_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider)
	}

	switch c.GeneratorProvider {
	case "ollama":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when GENERATOR_PROVIDER=anthropic")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when GENERATOR_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown GENERATOR_PROVIDER %q", c.GeneratorProvider)
	}

	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("RAG_CHUNK_OVERLAP (%d) must be smaller than RAG_CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.MaxTopK > 20 {
		return fmt.Errorf("RAG_MAX_TOP_K must be at most 20, got %d", c.MaxTopK)
	}
	if c.DefaultTopK > c.MaxTopK {
		return fmt.Errorf("RAG_DEFAULT_TOP_K (%d) exceeds RAG_MAX_TOP_K (%d)", c.DefaultTopK, c.MaxTopK)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog.Level, defaulting to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
