package rag

import (
	"time"

	"github.com/dgallion1/docchat/internal/chunker"
)

// Config tunes ingestion and answering.
type Config struct {
	Chunk chunker.Config

	EmbedBatchSize   int
	EmbedConcurrency int

	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	GenerateTimeout time.Duration
	HealthTimeout   time.Duration

	DefaultTopK     int
	MaxTopK         int
	HistoryTurns    int
	MaxPerFile      int // 0 disables the per-file cap
	MaxContextChars int
	MinScore        float64 // 0 disables the score floor
	ExcerptChars    int

	ExtractiveOnly   bool
	ExtractiveMax    int
	VerbatimOnly     bool
	VerbatimMinChars int
}

func DefaultConfig() Config {
	return Config{
		Chunk:            chunker.DefaultConfig(),
		EmbedBatchSize:   32,
		EmbedConcurrency: 2,
		EmbedTimeout:     60 * time.Second,
		SearchTimeout:    5 * time.Second,
		GenerateTimeout:  120 * time.Second,
		HealthTimeout:    2 * time.Second,
		DefaultTopK:      5,
		MaxTopK:          20,
		HistoryTurns:     12,
		MaxPerFile:       3,
		MaxContextChars:  7000,
		ExcerptChars:     300,
		ExtractiveMax:    2,
		VerbatimMinChars: 20,
	}
}
