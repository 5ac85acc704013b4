package rag

import (
	"context"

	"github.com/dgallion1/docchat/internal/llm"
)

// Embedder maps texts to vectors of a fixed dimension, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator answers an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, p llm.Prompt) (string, error)
}

// Extractor turns an uploaded file into plain text.
type Extractor interface {
	Extract(ctx context.Context, fileName string, data []byte) (string, error)
}

// Pinger is implemented by capabilities that can be probed cheaply.
type Pinger interface {
	Ping(ctx context.Context) error
}
