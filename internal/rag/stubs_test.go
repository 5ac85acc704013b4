package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/llm"
)

const stubDims = 1024

// wordEmbedder builds a bag-of-words vector, so texts sharing words score high.
type wordEmbedder struct {
	delay time.Duration
	calls atomic.Int32
	fail  error
	ping  error
}

func (e *wordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bagOfWords(t)
	}
	return out, nil
}

func (e *wordEmbedder) Ping(context.Context) error { return e.ping }

func bagOfWords(text string) []float32 {
	v := make([]float32, stubDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%stubDims]++
	}
	return v
}

// failAfterEmbedder succeeds for the first n calls and then fails.
type failAfterEmbedder struct {
	wordEmbedder
	n     int32
	count atomic.Int32
}

func (e *failAfterEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.count.Add(1) > e.n {
		return nil, errors.New("embedding backend exploded")
	}
	return e.wordEmbedder.Embed(ctx, texts)
}

// hangingEmbedder ignores its context entirely.
type hangingEmbedder struct{ release chan struct{} }

func (e *hangingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	<-e.release
	return nil, errors.New("released")
}

// cannedGenerator records prompts and replies with a fixed answer.
type cannedGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	wait    bool // block until ctx is done
	prompts []llm.Prompt
}

func (g *cannedGenerator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	if g.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.answer, g.err
}

func (g *cannedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *cannedGenerator) lastPrompt() llm.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return llm.Prompt{}
	}
	return g.prompts[len(g.prompts)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Chunk.ChunkSize = 200
	cfg.Chunk.ChunkOverlap = 0
	cfg.EmbedBatchSize = 2
	cfg.EmbedTimeout = 2 * time.Second
	cfg.SearchTimeout = 2 * time.Second
	cfg.GenerateTimeout = 2 * time.Second
	cfg.HealthTimeout = 200 * time.Millisecond
	return cfg
}

type fixture struct {
	orch  *Orchestrator
	store *index.MemoryStore
	emb   Embedder
	gen   *cannedGenerator
}

func newFixture(cfg Config, emb Embedder, gen *cannedGenerator) *fixture {
	if emb == nil {
		emb = &wordEmbedder{}
	}
	if gen == nil {
		gen = &cannedGenerator{answer: "Paris."}
	}
	store := index.NewMemoryStore()
	orch := New(Deps{Store: store, Embedder: emb, Generator: gen, Logger: quietLogger()}, cfg)
	return &fixture{orch: orch, store: store, emb: emb, gen: gen}
}

// paragraphs returns text the test config splits into exactly n chunks:
// each paragraph is just under 150 characters, so no two fit in one chunk.
func paragraphs(word string, n int) string {
	var para strings.Builder
	for para.Len()+len(word)+1 <= 150 {
		if para.Len() > 0 {
			para.WriteByte(' ')
		}
		para.WriteString(word)
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = para.String()
	}
	return strings.Join(parts, "\n\n")
}
