package rag

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/llm"
)

// Hit is a retrieved chunk. Text is the full chunk fed to the generator;
// Excerpt is the shortened, single-line form shown to users.
type Hit struct {
	ID       string
	FileName string
	Chunk    int
	Score    float64
	Text     string
	Excerpt  string
}

// Retriever embeds a query and searches the index with it.
type Retriever struct {
	embedder      Embedder
	store         index.Store
	embedTimeout  time.Duration
	searchTimeout time.Duration
	minScore      float64
	excerptChars  int
	stats         *llm.Stats
}

func NewRetriever(embedder Embedder, store index.Store, cfg Config, stats *llm.Stats) *Retriever {
	return &Retriever{
		embedder:      embedder,
		store:         store,
		embedTimeout:  cfg.EmbedTimeout,
		searchTimeout: cfg.SearchTimeout,
		minScore:      cfg.MinScore,
		excerptChars:  cfg.ExcerptChars,
		stats:         stats,
	}
}

// Retrieve returns up to topK hits in rank order. A nil selected set searches
// the whole index; a non-nil empty set, or one naming only unknown files,
// returns no hits.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, selected index.FileSet) ([]Hit, error) {
	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()
	results, err := r.store.Search(sctx, vec, topK, selected)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		if r.minScore > 0 && res.Score < r.minScore {
			continue
		}
		text := strings.TrimSpace(res.Chunk.Text)
		hits = append(hits, Hit{
			ID:       res.Chunk.ID,
			FileName: res.Chunk.FileName,
			Chunk:    res.Chunk.Index,
			Score:    res.Score,
			Text:     text,
			Excerpt:  excerpt(text, r.excerptChars),
		})
	}
	return hits, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	start := time.Now()
	vecs, err := r.embedder.Embed(ectx, []string{query})
	if r.stats != nil {
		r.stats.Since(start)
	}
	if err != nil {
		return nil, &EmbeddingError{Stage: "query", Err: err}
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, &EmbeddingError{Stage: "query", Err: fmt.Errorf("expected 1 vector, got %d", len(vecs))}
	}
	return vecs[0], nil
}

// excerpt keeps the first n runes of text with line breaks flattened.
func excerpt(text string, n int) string {
	if n > 0 && utf8.RuneCountInString(text) > n {
		text = string([]rune(text)[:n])
	}
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	return strings.TrimSpace(text)
}
