// Package rag ties chunking, embedding, the vector index and answer
// generation into the ingest and question-answering paths.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docchat/internal/chunker"
	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/keylock"
	"github.com/dgallion1/docchat/internal/llm"
)

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Store     index.Store
	Embedder  Embedder
	Generator Generator
	Extractor Extractor
	Stats     *llm.ProviderStats // optional
	Archive   *Archive           // optional
	Logger    *slog.Logger
}

// Orchestrator owns ingestion, answering and index lifecycle operations.
// Writes to the same file name are serialized; clear excludes all writes.
type Orchestrator struct {
	cfg       Config
	store     index.Store
	embedder  Embedder
	generator Generator
	extractor Extractor
	retriever *Retriever
	locks     *keylock.Registry
	stats     *llm.ProviderStats
	archive   *Archive
	log       *slog.Logger
}

func New(deps Deps, cfg Config) *Orchestrator {
	stats := deps.Stats
	if stats == nil {
		stats = llm.NewProviderStats(time.Hour)
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     deps.Store,
		embedder:  deps.Embedder,
		generator: deps.Generator,
		extractor: deps.Extractor,
		retriever: NewRetriever(deps.Embedder, deps.Store, cfg, stats.Embed),
		locks:     keylock.New(),
		stats:     stats,
		archive:   deps.Archive,
		log:       log,
	}
}

// IngestResult describes a committed document.
type IngestResult struct {
	FileName      string `json:"file_name"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ChunkSize     int    `json:"chunk_size"`
	ChunkOverlap  int    `json:"chunk_overlap"`
	IngestID      string `json:"ingest_id"`
}

// Ingest chunks, embeds and stores text under fileName. The document is
// committed whole or not at all, and a name that is already indexed is
// rejected with *DuplicateDocumentError.
func (o *Orchestrator) Ingest(ctx context.Context, fileName, text string) (IngestResult, error) {
	return o.ingest(ctx, fileName, text, nil)
}

// IngestFile extracts text from an uploaded file and ingests it. When an
// archive is configured the original bytes are kept alongside the index.
func (o *Orchestrator) IngestFile(ctx context.Context, fileName string, data []byte) (IngestResult, error) {
	if err := validateFileName(fileName); err != nil {
		return IngestResult{}, err
	}
	if o.extractor == nil {
		return IngestResult{}, errors.New("no extractor configured")
	}
	// Cheap early rejection; ingest checks again under the document lock.
	if exists, err := o.store.HasDocument(ctx, fileName); err == nil && exists {
		return IngestResult{}, &DuplicateDocumentError{FileName: fileName}
	}
	text, err := o.extractor.Extract(ctx, fileName, data)
	if err != nil {
		return IngestResult{}, err
	}
	return o.ingest(ctx, fileName, text, data)
}

func (o *Orchestrator) ingest(ctx context.Context, fileName, text string, raw []byte) (IngestResult, error) {
	if err := validateFileName(fileName); err != nil {
		return IngestResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return IngestResult{}, &ValidationError{Field: "text", Reason: "no extractable text", Err: &chunker.EmptyInputError{}}
	}

	// Once started, a document is finished or failed as a whole; a caller
	// hanging up must not cut it short. Each embed call still has its own timeout.
	ctx = context.WithoutCancel(ctx)

	ingestID := uuid.NewString()
	log := o.log.With("file_name", fileName, "ingest_id", ingestID)

	unlock := o.locks.Lock(fileName)
	defer unlock()

	exists, err := o.store.HasDocument(ctx, fileName)
	if err != nil {
		return IngestResult{}, err
	}
	if exists {
		return IngestResult{}, &DuplicateDocumentError{FileName: fileName}
	}

	texts, err := chunker.Split(text, o.cfg.Chunk)
	if err != nil {
		return IngestResult{}, &ValidationError{Field: "text", Reason: "no extractable text", Err: err}
	}

	start := time.Now()
	vectors, err := o.embedAll(ctx, texts)
	if err != nil {
		log.Error("embedding failed", "chunks", len(texts), "error", err)
		return IngestResult{}, err
	}
	log.Debug("embedded chunks", "chunks", len(texts), "duration_ms", time.Since(start).Milliseconds())

	sum := sha256.Sum256([]byte(text))
	meta := map[string]string{
		"doc_type":       strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
		"ingest_id":      ingestID,
		"content_sha256": hex.EncodeToString(sum[:]),
	}
	chunks := make([]index.Chunk, len(texts))
	for i, t := range texts {
		m := make(map[string]string, len(meta)+1)
		for k, v := range meta {
			m[k] = v
		}
		m["chunk_chars"] = strconv.Itoa(len([]rune(t)))
		chunks[i] = index.Chunk{Text: t, Embedding: vectors[i], Metadata: m}
	}

	n, err := o.store.Insert(ctx, fileName, chunks)
	if err != nil {
		if errors.Is(err, index.ErrDuplicateDocument) {
			return IngestResult{}, &DuplicateDocumentError{FileName: fileName}
		}
		if errors.Is(err, index.ErrDimensionMismatch) {
			return IngestResult{}, &EmbeddingError{Stage: "ingest", Err: err}
		}
		log.Error("index insert failed", "error", err)
		return IngestResult{}, err
	}

	if o.archive != nil && raw != nil {
		if err := o.archive.Save(fileName, raw); err != nil {
			log.Warn("archiving upload failed", "error", err)
		}
	}

	log.Info("document indexed", "chunks", n, "chars", len(text))
	return IngestResult{
		FileName:      fileName,
		ChunksIndexed: n,
		ChunkSize:     o.cfg.Chunk.ChunkSize,
		ChunkOverlap:  o.cfg.Chunk.ChunkOverlap,
		IngestID:      ingestID,
	}, nil
}

// embedAll embeds texts in batches with bounded parallelism. Any failed
// batch fails the whole call.
func (o *Orchestrator) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	batchSize := max(1, o.cfg.EmbedBatchSize)
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, o.cfg.EmbedConcurrency))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			ectx, cancel := context.WithTimeout(gctx, o.cfg.EmbedTimeout)
			defer cancel()

			t0 := time.Now()
			vecs, err := o.embedder.Embed(ectx, texts[start:end])
			o.stats.Embed.Since(t0)
			if err != nil {
				return &EmbeddingError{Stage: "ingest", Err: err}
			}
			if len(vecs) != end-start {
				return &EmbeddingError{Stage: "ingest", Err: fmt.Errorf("expected %d vectors, got %d", end-start, len(vecs))}
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// ChatRequest is one question with its caller-held context.
type ChatRequest struct {
	Message  string
	TopK     int // 0 selects the default
	History  []Message
	Selected index.FileSet // nil searches every document
}

// Source identifies a passage that was given to the generator.
type Source struct {
	File    string  `json:"file"`
	Chunk   int     `json:"chunk"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// ChatResponse is an answer with the sources it was generated from, in rank order.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Answer retrieves context for the question and asks the generator. An empty
// retrieval is not an error: the generator is told no context was found.
func (o *Orchestrator) Answer(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return ChatResponse{}, &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	topK, err := o.topK(req.TopK)
	if err != nil {
		return ChatResponse{}, err
	}
	history := lastMessages(req.History, o.cfg.HistoryTurns)
	for _, m := range history {
		if m.Role != "user" && m.Role != "assistant" {
			return ChatResponse{}, &ValidationError{Field: "history", Reason: fmt.Sprintf("unknown role %q", m.Role)}
		}
	}

	hits, err := o.retriever.Retrieve(ctx, question, topK, req.Selected)
	if err != nil {
		return ChatResponse{}, err
	}
	used := trimHits(hits, o.cfg.MaxPerFile, o.cfg.MaxContextChars)
	sources := toSources(used)

	log := o.log.With("top_k", topK, "hits", len(hits), "used", len(used), "scoped", req.Selected.Scoped())

	if o.cfg.ExtractiveOnly {
		log.Debug("answering extractively")
		return ChatResponse{Answer: extractiveAnswer(used, o.cfg.ExtractiveMax), Sources: sources}, nil
	}

	prompt := buildPrompt(question, history, used)
	log.Debug("prompt assembled", "est_tokens", chunker.EstimateTokens(prompt.System+prompt.User))

	gctx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	defer cancel()
	start := time.Now()
	raw, err := o.generator.Generate(gctx, prompt)
	o.stats.Generate.Since(start)
	if err != nil {
		log.Error("generation failed", "error", err)
		return ChatResponse{}, &GenerationUnavailableError{Err: err}
	}

	answer := strings.TrimSpace(raw)
	switch {
	case answer == "":
		answer = NoAnswer
	case looksLikeRefusal(answer, used):
		answer = NoAnswer
	case o.cfg.VerbatimOnly && !verbatimOK(answer, used, o.cfg.VerbatimMinChars):
		log.Info("answer rejected by verbatim check")
		answer = NoAnswer
	}
	return ChatResponse{Answer: answer, Sources: sources}, nil
}

func (o *Orchestrator) topK(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, &ValidationError{Field: "top_k", Reason: "must be positive"}
	case requested == 0:
		return min(o.cfg.DefaultTopK, o.cfg.MaxTopK), nil
	case requested > o.cfg.MaxTopK:
		return o.cfg.MaxTopK, nil
	}
	return requested, nil
}

func toSources(hits []Hit) []Source {
	out := make([]Source, len(hits))
	for i, h := range hits {
		out[i] = Source{File: h.FileName, Chunk: h.Chunk, Excerpt: h.Excerpt, Score: h.Score}
	}
	return out
}

func validateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "file_name", Reason: "must not be empty"}
	}
	// Chunk ids fold separators to "_", so "a/b" and "a_b" would share ids.
	if strings.ContainsAny(name, `/\`) {
		return &ValidationError{Field: "file_name", Reason: "must be a base name without path separators"}
	}
	return nil
}
