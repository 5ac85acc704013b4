package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/parser"
)

func TestHealth_OK(t *testing.T) {
	f := newFixture(testConfig(), nil, nil)
	f.orch.Ingest(context.Background(), "geo.txt", "Paris is the capital of France.")

	h := f.orch.Health(context.Background())
	if h.Status != "ok" || !h.Up || !h.IndexUp || !h.EmbedderUp {
		t.Fatalf("expected healthy status, got %+v", h)
	}
	if h.ChunksIndexed != 1 {
		t.Errorf("expected 1 chunk, got %d", h.ChunksIndexed)
	}
}

func TestHealth_DegradedWhenEmbedderDown(t *testing.T) {
	f := newFixture(testConfig(), &wordEmbedder{ping: errors.New("connection refused")}, nil)

	h := f.orch.Health(context.Background())
	if h.Status != "degraded" || h.Up {
		t.Fatalf("expected degraded status, got %+v", h)
	}
	if !h.IndexUp || h.EmbedderUp {
		t.Errorf("expected only the embedder to be down, got %+v", h)
	}
}

func TestHealth_BoundedByTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.HealthTimeout = 50 * time.Millisecond
	emb := &hangingEmbedder{release: make(chan struct{})}
	defer close(emb.release)
	f := newFixture(cfg, emb, nil)

	start := time.Now()
	h := f.orch.Health(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("health took %s with a hanging embedder", elapsed)
	}
	if h.Status != "degraded" || h.EmbedderUp {
		t.Errorf("expected degraded status, got %+v", h)
	}
}

func TestIngestFile_ExtractsAndArchives(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	store := index.NewMemoryStore()
	orch := New(Deps{
		Store:     store,
		Embedder:  &wordEmbedder{},
		Generator: &cannedGenerator{answer: "ok"},
		Extractor: parser.NewExtractor(parser.Options{}),
		Archive:   archive,
		Logger:    quietLogger(),
	}, testConfig())
	ctx := context.Background()

	data := []byte("# Geography\n\nParis is the capital of France.\n")
	res, err := orch.IngestFile(ctx, "geo.md", data)
	if err != nil {
		t.Fatalf("ingest file: %v", err)
	}
	if res.ChunksIndexed != 1 {
		t.Errorf("expected 1 chunk, got %d", res.ChunksIndexed)
	}
	if got, err := os.ReadFile(filepath.Join(dir, "geo.md")); err != nil || string(got) != string(data) {
		t.Errorf("expected archived copy, got %q (%v)", got, err)
	}

	_, err = orch.IngestFile(ctx, "geo.md", data)
	var dup *DuplicateDocumentError
	if !errors.As(err, &dup) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if n, err := orch.Delete(ctx, "geo.md"); err != nil || n != 1 {
		t.Fatalf("delete: %d, %v", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "geo.md")); !os.IsNotExist(err) {
		t.Errorf("expected archived copy removed, stat err = %v", err)
	}
}

func TestIngestFile_ExtractionFailure(t *testing.T) {
	store := index.NewMemoryStore()
	orch := New(Deps{
		Store:     store,
		Embedder:  &wordEmbedder{},
		Extractor: parser.NewExtractor(parser.Options{}),
		Logger:    quietLogger(),
	}, testConfig())

	_, err := orch.IngestFile(context.Background(), "tool.exe", []byte{0x4d, 0x5a})
	var xerr *parser.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected *parser.ExtractionError, got %v", err)
	}
	if Stage(err) != "extraction" {
		t.Errorf("expected extraction stage, got %q", Stage(err))
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("expected nothing indexed, got %d", n)
	}
}

func TestArchive_ClearAndMissingRemove(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchive(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := a.Remove("never-saved.txt"); err != nil {
		t.Errorf("removing a missing file should succeed, got %v", err)
	}
	for _, name := range []string{"a.txt", "b.pdf", "../escape.txt"} {
		if err := a.Save(name, []byte(name)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(err) {
		t.Errorf("archive wrote outside its directory")
	}
	if err := a.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "uploads"))
	if len(entries) != 0 {
		t.Errorf("expected empty archive, found %d entries", len(entries))
	}
}
