package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/parser"
	"github.com/dgallion1/docchat/internal/rag"
)

type stubIngester struct {
	mu      sync.Mutex
	seen    []string
	indexed map[string]bool
	block   chan struct{}
}

func newStubIngester() *stubIngester {
	return &stubIngester{indexed: make(map[string]bool)}
}

func (s *stubIngester) IngestFile(_ context.Context, name string, data []byte) (rag.IngestResult, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, name)
	if len(data) == 0 {
		return rag.IngestResult{}, &rag.ValidationError{Field: "text", Reason: "no extractable text"}
	}
	if s.indexed[name] {
		return rag.IngestResult{}, &rag.DuplicateDocumentError{FileName: name}
	}
	s.indexed[name] = true
	return rag.IngestResult{FileName: name, ChunksIndexed: len(data)}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, job *Job, want JobStatus) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %q, last %+v", job.ID, want, job.Snapshot())
	return JobSnapshot{}
}

func TestPool_ProcessesJobs(t *testing.T) {
	ing := newStubIngester()
	p := NewPool(Config{Workers: 2, QueueSize: 10}, ing, quietLogger())
	p.Start(context.Background())
	defer p.Stop()

	ok, err := p.Submit("a.txt", []byte("abc"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	empty, _ := p.Submit("empty.txt", nil)

	snap := waitFor(t, ok, StatusCompleted)
	if snap.ChunksIndexed != 3 || snap.FileName != "a.txt" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	snap = waitFor(t, empty, StatusFailed)
	if snap.Stage != "validation" || snap.Error == "" {
		t.Errorf("expected validation failure, got %+v", snap)
	}
	if p.Job(ok.ID) != ok {
		t.Errorf("expected job lookup by id")
	}
}

func TestPool_DuplicateStatus(t *testing.T) {
	ing := newStubIngester()
	p := NewPool(Config{Workers: 1, QueueSize: 10}, ing, quietLogger())
	p.Start(context.Background())
	defer p.Stop()

	first, _ := p.Submit("x.txt", []byte("1"))
	second, _ := p.Submit("x.txt", []byte("2"))

	waitFor(t, first, StatusCompleted)
	snap := waitFor(t, second, StatusDuplicate)
	if snap.Stage != "duplicate" {
		t.Errorf("expected duplicate stage, got %q", snap.Stage)
	}
}

func TestPool_QueueFull(t *testing.T) {
	ing := newStubIngester()
	ing.block = make(chan struct{})
	p := NewPool(Config{Workers: 1, QueueSize: 1}, ing, quietLogger())
	p.Start(context.Background())

	// One job occupies the worker, one fills the queue.
	p.Submit("busy.txt", []byte("1"))
	time.Sleep(20 * time.Millisecond)
	p.Submit("queued.txt", []byte("1"))

	job, err := p.Submit("overflow.txt", []byte("1"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if snap := job.Snapshot(); snap.Status != StatusFailed || snap.Stage != "queue" {
		t.Errorf("expected failed overflow job, got %+v", snap)
	}

	close(ing.block)
	p.Stop()
}

func TestPool_StopDrainsAndRejects(t *testing.T) {
	ing := newStubIngester()
	p := NewPool(Config{Workers: 1, QueueSize: 10}, ing, quietLogger())
	p.Start(context.Background())

	var jobs []*Job
	for _, name := range []string{"a", "b", "c"} {
		j, err := p.Submit(name, []byte("x"))
		if err != nil {
			t.Fatalf("submit %s: %v", name, err)
		}
		jobs = append(jobs, j)
	}
	p.Stop()
	p.Stop() // idempotent

	for _, j := range jobs {
		if s := j.Snapshot().Status; s != StatusCompleted {
			t.Errorf("job %s not drained, status %q", j.FileName, s)
		}
	}
	if _, err := p.Submit("late", []byte("x")); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

// gatedEmbedder holds its first call until release is closed.
type gatedEmbedder struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (e *gatedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	first := false
	e.once.Do(func() { first = true })
	if first {
		close(e.entered)
		<-e.release
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestPool_StopFinishesQueuedUploads(t *testing.T) {
	store := index.NewMemoryStore()
	emb := &gatedEmbedder{entered: make(chan struct{}), release: make(chan struct{})}
	orch := rag.New(rag.Deps{
		Store:     store,
		Embedder:  emb,
		Extractor: parser.NewExtractor(parser.Options{}),
		Logger:    quietLogger(),
	}, rag.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(Config{Workers: 1, QueueSize: 10}, orch, quietLogger())
	p.Start(ctx)

	csv := []byte("city,country\nParis,France\nLyon,France\n")
	a, err := p.Submit("a.csv", csv)
	if err != nil {
		t.Fatalf("submit a.csv: %v", err)
	}
	<-emb.entered
	b, err := p.Submit("b.csv", csv)
	if err != nil {
		t.Fatalf("submit b.csv: %v", err)
	}

	// Shutdown begins while a.csv is mid-embed and b.csv is still queued.
	cancel()
	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)
	close(emb.release)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	for _, j := range []*Job{a, b} {
		snap := j.Snapshot()
		if snap.Status != StatusCompleted || snap.ChunksIndexed == 0 {
			t.Errorf("expected %s to complete, got %+v", j.FileName, snap)
		}
	}
	if n, err := store.Count(context.Background()); err != nil || n == 0 {
		t.Errorf("expected indexed chunks after stop, got %d (%v)", n, err)
	}
}
