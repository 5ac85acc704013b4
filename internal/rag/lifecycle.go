package rag

import (
	"context"
	"sync"

	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/llm"
)

// List returns every document with its chunk count, sorted by name.
func (o *Orchestrator) List(ctx context.Context) ([]index.DocumentInfo, error) {
	return o.store.ListDocuments(ctx)
}

// Delete removes a document and reports how many chunks went with it.
// Deleting an unknown name returns 0.
func (o *Orchestrator) Delete(ctx context.Context, fileName string) (int, error) {
	if err := validateFileName(fileName); err != nil {
		return 0, err
	}
	unlock := o.locks.Lock(fileName)
	defer unlock()

	n, err := o.store.DeleteDocument(ctx, fileName)
	if err != nil {
		return 0, err
	}
	if o.archive != nil {
		if err := o.archive.Remove(fileName); err != nil {
			o.log.Warn("removing archived upload failed", "file_name", fileName, "error", err)
		}
	}
	o.log.Info("document deleted", "file_name", fileName, "chunks", n)
	return n, nil
}

// Clear removes every document. It waits for in-flight ingests and deletes
// to finish and holds new ones off until it is done.
func (o *Orchestrator) Clear(ctx context.Context) (int, error) {
	unlock := o.locks.LockAll()
	defer unlock()

	n, err := o.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	if o.archive != nil {
		if err := o.archive.Clear(); err != nil {
			o.log.Warn("clearing upload archive failed", "error", err)
		}
	}
	o.log.Info("index cleared", "chunks", n)
	return n, nil
}

// Health is the result of a bounded probe of the index and the embedder.
type Health struct {
	Status        string `json:"status"`
	Up            bool   `json:"up"`
	ChunksIndexed int    `json:"chunks_indexed"`
	IndexUp       bool   `json:"index_up"`
	EmbedderUp    bool   `json:"embedder_up"`
}

// Health probes the index and embedder in parallel. It never returns an
// error and never takes longer than the health timeout, whatever the probes do.
func (o *Orchestrator) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.HealthTimeout)
	defer cancel()

	var (
		mu sync.Mutex
		h  Health
		wg sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := o.store.Ping(ctx); err != nil {
			o.log.Debug("index probe failed", "error", err)
			return
		}
		n, err := o.store.Count(ctx)
		if err != nil {
			o.log.Debug("index count failed", "error", err)
			return
		}
		mu.Lock()
		h.IndexUp, h.ChunksIndexed = true, n
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		if err := o.pingEmbedder(ctx); err != nil {
			o.log.Debug("embedder probe failed", "error", err)
			return
		}
		mu.Lock()
		h.EmbedderUp = true
		mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// Probes that ignore their context are left behind; their results are dropped.
	}

	mu.Lock()
	out := h
	mu.Unlock()
	out.Up = out.IndexUp && out.EmbedderUp
	out.Status = "ok"
	if !out.Up {
		out.Status = "degraded"
	}
	return out
}

func (o *Orchestrator) pingEmbedder(ctx context.Context) error {
	if p, ok := o.embedder.(Pinger); ok {
		return p.Ping(ctx)
	}
	_, err := o.embedder.Embed(ctx, []string{"ping"})
	return err
}

// Stats exposes provider latency windows.
func (o *Orchestrator) Stats() *llm.ProviderStats { return o.stats }
