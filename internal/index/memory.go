package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps the index in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]Chunk
	ids  map[string]string // chunk 0 id -> file name
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]Chunk),
		ids:  make(map[string]string),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, fileName string, chunks []Chunk) (int, error) {
	prepared, err := prepare(fileName, chunks)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, unavailable("insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[fileName]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateDocument, fileName)
	}
	if _, ok := s.ids[prepared[0].ID]; ok {
		return 0, fmt.Errorf("%w: %s collides with an indexed name", ErrDuplicateDocument, fileName)
	}
	s.docs[fileName] = prepared
	s.ids[prepared[0].ID] = fileName
	return len(prepared), nil
}

func (s *MemoryStore) Search(ctx context.Context, query []float32, topK int, filter FileSet) ([]Result, error) {
	if topK <= 0 || (filter.Scoped() && len(filter) == 0) {
		return []Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best := newTopK(topK)
	for name, chunks := range s.docs {
		if !filter.Contains(name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, unavailable("search", err)
		}
		for _, c := range chunks {
			best.offer(query, c)
		}
	}
	return best.results(), nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, fileName string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks, ok := s.docs[fileName]
	if !ok {
		return 0, nil
	}
	delete(s.docs, fileName)
	delete(s.ids, chunks[0].ID)
	return len(chunks), nil
}

func (s *MemoryStore) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("clear", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, chunks := range s.docs {
		n += len(chunks)
	}
	s.docs = make(map[string][]Chunk)
	s.ids = make(map[string]string)
	return n, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("count", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, chunks := range s.docs {
		n += len(chunks)
	}
	return n, nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	s.mu.RLock()
	out := make([]DocumentInfo, 0, len(s.docs))
	for name, chunks := range s.docs {
		out = append(out, DocumentInfo{FileName: name, Chunks: len(chunks)})
	}
	s.mu.RUnlock()
	sortDocuments(out)
	return out, nil
}

func (s *MemoryStore) HasDocument(ctx context.Context, fileName string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("lookup", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[fileName]
	return ok, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// sortDocuments orders documents case-insensitively, falling back to the
// exact name so the order is total.
func sortDocuments(docs []DocumentInfo) {
	sort.Slice(docs, func(i, j int) bool {
		a, b := strings.ToLower(docs[i].FileName), strings.ToLower(docs[j].FileName)
		if a != b {
			return a < b
		}
		return docs[i].FileName < docs[j].FileName
	})
}
