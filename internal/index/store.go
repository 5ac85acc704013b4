// Package index stores chunk embeddings and answers similarity queries over them.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Chunk is one embedded span of a document.
type Chunk struct {
	ID        string
	FileName  string
	Index     int
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// Result is a chunk ranked against a query.
type Result struct {
	Chunk Chunk
	Score float64
}

// DocumentInfo summarizes one indexed document.
type DocumentInfo struct {
	FileName string `json:"file_name"`
	Chunks   int    `json:"chunks"`
}

// FileSet restricts a search to a set of documents. A nil FileSet means
// the search is unscoped; a non-nil empty FileSet matches nothing.
type FileSet map[string]struct{}

// NewFileSet always returns a non-nil set, even with no names.
func NewFileSet(names ...string) FileSet {
	fs := make(FileSet, len(names))
	for _, n := range names {
		fs[n] = struct{}{}
	}
	return fs
}

// Contains reports whether name passes the filter.
func (fs FileSet) Contains(name string) bool {
	if fs == nil {
		return true
	}
	_, ok := fs[name]
	return ok
}

// Scoped reports whether the set restricts the search at all.
func (fs FileSet) Scoped() bool { return fs != nil }

// Names returns the set's members in no particular order.
func (fs FileSet) Names() []string {
	out := make([]string, 0, len(fs))
	for n := range fs {
		out = append(out, n)
	}
	return out
}

// Store is a vector index. Implementations must be safe for concurrent use.
type Store interface {
	// Insert commits all chunks of a new document or none of them. It assigns
	// FileName, Index and ID, and returns ErrDuplicateDocument when the
	// document is already present.
	Insert(ctx context.Context, fileName string, chunks []Chunk) (int, error)
	// Search returns at most topK chunks ordered by descending cosine score,
	// ties broken by ascending chunk ID.
	Search(ctx context.Context, query []float32, topK int, filter FileSet) ([]Result, error)
	// DeleteDocument removes a document's chunks and returns how many were removed.
	DeleteDocument(ctx context.Context, fileName string) (int, error)
	// Clear removes every chunk and returns how many were removed.
	Clear(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)
	HasDocument(ctx context.Context, fileName string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	// ErrDuplicateDocument is returned by Insert for a file name that is already indexed.
	ErrDuplicateDocument = errors.New("document already indexed")
	// ErrNoChunks is returned by Insert when there is nothing to store.
	ErrNoChunks = errors.New("no chunks to insert")
	// ErrDimensionMismatch is returned for embeddings of inconsistent length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// IndexUnavailableError wraps a failure of the underlying storage. Callers
// must not retry inserts automatically.
type IndexUnavailableError struct {
	Op  string
	Err error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("index unavailable during %s: %v", e.Op, e.Err)
}

func (e *IndexUnavailableError) Unwrap() error { return e.Err }

func unavailable(op string, err error) error {
	return &IndexUnavailableError{Op: op, Err: err}
}

// ChunkID builds the stable id of a chunk. Zero padding keeps ids in chunk order.
func ChunkID(fileName string, index int) string {
	return fmt.Sprintf("%s#%06d", safeName(fileName), index)
}

func safeName(fileName string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(fileName)
}

// prepare stamps identity fields onto the chunks and checks their embeddings.
func prepare(fileName string, chunks []Chunk) ([]Chunk, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	dim := len(chunks[0].Embedding)
	if dim == 0 {
		return nil, fmt.Errorf("%w: chunk 0 has no embedding", ErrDimensionMismatch)
	}
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return nil, fmt.Errorf("%w: chunk %d has %d values, want %d", ErrDimensionMismatch, i, len(c.Embedding), dim)
		}
		c.FileName = fileName
		c.Index = i
		c.ID = ChunkID(fileName, i)
		out[i] = c
	}
	return out, nil
}
