package rag

import (
	"errors"
	"fmt"

	"github.com/dgallion1/docchat/internal/chunker"
	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/parser"
)

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DuplicateDocumentError is returned when a file name is already indexed.
// The caller must delete the document before uploading it again.
type DuplicateDocumentError struct {
	FileName string
}

func (e *DuplicateDocumentError) Error() string {
	return fmt.Sprintf("document %q is already indexed; delete it before uploading again", e.FileName)
}

func (e *DuplicateDocumentError) Is(target error) bool {
	return target == index.ErrDuplicateDocument
}

// EmbeddingError reports a failed or timed-out embedding call. Stage is
// "ingest" or "query".
type EmbeddingError struct {
	Stage string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed during %s: %v", e.Stage, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationUnavailableError reports a failed, cancelled or timed-out
// generation call. No answer is fabricated in its place.
type GenerationUnavailableError struct {
	Err error
}

func (e *GenerationUnavailableError) Error() string {
	return fmt.Sprintf("answer generation unavailable: %v", e.Err)
}

func (e *GenerationUnavailableError) Unwrap() error { return e.Err }

// Stage names the pipeline step an error came from, for error responses.
func Stage(err error) string {
	var (
		validation *ValidationError
		duplicate  *DuplicateDocumentError
		extraction *parser.ExtractionError
		embedding  *EmbeddingError
		generation *GenerationUnavailableError
		unavail    *index.IndexUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &duplicate):
		return "duplicate"
	case errors.As(err, &extraction):
		return "extraction"
	case errors.Is(err, chunker.ErrEmptyInput):
		return "chunking"
	case errors.As(err, &embedding):
		return "embedding"
	case errors.As(err, &unavail):
		return "index"
	case errors.As(err, &generation):
		return "generation"
	}
	return "internal"
}
