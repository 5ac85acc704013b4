package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dgallion1/docchat/internal/chunker"
	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/parser"
	"github.com/dgallion1/docchat/internal/rag"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeError maps a pipeline error onto a status code and names the stage
// that failed.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	code := statusFor(err)
	if code >= 500 {
		log.Error("request failed", "stage", rag.Stage(err), "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "stage": rag.Stage(err)})
}

func statusFor(err error) int {
	var (
		validation *rag.ValidationError
		duplicate  *rag.DuplicateDocumentError
		extraction *parser.ExtractionError
		embedding  *rag.EmbeddingError
		generation *rag.GenerationUnavailableError
		unavail    *index.IndexUnavailableError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.Is(err, parser.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &validation), errors.As(err, &extraction), errors.Is(err, chunker.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.As(err, &embedding), errors.As(err, &generation), errors.As(err, &unavail):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
