package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docchat/internal/index"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Health(r.Context()))
}

// handleListDocuments lists indexed documents with their chunk counts.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.orch.List(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if docs == nil {
		docs = []index.DocumentInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": docs})
}

// handleDeleteDocument removes one document. Unknown names report 0 chunks.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "fileName")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			jsonError(w, "invalid file name", http.StatusBadRequest)
			return
		}
		name = unescaped
	}
	n, err := s.orch.Delete(r.Context(), name)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_name":      name,
		"chunks_deleted": n,
	})
}

func (s *Server) handleClearIndex(w http.ResponseWriter, r *http.Request) {
	n, err := s.orch.Clear(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cleared":        true,
		"chunks_deleted": n,
	})
}
