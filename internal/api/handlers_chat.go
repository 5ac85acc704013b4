package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/docchat/internal/index"
	"github.com/dgallion1/docchat/internal/rag"
)

// chatRequest keeps selected_files as a plain slice: absent or null decodes
// to nil (search everything) while [] decodes to an empty, non-nil slice.
type chatRequest struct {
	Message       string        `json:"message"`
	TopK          int           `json:"top_k"`
	History       []rag.Message `json:"history"`
	SelectedFiles []string      `json:"selected_files"`
}

const maxChatBody = 1 << 20

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if tooLarge(err) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var selected index.FileSet
	if req.SelectedFiles != nil {
		selected = index.NewFileSet(req.SelectedFiles...)
	}

	resp, err := s.orch.Answer(r.Context(), rag.ChatRequest{
		Message:  req.Message,
		TopK:     req.TopK,
		History:  req.History,
		Selected: selected,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if resp.Sources == nil {
		resp.Sources = []rag.Source{}
	}
	writeJSON(w, http.StatusOK, resp)
}
