package api

import "net/http"

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	stats := s.orch.Stats()
	if stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	resp := map[string]any{
		"providers": map[string]string{
			"embed":    s.cfg.EmbedProvider,
			"generate": s.cfg.GeneratorProvider,
		},
		"stats": stats.Snapshot(),
	}
	if s.jobs != nil {
		resp["ingest_queue_depth"] = s.jobs.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}
