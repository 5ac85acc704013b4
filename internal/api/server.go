package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docchat/internal/config"
	"github.com/dgallion1/docchat/internal/ingest"
	"github.com/dgallion1/docchat/internal/rag"
)

// Server is the HTTP API server for docchat.
type Server struct {
	router chi.Router
	orch   *rag.Orchestrator
	jobs   *ingest.Pool // nil disables batch upload
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *rag.Orchestrator, jobs *ingest.Pool, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orch: orch,
		jobs: jobs,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/upload", s.handleUpload)
		r.Post("/upload/batch", s.handleBatchUpload)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
		r.Delete("/{fileName}", s.handleDeleteDocument)
	})

	r.Post("/index/clear", s.handleClearIndex)
	r.Post("/chat", s.handleChat)
	r.Get("/stats/llm", s.handleLLMStats)

	s.router = r
}
