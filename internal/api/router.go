// Package api provides the HTTP control plane for assetpiped.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/forgekit/assetpipe/internal/config"
	"github.com/forgekit/assetpipe/pkg/pipeline"
)

// Server represents the HTTP control-plane server for a single Pipeline.
type Server struct {
	cfg    *config.Config
	router chi.Router
	pipe   *pipeline.Pipeline
}

// NewServer creates a new API server wired to pipe.
func NewServer(cfg *config.Config, pipe *pipeline.Pipeline) *Server {
	s := &Server{cfg: cfg, pipe: pipe}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.requestTimeout()) * time.Second))

	if s.cfg.Security.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.API.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.cfg.API.APIKey != "" {
		r.Use(s.apiKeyAuth)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Get("/stats", s.handleStats)

	r.Route("/assets", func(r chi.Router) {
		r.Get("/by-path", s.handleGetAssetByPath)
		r.Route("/{guid}", func(r chi.Router) {
			r.Get("/", s.handleGetAsset)
			r.Post("/reimport", s.handleReimportAsset)
		})
	})

	r.Get("/artifacts/{hash}", s.handleGetArtifact)
	r.Post("/refresh", s.handleRefresh)
	r.Get("/search", s.handleSearch)

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestTimeout() int {
	if s.cfg.API.RequestTimeout <= 0 {
		return 60
	}
	return s.cfg.API.RequestTimeout
}

func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/version" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}
		if apiKey != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
