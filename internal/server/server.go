// Package server provides the HTTP API for docanalysis.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/docanalysis/internal/config"
	"github.com/hyperjump/docanalysis/internal/entityindex"
	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/procedure"
	"github.com/hyperjump/docanalysis/internal/storage"
)

// Procedures lists the procedures clients may submit.
type Procedures interface {
	Definitions(ctx context.Context) ([]procedure.Definition, error)
}

// Languages lists the languages the model runtime can serve.
type Languages interface {
	Languages(ctx context.Context) (map[string]models.LanguageInfo, error)
}

// Submitter queues procedure jobs.
type Submitter interface {
	Submit(ctx context.Context, procedure, contentID string, params map[string]string) (*models.Job, error)
}

// EntitySearcher looks up tagged mentions across content records.
type EntitySearcher interface {
	Search(ctx context.Context, query string, opts entityindex.SearchOptions) ([]entityindex.Mention, error)
	DocCount() (uint64, error)
}

// WatchService reports the inbox directories being watched.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the docanalysis API.
type Server struct {
	storage    storage.Storage
	procedures Procedures
	languages  Languages
	submitter  Submitter
	entities   EntitySearcher
	watch      WatchService
	appConfig  *config.Config
	config     *config.ServerConfig
	logger     *zap.Logger
	server     *http.Server
}

// ServerOption configures optional Server dependencies.
type ServerOption func(*Server)

// WithEntitySearch enables the cross-document entity search endpoint.
func WithEntitySearch(e EntitySearcher) ServerOption {
	return func(s *Server) { s.entities = e }
}

// WithWatch reports the inbox directories in the status endpoint.
func WithWatch(w WatchService) ServerOption {
	return func(s *Server) { s.watch = w }
}

// WithAppConfig adds configuration details and disk usage to the status endpoint.
func WithAppConfig(cfg *config.Config) ServerOption {
	return func(s *Server) { s.appConfig = cfg }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store storage.Storage,
	procedures Procedures,
	languages Languages,
	submitter Submitter,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		storage:    store,
		procedures: procedures,
		languages:  languages,
		submitter:  submitter,
		config:     cfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/procedures", s.handleProcedures)
		r.Get("/languages", s.handleLanguages)
		r.Get("/entities", s.handleSearchEntities)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Route("/content", func(r chi.Router) {
			r.Post("/", s.handleCreateContent)
			r.Get("/", s.handleListContent)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetContent)
				r.Get("/jobs", s.handleListJobs)
				r.Post("/procedures/{procedure}", s.handleSubmit)
				r.Get("/tagged", s.handleTaggedText)
				r.Get("/entities", s.handleContentEntities)
			})
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
