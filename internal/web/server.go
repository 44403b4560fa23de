// Package web serves the roast machine pages and JSON API.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"roast-machine/internal/config"
	"roast-machine/internal/generator"
	"roast-machine/internal/models"
	"roast-machine/internal/store"
	"roast-machine/pkg/logger"

	"github.com/gorilla/mux"
)

//go:embed templates/*.html
var templateFS embed.FS

type Generator interface {
	Generate(ctx context.Context) (generator.Result, error)
}

type Catalog interface {
	Page(q store.PageQuery) (store.Page, error)
	Stats() (store.Stats, error)
}

type Sharer interface {
	Share(ctx context.Context, id string) (string, error)
	Lookup(ctx context.Context, id string) (models.Joke, error)
	Permalink(id string) string
	ImageURL(id string) string
}

type Images interface {
	Render(text string) ([]byte, error)
}

// Deps are the components behind the handlers.
type Deps struct {
	Generator Generator
	Catalog   Catalog
	Sharer    Sharer
	Images    Images
	Styles    []string
	ModelName string
	PerPage   int
}

type Server struct {
	cfg  config.ServerConfig
	deps Deps

	tmpl   *template.Template
	router *mux.Router
	http   *http.Server
}

func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	if deps.PerPage <= 0 {
		deps.PerPage = store.DefaultPerPage
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		tmpl:   tmpl,
		router: mux.NewRouter(),
	}
	s.routes()

	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestID, logRequests, recoverer)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/all-jokes", s.handleAllJokes).Methods(http.MethodGet)
	r.HandleFunc("/joke/{id}", s.handlePermalink).Methods(http.MethodGet)
	r.HandleFunc("/joke/{id}/image", s.handleImage).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/joke", s.handleGenerate).Methods(http.MethodGet)
	api.HandleFunc("/share/{id}", s.handleShare).Methods(http.MethodPost)
	api.HandleFunc("/jokes", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	logger.Info("HTTP server listening", logger.String("addr", s.http.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Shutting down HTTP server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	return nil
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Error("Failed to render template", logger.String("template", name), logger.Err(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
