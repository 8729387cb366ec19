// Package server exposes the scoring API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mchmarny/readmit/pkg/align"
	"github.com/mchmarny/readmit/pkg/bundle"
	"github.com/mchmarny/readmit/pkg/score"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20

	// DefaultAddress is used when no address is configured.
	DefaultAddress = ":8080"
)

var errRowsRequired = errors.New("field required: rows")

// ScoreRequest is the POST /score body.
type ScoreRequest struct {
	Rows []map[string]any `json:"rows"`
}

// ScoreResponse is the POST /score result.
type ScoreResponse struct {
	Probabilities []float64 `json:"probabilities"`
	N             int       `json:"n"`
}

// Defaults mirrors the values the aligner synthesizes for absent columns.
type Defaults struct {
	Categorical        map[string]string  `json:"categorical"`
	Numeric            map[string]float64 `json:"numeric"`
	MissingFlagDefault int                `json:"missing_flag_default"`
}

// Metadata is the GET /metadata result.
type Metadata struct {
	ExpectedFeatures []string `json:"expected_features"`
	Defaults         Defaults `json:"defaults"`
	ModelPath        string   `json:"model_path"`
	Version          string   `json:"version"`
}

// Server serves one model provider.
type Server struct {
	address  string
	provider *score.Provider
	router   *chi.Mux
	metrics  *metrics
}

// New returns a server for provider p listening on address.
func New(address string, p *score.Provider) *Server {
	if address == "" {
		address = DefaultAddress
	}
	s := &Server{
		address:  address,
		provider: p,
		router:   chi.NewRouter(),
		metrics:  newMetrics(p.Ready),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.metrics.instrument)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.healthz)
	s.router.Get("/readyz", s.readyz)
	s.router.Post("/score", s.score)
	s.router.Get("/metadata", s.metadata)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.handler())
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hs := &http.Server{
		Addr:           s.address,
		Handler:        s.router,
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("server started", "address", s.address, "model", s.provider.Source())

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := hs.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.provider.Ready() {
		writeError(w, http.StatusServiceUnavailable, score.ErrNotLoaded)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) bundle(w http.ResponseWriter, r *http.Request) (*bundle.Bundle, bool) {
	b, err := s.provider.Load(r.Context())
	if err != nil {
		slog.Error("model unavailable", "source", s.provider.Source(), "error", err)
		writeError(w, http.StatusServiceUnavailable, score.ErrNotLoaded)
		return nil, false
	}
	return b, true
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Rows == nil {
		writeError(w, http.StatusUnprocessableEntity, errRowsRequired)
		return
	}

	b, ok := s.bundle(w, r)
	if !ok {
		return
	}

	probs, err := score.ScoreRecords(b, req.Rows)
	if err != nil {
		slog.Error("scoring failed", "rows", len(req.Rows), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.scoredRows.Add(float64(len(probs)))
	writeJSON(w, http.StatusOK, ScoreResponse{Probabilities: probs, N: len(probs)})
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, Metadata{
		ExpectedFeatures: b.FeatureNames,
		Defaults: Defaults{
			Categorical:        align.CategoricalDefaults,
			Numeric:            align.NumericDefaults,
			MissingFlagDefault: align.MissingFlagDefault,
		},
		ModelPath: s.provider.Source(),
		Version:   bundle.Version,
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
