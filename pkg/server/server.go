// Package server exposes the explain service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/compiler-explorer/explain/pkg/cache"
	errs "github.com/compiler-explorer/explain/pkg/errors"
	"github.com/compiler-explorer/explain/pkg/explain"
	"github.com/compiler-explorer/explain/pkg/logging"
	"github.com/compiler-explorer/explain/pkg/metrics"
	"github.com/compiler-explorer/explain/pkg/service"
)

// Config holds server settings.
type Config struct {
	// ListenAddress is the host:port to bind.
	ListenAddress string

	// RootPath prefixes all routes when running behind a path-based proxy.
	RootPath string

	// MetricsEnabled emits an EMF record per request when true.
	MetricsEnabled bool
}

// Server is the HTTP front end for the explain service.
type Server struct {
	config  Config
	service *service.Service
	server  *http.Server

	mu      sync.Mutex
	running bool
}

// NewServer creates a server around an explain service.
func NewServer(svc *service.Service, config Config) (*Server, error) {
	if svc == nil {
		return nil, errs.New(errs.ConfigurationInvalid, "service cannot be nil")
	}
	if config.ListenAddress == "" {
		config.ListenAddress = ":8080"
	}
	config.RootPath = strings.TrimSuffix(config.RootPath, "/")

	s := &Server{
		config:  config,
		service: svc,
	}

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.server = &http.Server{
		Addr:              config.ListenAddress,
		Handler:           s.withRequestID(s.withCORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// registerHandlers sets up HTTP routes.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	prefix := s.config.RootPath

	root := prefix + "/"
	if prefix == "" {
		root = "/"
	}
	mux.HandleFunc(root, s.handleRoot)
	mux.HandleFunc(prefix+"/healthcheck", s.handleHealthcheck)
}

// Start begins serving and blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errs.New(errs.Unknown, "server already running")
	}
	s.running = true
	s.mu.Unlock()

	logger := logging.GetLogger()
	logger.Info(ctx, "explain server listening on %s", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server, letting in-flight requests finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the configured handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// withCORS allows browser calls from any Compiler Explorer deployment.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestID tags every request with an ID that flows through the logs.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := logging.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleRoot serves GET / (available options) and POST / (explain).
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// ServeMux routes all unmatched paths here; reject anything that is
	// not exactly the root.
	if r.URL.Path != s.config.RootPath+"/" && r.URL.Path != s.config.RootPath {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleOptions(w, r)
	case http.MethodPost:
		s.handleExplain(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	provider := s.newMetricsProvider()
	provider.PutMetric("ClaudeExplainOptionsRequest", 1)
	defer s.flushMetrics(r.Context(), provider)

	s.writeJSON(r.Context(), w, http.StatusOK, service.Options())
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.GetLogger()

	var req explain.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	provider := s.newMetricsProvider()
	defer s.flushMetrics(ctx, provider)

	response, err := s.service.Explain(ctx, &req, provider)
	if err != nil {
		logger.Error(ctx, "explain request failed: %v", err)
		s.writeError(ctx, w, statusFor(err), errorMessage(err))
		return
	}

	s.writeJSON(ctx, w, http.StatusOK, response)
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(r.Context(), w, http.StatusOK, struct {
		Status string      `json:"status"`
		Cache  cache.Stats `json:"cache"`
	}{
		Status: "ok",
		Cache:  s.service.CacheStats(),
	})
}

func (s *Server) newMetricsProvider() metrics.Provider {
	if s.config.MetricsEnabled {
		return metrics.NewEMFProvider(nil)
	}
	return metrics.NewNoopProvider()
}

func (s *Server) flushMetrics(ctx context.Context, provider metrics.Provider) {
	if err := provider.Flush(); err != nil {
		logging.GetLogger().Warn(ctx, "failed to flush metrics: %v", err)
	}
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.GetLogger().Warn(ctx, "failed to write response: %v", err)
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	s.writeJSON(ctx, w, status, explain.ExplainResponse{
		Status:  "error",
		Message: message,
	})
}

// statusFor maps service error codes onto HTTP statuses.
func statusFor(err error) int {
	switch errs.CodeOf(err) {
	case errs.InvalidInput, errs.ValidationFailed:
		return http.StatusBadRequest
	case errs.RateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the client-facing message without internal wrapping.
func errorMessage(err error) string {
	return err.Error()
}
