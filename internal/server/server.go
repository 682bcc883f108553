// Package server provides the HTTP REST API for company research reports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/db"
	"github.com/supervity/company-research/internal/generation"
	"github.com/supervity/company-research/internal/llm"
	"github.com/supervity/company-research/internal/pipeline"
	"github.com/supervity/company-research/internal/rendering"
	"github.com/supervity/company-research/internal/sections"
	"github.com/supervity/company-research/internal/server/ratelimit"
	"github.com/supervity/company-research/internal/storage"
)

// RunDB is the persistence the server needs. *db.DB implements it.
type RunDB interface {
	pipeline.RunRecorder
	GetRun(ctx context.Context, id string) (*db.Run, error)
	ListRuns(ctx context.Context, f db.RunFilter) ([]db.Run, error)
	DeleteRun(ctx context.Context, id string) error
	GenerationLog(ctx context.Context, company string, limit int) ([]db.GenerationLogEntry, error)
}

// Defaults fill in what a report request leaves out.
type Defaults struct {
	RequesterCompany string
	Language         sections.Language
	ModelName        string
	Temperature      float64
	Summary          bool
	PoolSize         int
	Retry            generation.RetryPolicy
	Provider         string
	CallTimeout      time.Duration
}

// Config holds server configuration
type Config struct {
	Addr    string
	Client  llm.Client
	Store   storage.Store
	Catalog *sections.Catalog
	// DB is optional; without it runs live only in memory.
	DB RunDB
	// OutputRoot holds one directory per run with its report files.
	OutputRoot  string
	Renderer    rendering.Renderer
	Defaults    Defaults
	RateLimit   *ratelimit.Config
	CORSOrigins []string
	Logger      *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	cfg         Config
	httpServer  *http.Server
	handler     http.Handler
	rateLimiter *ratelimit.Limiter
	validate    *validator.Validate
	logger      *zap.Logger
	runs        *registry
	now         func() time.Time

	// baseCtx outlives requests; background runs derive from it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Client == nil {
		return nil, errors.New("server: model client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("server: section store is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = sections.Default()
	}
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = "output"
	}
	if cfg.Defaults.RequesterCompany == "" {
		cfg.Defaults.RequesterCompany = "Supervity"
	}
	if cfg.Defaults.Language == "" {
		cfg.Defaults.Language = sections.English
	}
	if cfg.Renderer == nil {
		cfg.Renderer = rendering.HTMLOnly{}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
		runs:        newRegistry(),
		now:         time.Now,
		baseCtx:     baseCtx,
		cancelBase:  cancel,
	}

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sections", s.handleSections)
	mux.HandleFunc("GET /languages", s.handleLanguages)

	mux.HandleFunc("POST /reports", s.handleCreateReport)
	mux.HandleFunc("POST /reports/stream", s.handleStreamReport)
	mux.HandleFunc("GET /reports", s.handleListReports)
	mux.HandleFunc("GET /reports/{id}", s.handleGetReport)
	mux.HandleFunc("DELETE /reports/{id}", s.handleDeleteReport)
	mux.HandleFunc("POST /reports/{id}/stop", s.handleStopReport)
	mux.HandleFunc("GET /reports/{id}/sections/{section}", s.handleGetSection)
	mux.HandleFunc("GET /reports/{id}/document", s.handleGetDocument)

	mux.HandleFunc("GET /analytics/generations", s.handleGenerationLog)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streamed runs last as long as generation does
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves until ctx is cancelled, then shuts down gracefully: running reports are
// stopped and awaited.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops running reports, stops accepting requests and waits for the runs.
func (s *Server) Shutdown(ctx context.Context) error {
	// Streaming handlers only return once their run ends, so stop runs first.
	waits := s.runs.stopAll()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
	}

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			s.cancelBase()
		}
	}
	s.cancelBase()
	s.wg.Wait()

	// Stop rate limiter cleanup goroutine
	s.rateLimiter.Stop()
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		allowAll = allowAll || o == "*"
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chargeGeneration takes the generation quota for an accepted report request. It
// writes the 429 response and returns false when the quota is spent.
func (s *Server) chargeGeneration(w http.ResponseWriter, r *http.Request) bool {
	allowed, info := s.rateLimiter.Charge(s.extractClientID(r), r.URL.Path, r.Method)
	s.setRateLimitHeaders(w, info)
	if !allowed {
		s.rateLimitResponse(w, info)
	}
	return allowed
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the logging middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// extractClientID extracts the client identifier (IP address) from the request.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	s.logger.Warn("rate limit exceeded",
		zap.Int("limit", info.Limit),
		zap.Time("reset", info.ResetTime))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// errorFrom writes err with the status HTTPStatus assigns to it.
func (s *Server) errorFrom(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	body := map[string]string{"error": err.Error()}
	var reqErr *generation.RequestValidationError
	if errors.As(err, &reqErr) {
		body["field"] = reqErr.Field
	}
	var valErr *ErrValidation
	if errors.As(err, &valErr) {
		body["field"] = valErr.Field
	}
	s.jsonResponse(w, status, body)
}

// runDir is where a run's report files go.
func (s *Server) runDir(id string) string {
	return filepath.Join(s.cfg.OutputRoot, id)
}

// runSections is where a server run keeps its own section texts, so concurrent
// runs for the same company and language never read each other's sections.
func (s *Server) runSections(id string) string {
	return filepath.Join(s.runDir(id), "sections")
}

// checkRunID rejects anything that is not a run id before it reaches the filesystem.
func checkRunID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &ErrNotFound{What: "run", ID: id}
	}
	return nil
}
