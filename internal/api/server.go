package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/app"
	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/dedup"
	"github.com/JakeFAU/press-release-collector/internal/metrics"
	"github.com/JakeFAU/press-release-collector/internal/progress"
	"github.com/JakeFAU/press-release-collector/internal/queries"
)

const maxRequestBytes = 1 << 20

// Pipelines runs collection phases. *app.App implements it.
type Pipelines interface {
	CollectSERP(ctx context.Context, queries []collector.Query) (app.RunReport, error)
	ScrapeContent(ctx context.Context, urls []string) (app.RunReport, error)
}

// Server wires HTTP handlers to the pipelines and the run history.
type Server struct {
	router    chi.Router
	pipelines Pipelines
	generator *queries.Generator
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs may be nil,
// in which case the history endpoints answer 503.
func NewServer(pipelines Pipelines, runs progress.RunReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipelines: pipelines,
		generator: queries.New(logger.Named("queries")),
		logger:    logger,
	}
	history := NewRunHandler(runs, logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", history.ListRuns)
		r.Post("/serp", s.runSERP)
		r.Post("/content", s.runContent)
		r.Get("/{run_id}", history.GetRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type serpRequest struct {
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	NewsroomURLs []string `json:"newsroom_urls"`
	// Queries bypasses generation and walks the given search URLs as-is.
	Queries []string `json:"queries"`
}

type contentRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) runSERP(w http.ResponseWriter, r *http.Request) {
	var req serpRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var qs []collector.Query
	switch {
	case len(req.Queries) > 0:
		for _, raw := range dedup.Unique(req.Queries) {
			qs = append(qs, collector.NewQuery(raw))
		}
	case len(req.NewsroomURLs) > 0:
		generated, err := s.generator.Generate(req.NewsroomURLs, req.StartDate, req.EndDate)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		qs = generated
	default:
		s.writeError(w, http.StatusBadRequest, "newsroom_urls or queries required")
		return
	}
	report, err := s.pipelines.CollectSERP(r.Context(), qs)
	s.writeReport(w, report, err)
}

func (s *Server) runContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	report, err := s.pipelines.ScrapeContent(r.Context(), req.URLs)
	s.writeReport(w, report, err)
}

func (s *Server) writeReport(w http.ResponseWriter, report app.RunReport, err error) {
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, report)
	case errors.Is(err, collector.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case report.RunID != "":
		// The run happened but flushing failed; callers still get the counts.
		s.logger.Error("run finished with errors", zap.String("run_id", report.RunID), zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, report)
	default:
		s.logger.Error("run could not start", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if strings.TrimSpace(reqID) == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.logger)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
