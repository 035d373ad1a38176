package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/id/uuid"
	"github.com/JakeFAU/press-release-collector/internal/progress"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	historyTimeout  = 3 * time.Second
)

// RunHandler exposes read-only run history endpoints.
type RunHandler struct {
	runs    progress.RunReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the reader and logger.
func NewRunHandler(runs progress.RunReader, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{runs: runs, timeout: historyTimeout, logger: logger}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It returns
// {"runs": [...]} newest first, 400 for invalid filters, 503 without a
// reader, or 500 when the reader fails.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("run history unavailable"), h.logger)
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()), h.logger)
		return
	}
	var status *progress.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := parseStatus(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()), h.logger)
			return
		}
		status = &parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	runs, err := h.runs.ListRuns(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to list runs"), h.logger)
		return
	}
	if runs == nil {
		runs = []progress.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs}, h.logger)
}

// GetRun handles GET /v1/runs/{run_id}: 200 {"run": {...}}, 400 for a
// malformed ID, 404 when unknown.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("run history unavailable"), h.logger)
		return
	}
	runID := chi.URLParam(r, "run_id")
	if !uuid.Valid(runID) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid run_id"), h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	run, err := h.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("run not found"), h.logger)
			return
		}
		h.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to load run"), h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run}, h.logger)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (progress.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return progress.RunRunning, nil
	case "success":
		return progress.RunSuccess, nil
	case "error", "failed", "failure":
		return progress.RunError, nil
	default:
		return "", errors.New("invalid status")
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
