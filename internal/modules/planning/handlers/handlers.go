// Package handlers provides HTTP handlers for analysis runs and their sequencing.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/planning"
	"github.com/aristath/tierfolio/internal/modules/reports"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
	"github.com/aristath/tierfolio/internal/modules/snapshots"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// maxBodyBytes bounds snapshot uploads
const maxBodyBytes = 10 << 20

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// PlanningService is the subset of planning.Service used by the handlers
type PlanningService interface {
	Run(ctx context.Context, snapshot *domain.Snapshot, source string) (*reports.Run, error)
	GetRun(ctx context.Context, id string) (*reports.Run, error)
	Sequence(ctx context.Context, runID string, req planning.SequenceRequest, opts ...sequencing.Option) (*reports.Execution, error)
	Simulate(run *reports.Run, summary sequencing.Summary) (*planning.Projection, error)
	Policies() tiers.PolicySet
	Config() planning.Config
}

// RunLister lists stored runs and executions
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]reports.RunSummary, error)
	ListExecutions(ctx context.Context, runID string) ([]reports.Execution, error)
}

// Handler handles run HTTP requests
type Handler struct {
	service PlanningService
	runs    RunLister
	log     zerolog.Logger
}

// NewHandler creates a new runs handler
func NewHandler(service PlanningService, runs RunLister, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		runs:    runs,
		log:     log.With().Str("handler", "runs").Logger(),
	}
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

// RunListResponse wraps the recent run listing
type RunListResponse struct {
	Runs  []reports.RunSummary `json:"runs"`
	Total int                  `json:"total"`
}

// ExecutionListResponse wraps the executions of one run
type ExecutionListResponse struct {
	Executions []reports.Execution `json:"executions"`
	Total      int                 `json:"total"`
}

// PolicyResponse describes the active tier policy and engine settings
type PolicyResponse struct {
	Policies tiers.PolicySet `json:"policies"`
	Engine   planning.Config `json:"engine"`
}

// HandleCreateRun handles POST /api/runs. The body is a JSON or YAML snapshot,
// selected by Content-Type.
func (h *Handler) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "Snapshot too large", nil)
		return
	}

	snapshot, err := snapshots.Parse(body, snapshots.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "api"
	}

	run, err := h.service.Run(r.Context(), snapshot, source)
	if err != nil {
		h.handleServiceError(w, err, "Failed to run analysis")
		return
	}

	h.writeJSON(w, http.StatusCreated, run)
}

// HandleListRuns handles GET /api/runs?limit=N
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs", nil)
		return
	}
	if runs == nil {
		runs = []reports.RunSummary{}
	}

	h.writeJSON(w, http.StatusOK, RunListResponse{Runs: runs, Total: len(runs)})
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err, "Failed to load run")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleSequence handles POST /api/runs/{id}/sequence. An empty body sequences
// with the run's own cash and the configured policy.
func (h *Handler) HandleSequence(w http.ResponseWriter, r *http.Request) {
	var req planning.SequenceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, "Invalid request body", nil)
			return
		}
	}

	exec, err := h.service.Sequence(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.handleServiceError(w, err, "Failed to sequence run")
		return
	}

	h.writeJSON(w, http.StatusCreated, exec)
}

// HandleListExecutions handles GET /api/runs/{id}/executions
func (h *Handler) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if _, err := h.service.GetRun(r.Context(), runID); err != nil {
		h.handleServiceError(w, err, "Failed to load run")
		return
	}

	execs, err := h.runs.ListExecutions(r.Context(), runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to list executions")
		h.writeError(w, http.StatusInternalServerError, "Failed to list executions", nil)
		return
	}
	if execs == nil {
		execs = []reports.Execution{}
	}

	h.writeJSON(w, http.StatusOK, ExecutionListResponse{Executions: execs, Total: len(execs)})
}

// HandleProjection handles GET /api/runs/{id}/executions/{execID}/projection:
// the portfolio expected once that execution's fills settle
func (h *Handler) HandleProjection(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	execID := chi.URLParam(r, "execID")

	run, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to load run")
		return
	}

	execs, err := h.runs.ListExecutions(r.Context(), runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to list executions")
		h.writeError(w, http.StatusInternalServerError, "Failed to list executions", nil)
		return
	}

	for _, exec := range execs {
		if exec.ID != execID {
			continue
		}
		projection, err := h.service.Simulate(run, exec.Summary)
		if err != nil {
			h.log.Error().Err(err).Str("run_id", runID).Str("execution_id", execID).Msg("Failed to simulate execution")
			h.writeError(w, http.StatusInternalServerError, "Failed to simulate execution", nil)
			return
		}
		h.writeJSON(w, http.StatusOK, projection)
		return
	}

	h.writeError(w, http.StatusNotFound, fmt.Sprintf("execution %s not found", execID), nil)
}

// HandleGetPolicy handles GET /api/policy
func (h *Handler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, PolicyResponse{
		Policies: h.service.Policies(),
		Engine:   h.service.Config(),
	})
}

// handleServiceError maps planning errors to HTTP statuses
func (h *Handler) handleServiceError(w http.ResponseWriter, err error, msg string) {
	var fatal *domain.FatalInputError
	switch {
	case errors.As(err, &fatal):
		h.writeError(w, http.StatusUnprocessableEntity, "Snapshot rejected", fatal.Problems)
	case errors.Is(err, reports.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, planning.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		h.log.Error().Err(err).Msg(msg)
		h.writeError(w, http.StatusInternalServerError, msg, nil)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string, problems []string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg, Problems: problems})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
