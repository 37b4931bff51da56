package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/halosync/internal/apperr"
	"github.com/starford/halosync/internal/ledger"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// RunStore is the read side of the ledger.
type RunStore interface {
	RecentRuns(limit int) ([]ledger.Run, error)
	GetRun(id string) (*ledger.Run, error)
	RunDocuments(runID string) ([]ledger.Document, error)
}

var _ RunStore = (*ledger.DB)(nil)

// Handler holds API route handlers.
type Handler struct {
	runs RunStore
}

// NewHandler creates a new Handler.
func NewHandler(runs RunStore) *Handler {
	return &Handler{runs: runs}
}

func (h *Handler) ledgerDisabled(w http.ResponseWriter) bool {
	if h.runs != nil {
		return false
	}
	writeJSON(w, http.StatusNotFound, errorBody("run ledger disabled"))
	return true
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recent sync runs, newest first
//	@Tags			runs
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum number of runs"
//	@Success		200		{object}	RunListResponse
//	@Failure		404		{object}	errResponse
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.ledgerDisabled(w) {
		return
	}
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.runs.RecentRuns(limit)
	if err != nil {
		slog.Error("list runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// GetRun handles GET /api/runs/{id}.
//
//	@Summary		Get one run with its document outcomes
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	RunDetail
//	@Failure		404	{object}	errResponse
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.ledgerDisabled(w) {
		return
	}
	id := chi.URLParam(r, "id")

	run, err := h.runs.GetRun(id)
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("run not found"))
		return
	}
	if err != nil {
		slog.Error("get run failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	docs, err := h.runs.RunDocuments(id)
	if err != nil {
		slog.Error("run documents failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	writeJSON(w, http.StatusOK, RunDetail{Run: *run, Documents: docs})
}
