package handlers

import (
	"net/http"
	"time"

	"github.com/campusledger/reconcile/internal/api/dto"
	"github.com/campusledger/reconcile/internal/infrastructure/storage"
)

// RunsHandler handles historical pipeline run requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/runs - returns recent pipeline runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.repo.ListRuns(r.Context(), limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := make([]dto.RunResponse, 0, len(runs))
	for _, run := range runs {
		res := dto.RunResponse{
			ID:          run.ID,
			StartedAt:   run.StartedAt.Format(time.RFC3339),
			DryRun:      run.DryRun,
			Status:      run.Status,
			Processed:   run.Processed,
			Confirmed:   run.Confirmed,
			Suggested:   run.Suggested,
			NeedsReview: run.NeedsReview,
			Skipped:     run.Skipped,
			Errored:     run.Errored,
		}
		if run.CompletedAt != nil {
			res.CompletedAt = run.CompletedAt.Format(time.RFC3339)
		}
		response = append(response, res)
	}
	h.WriteJSON(w, http.StatusOK, response)
}
