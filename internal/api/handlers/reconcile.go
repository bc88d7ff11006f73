package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/campusledger/reconcile/internal/api/dto"
	"github.com/campusledger/reconcile/internal/application/pipeline"
	"github.com/campusledger/reconcile/internal/infrastructure/storage"
)

// PipelineRunner abstracts the reconciliation pipeline for the HTTP surface
// and for handler tests.
type PipelineRunner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.RunResult, error)
}

// ReconcileHandler triggers pipeline runs.
type ReconcileHandler struct {
	*Base
	runner PipelineRunner
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(repo storage.Repository, runner PipelineRunner) *ReconcileHandler {
	return &ReconcileHandler{
		Base:   NewBase(repo),
		runner: runner,
	}
}

// Run handles POST /api/reconcile - runs the pipeline for one record or for
// every unassigned record. Dry runs compute decisions without persisting.
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req dto.ReconcileRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
			return
		}
	}

	result, err := h.runner.Run(r.Context(), pipeline.RunOptions{
		RecordID: req.RecordID,
		DryRun:   req.DryRun,
	})
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, toReconcileResponse(result))
}

func toReconcileResponse(result *pipeline.RunResult) dto.ReconcileResponse {
	response := dto.ReconcileResponse{
		RunID:       result.RunID,
		DryRun:      result.DryRun,
		Processed:   result.Counts.Processed,
		Confirmed:   result.Counts.Confirmed,
		Suggested:   result.Counts.Suggested,
		NeedsReview: result.Counts.NeedsReview,
		Skipped:     result.Counts.Skipped,
		Errored:     result.Counts.Errored,
		Decisions:   make([]dto.DecisionResponse, 0, len(result.Results)),
	}

	for _, res := range result.Results {
		decision := dto.DecisionResponse{
			RecordID:     res.RecordID,
			Outcome:      string(res.Outcome),
			Matches:      make([]dto.MatchResponse, 0, len(res.Decision.Matches)),
			NeedsReview:  res.Decision.NeedsReview,
			ReviewReason: string(res.Decision.Reason),
			Error:        res.Error,
		}
		for _, m := range res.Decision.Matches {
			decision.Matches = append(decision.Matches, dto.MatchResponse{
				AccountID:  m.AccountID,
				ShareCents: m.ShareCents,
				Confidence: m.Confidence,
				Method:     string(m.Method),
				Evidence:   m.Evidence,
				Confirmed:  m.Confirmed,
			})
		}
		response.Decisions = append(response.Decisions, decision)
	}
	return response
}
