package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusledger/reconcile/internal/api/dto"
	"github.com/campusledger/reconcile/internal/diagnostics"
	"github.com/campusledger/reconcile/internal/domain/match"
	"github.com/campusledger/reconcile/internal/infrastructure/storage"
)

// RecordsHandler handles payment-record HTTP requests.
type RecordsHandler struct {
	*Base
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(repo storage.Repository) *RecordsHandler {
	return &RecordsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/records - returns paginated payment records.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.PaymentFilters{
		Unassigned:  ParseBoolParam(r, "unassigned", false),
		NeedsReview: ParseBoolParam(r, "needs_review", false),
		Limit:       ParseIntParam(r, "limit", 50),
		Offset:      ParseIntParam(r, "offset", 0),
	}

	result, err := h.repo.ListPaymentRecords(r.Context(), filters)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.RecordListResponse{
		Records:    make([]dto.RecordResponse, 0, len(result.Records)),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	}
	for _, rec := range result.Records {
		response.Records = append(response.Records, toRecordResponse(rec))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/records/{id} - returns a single payment record.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

// Audit handles GET /api/records/{id}/audit - returns the record's ledger
// entries, oldest first.
func (h *RecordsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}

	audits, err := h.repo.ListAuditRecords(r.Context(), rec.ID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := make([]dto.AuditResponse, 0, len(audits))
	for _, a := range audits {
		response = append(response, dto.AuditResponse{
			ID:         a.ID,
			AccountID:  a.AccountID,
			Confidence: a.Confidence,
			Method:     string(a.Method),
			Confirmed:  a.Confirmed,
			CreatedAt:  a.CreatedAt.Format(time.RFC3339),
		})
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// Similar handles GET /api/records/{id}/similar - ranks accounts by name
// similarity for the manual review surface.
func (h *RecordsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadRecord(w, r)
	if !ok {
		return
	}

	accounts, err := h.repo.ListAccounts(r.Context())
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	roster := make([]match.Account, len(accounts))
	for i, a := range accounts {
		roster[i] = match.Account{
			ID:         a.ID,
			GivenName:  a.GivenName,
			FamilyName: a.FamilyName,
			LongName:   a.LongName,
		}
	}

	limit := ParseIntParam(r, "limit", 5)
	fullText := rec.Reference + " " + rec.ReferenceNumber + " " + rec.PayerName
	suggestions := diagnostics.SimilarAccounts(rec.PayerName, fullText, roster, limit)
	if suggestions == nil {
		suggestions = []diagnostics.Suggestion{}
	}
	h.WriteJSON(w, http.StatusOK, suggestions)
}

// loadRecord parses the id URL param and loads the record, writing the
// error response itself when that fails.
func (h *RecordsHandler) loadRecord(w http.ResponseWriter, r *http.Request) (*storage.PaymentRecord, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid record ID"))
		return nil, false
	}

	rec, err := h.repo.GetPaymentRecord(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("payment record"))
		return nil, false
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return nil, false
	}
	return rec, true
}

func toRecordResponse(rec *storage.PaymentRecord) dto.RecordResponse {
	return dto.RecordResponse{
		ID:                rec.ID,
		AmountCents:       rec.AmountCents,
		Reference:         rec.Reference,
		ReferenceNumber:   rec.ReferenceNumber,
		PayerName:         rec.PayerName,
		PostedAt:          rec.PostedAt.Format("2006-01-02"),
		AssignedAccountID: rec.AssignedAccountID,
		NeedsReview:       rec.NeedsReview,
	}
}
