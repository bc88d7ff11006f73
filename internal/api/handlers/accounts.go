package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campusledger/reconcile/internal/api/dto"
	"github.com/campusledger/reconcile/internal/infrastructure/storage"
)

// AccountsHandler handles account-related HTTP requests.
type AccountsHandler struct {
	*Base
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(repo storage.Repository) *AccountsHandler {
	return &AccountsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/accounts - returns the full roster.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.repo.ListAccounts(r.Context())
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := make([]dto.AccountResponse, 0, len(accounts))
	for _, acct := range accounts {
		response = append(response, toAccountResponse(acct))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/accounts/{id} - returns a single account.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid account ID"))
		return
	}

	acct, err := h.repo.GetAccount(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("account"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, toAccountResponse(acct))
}

func toAccountResponse(acct *storage.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:            acct.ID,
		ReferenceCode: acct.ReferenceCode,
		GivenName:     acct.GivenName,
		FamilyName:    acct.FamilyName,
		LongName:      acct.LongName,
		BalanceCents:  acct.BalanceCents,
		PaidCents:     acct.PaidCents,
	}
}
