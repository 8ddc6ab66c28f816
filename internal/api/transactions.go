package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/transaction"
)

// TransactionsHandler lends equipment out and takes it back.
type TransactionsHandler struct {
	DB           *sql.DB
	Transactions *transaction.Service
	LoanPeriod   time.Duration
}

type checkoutRequest struct {
	EquipmentID int64      `json:"equipment_id"`
	UserID      int64      `json:"user_id"`
	DueDate     *time.Time `json:"due_date"`
	Days        int        `json:"days"`
}

// List handles GET /api/transactions. ?open=true limits the list to
// equipment that is still out; ?equipment_id= and ?user_id= filter.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TransactionFilter{
		TenantID: GetClaims(r.Context()).TenantID,
		OpenOnly: q.Get("open") == "true",
	}
	if v := q.Get("equipment_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid equipment_id")
			return
		}
		filter.EquipmentID = id
	}
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		filter.UserID = id
	}

	list, err := store.ListTransactions(r.Context(), h.DB, filter)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(list))
}

// Checkout handles POST /api/transactions/checkout. Users borrow for
// themselves; managers may check out on behalf of another user.
func (h *TransactionsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EquipmentID <= 0 {
		jsonError(w, http.StatusBadRequest, "equipment_id required")
		return
	}

	claims := GetClaims(r.Context())
	if req.UserID == 0 {
		req.UserID = claims.UserID
	}
	if req.UserID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleManager) {
		jsonError(w, http.StatusForbidden, "only managers can check out for someone else")
		return
	}

	due := time.Now().Add(h.LoanPeriod)
	switch {
	case req.DueDate != nil:
		due = *req.DueDate
	case req.Days > 0:
		due = time.Now().Add(time.Duration(req.Days) * 24 * time.Hour)
	}

	t, err := h.Transactions.Checkout(r.Context(), transaction.CheckoutRequest{
		TenantID:    claims.TenantID,
		EquipmentID: req.EquipmentID,
		UserID:      req.UserID,
		Actor:       claims.Username,
		DueDate:     due,
		Metadata:    map[string]any{"source": "api"},
	})
	if err != nil {
		domainError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, t)
}

// Checkin handles POST /api/transactions/{id}/checkin.
func (h *TransactionsHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	claims := GetClaims(r.Context())
	t, err := h.Transactions.Checkin(r.Context(), claims.TenantID, id, claims.Username)
	if err != nil {
		domainError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}
