package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/workflow"
)

// WorkflowHandler exposes the time-based sweep and the notifications it
// and other transitions produce.
type WorkflowHandler struct {
	DB      *sql.DB
	Sweeper *workflow.Sweeper
}

// Sweep handles POST /api/workflow/sweep. It sweeps the caller's tenant.
func (h *WorkflowHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	counts, err := h.Sweeper.Sweep(r.Context(), claims.TenantID)
	if err != nil {
		slog.Error("sweep failed", "tenant_id", claims.TenantID, "error", err)
		jsonResponse(w, http.StatusInternalServerError, map[string]any{
			"error":  "some equipment could not be swept",
			"counts": counts,
		})
		return
	}

	slog.Info("sweep triggered", "user", claims.Username, "overdue", counts.Overdue, "maintenance", counts.Maintenance)
	jsonResponse(w, http.StatusOK, counts)
}

// Notifications handles GET /api/notifications.
func (h *WorkflowHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	list, err := store.ListNotifications(r.Context(), h.DB, GetClaims(r.Context()).TenantID, 100)
	if err != nil {
		slog.Error("failed to list notifications", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(list))
}
