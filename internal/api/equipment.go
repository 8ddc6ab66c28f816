package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/oprema/internal/imaging"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/resolver"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/workflow"
)

// EquipmentHandler handles equipment CRUD, photos and status transitions.
type EquipmentHandler struct {
	DB       *sql.DB
	Machine  *workflow.Machine
	Resolver *resolver.Resolver
}

type equipmentRequest struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	LocationID  *int64  `json:"location_id"`
	Condition   string  `json:"condition"`
	Value       float64 `json:"value"`
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type transitionsResponse struct {
	Status  model.Status   `json:"status"`
	Allowed []model.Status `json:"allowed"`
}

// List handles GET /api/equipment. ?q= searches name, code and
// description; ?status= filters by status.
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := GetClaims(r.Context()).TenantID

	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		found, err := h.Resolver.Search(r.Context(), tenantID, q)
		if err != nil {
			domainError(w, r, err)
			return
		}
		jsonResponse(w, http.StatusOK, emptyIfNil(found))
		return
	}

	filter := store.EquipmentFilter{TenantID: tenantID}
	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := model.ParseStatus(s)
		if !ok {
			jsonError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = status
	}

	list, err := store.ListEquipment(r.Context(), h.DB, filter)
	if err != nil {
		slog.Error("failed to list equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list equipment")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(list))
}

// Summary handles GET /api/equipment/summary.
func (h *EquipmentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	counts, err := store.CountEquipmentByStatus(r.Context(), h.DB, GetClaims(r.Context()).TenantID)
	if err != nil {
		slog.Error("failed to count equipment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to count equipment")
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	jsonResponse(w, http.StatusOK, map[string]any{"total": total, "by_status": counts})
}

// validate checks the request and that its location belongs to the tenant.
func (h *EquipmentHandler) validate(r *http.Request, req *equipmentRequest) (string, bool) {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if req.Name == "" || req.Code == "" {
		return "name and code required", false
	}
	if req.Value < 0 {
		return "value must not be negative", false
	}
	if req.LocationID != nil {
		loc, err := store.GetLocation(r.Context(), h.DB, *req.LocationID)
		if err != nil || loc == nil || loc.DeletedAt != nil || loc.TenantID != GetClaims(r.Context()).TenantID {
			return "unknown location", false
		}
	}
	return "", true
}

// Create handles POST /api/equipment. New equipment is AVAILABLE.
func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req equipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg, ok := h.validate(r, &req); !ok {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	claims := GetClaims(r.Context())
	e, err := store.CreateEquipment(r.Context(), h.DB, store.NewEquipment{
		TenantID:    claims.TenantID,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Category:    req.Category,
		LocationID:  req.LocationID,
		Condition:   req.Condition,
		Value:       req.Value,
	})
	if err != nil {
		jsonError(w, http.StatusConflict, "equipment code already exists")
		return
	}
	h.Resolver.Invalidate(claims.TenantID)

	slog.Info("equipment created", "user", claims.Username, "equipment", e.Name, "code", e.Code)
	jsonResponse(w, http.StatusCreated, e)
}

// load returns the {id} equipment if it is visible to the caller's tenant.
// It writes the error response itself and returns nil when it fails.
func (h *EquipmentHandler) load(w http.ResponseWriter, r *http.Request) *model.Equipment {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid equipment id")
		return nil
	}

	e, err := store.GetEquipment(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get equipment", "equipment_id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get equipment")
		return nil
	}
	if e == nil || e.DeletedAt != nil || e.TenantID != GetClaims(r.Context()).TenantID {
		jsonError(w, http.StatusNotFound, "equipment not found")
		return nil
	}
	return e
}

// Get handles GET /api/equipment/{id}.
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	e := h.load(w, r)
	if e == nil {
		return
	}

	open, err := store.FindOpenTransaction(r.Context(), h.DB, e.ID)
	if err != nil {
		slog.Error("failed to find open transaction", "equipment_id", e.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get equipment")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"equipment":   e,
		"transaction": open,
	})
}

// Update handles PUT /api/equipment/{id}.
func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	e := h.load(w, r)
	if e == nil {
		return
	}

	var req equipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg, ok := h.validate(r, &req); !ok {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	err := store.UpdateEquipment(r.Context(), h.DB, e.ID, store.EquipmentUpdate{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Category:    req.Category,
		LocationID:  req.LocationID,
		Condition:   req.Condition,
		Value:       req.Value,
	})
	if err != nil {
		jsonError(w, http.StatusConflict, "equipment code already exists")
		return
	}
	h.Resolver.Invalidate(e.TenantID)

	updated, _ := store.GetEquipment(r.Context(), h.DB, e.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/equipment/{id}. Held equipment must be
// returned first.
func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	e := h.load(w, r)
	if e == nil {
		return
	}
	if e.Status == model.StatusCheckedOut || e.Status == model.StatusOverdue {
		jsonError(w, http.StatusConflict, "equipment is checked out")
		return
	}

	if err := store.DeleteEquipment(r.Context(), h.DB, e.ID); err != nil {
		slog.Error("failed to delete equipment", "equipment_id", e.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete equipment")
		return
	}
	h.Resolver.Invalidate(e.TenantID)

	slog.Info("equipment deleted", "user", GetClaims(r.Context()).Username, "equipment", e.Name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "equipment deleted"})
}

// Transitions handles GET /api/equipment/{id}/transitions.
func (h *EquipmentHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	e := h.load(w, r)
	if e == nil {
		return
	}
	jsonResponse(w, http.StatusOK, transitionsResponse{
		Status:  e.Status,
		Allowed: emptyIfNil(workflow.Allowed(e.Status)),
	})
}

// Transition handles POST /api/equipment/{id}/status. Checkouts go through
// the transactions endpoint so that a borrower is recorded.
func (h *EquipmentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	e := h.load(w, r)
	if e == nil {
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target, ok := model.ParseStatus(req.Status)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if target == model.StatusCheckedOut {
		jsonError(w, http.StatusUnprocessableEntity, "use POST /api/transactions/checkout to check out equipment")
		return
	}

	claims := GetClaims(r.Context())
	res, err := h.Machine.AttemptTransition(r.Context(), workflow.Request{
		TenantID:    claims.TenantID,
		EquipmentID: e.ID,
		Target:      target,
		Actor:       claims.Username,
		Reason:      req.Reason,
		Metadata:    map[string]any{"source": "api"},
	})
	if err != nil {
		domainError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// History handles GET /api/equipment/{id}/history.
func (h *EquipmentHandler) History(w http.ResponseWriter, r *http.Request) {
	e := h.load(w, r)
	if e == nil {
		return
	}

	entries, err := store.ListAuditEntries(r.Context(), h.DB, store.AuditFilter{
		TenantID:   e.TenantID,
		EntityType: model.EntityEquipment,
		EntityID:   e.ID,
		Action:     model.ActionStatusChange,
	})
	if err != nil {
		slog.Error("failed to list history", "equipment_id", e.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get equipment history")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(entries))
}

// UploadImage handles PUT /api/equipment/{id}/image.
func (h *EquipmentHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	e := h.load(w, r)
	if e == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Normalize(file)
	if errors.Is(err, imaging.ErrTooLarge) {
		jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetEquipmentImage(r.Context(), h.DB, e.ID, photo.Data, photo.MIME); err != nil {
		slog.Error("failed to save image", "equipment_id", e.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "image uploaded",
		"width":   photo.Width,
		"height":  photo.Height,
	})
}

// GetImage handles GET /api/equipment/{id}/image.
func (h *EquipmentHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	e := h.load(w, r)
	if e == nil {
		return
	}

	data, mime, err := store.GetEquipmentImage(r.Context(), h.DB, e.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
