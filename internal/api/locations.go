package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/oprema/internal/store"
)

// LocationsHandler handles the places equipment is kept.
type LocationsHandler struct {
	DB *sql.DB
}

type createLocationRequest struct {
	Name string `json:"name"`
}

// List handles GET /api/locations.
func (h *LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	locations, err := store.ListLocations(r.Context(), h.DB, GetClaims(r.Context()).TenantID)
	if err != nil {
		slog.Error("failed to list locations", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list locations")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(locations))
}

// Create handles POST /api/locations.
func (h *LocationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	claims := GetClaims(r.Context())
	loc, err := store.CreateLocation(r.Context(), h.DB, claims.TenantID, req.Name)
	if err != nil {
		slog.Error("failed to create location", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create location")
		return
	}

	slog.Info("location created", "user", claims.Username, "location", loc.Name)
	jsonResponse(w, http.StatusCreated, loc)
}

// Delete handles DELETE /api/locations/{id}.
func (h *LocationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	claims := GetClaims(r.Context())
	loc, err := store.GetLocation(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get location", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get location")
		return
	}
	if loc == nil || loc.DeletedAt != nil || loc.TenantID != claims.TenantID {
		jsonError(w, http.StatusNotFound, "location not found")
		return
	}

	if err := store.DeleteLocation(r.Context(), h.DB, id); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}

	slog.Info("location deleted", "user", claims.Username, "location", loc.Name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "location deleted"})
}
