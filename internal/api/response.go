package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/oprema/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// errorStatus maps a domain error kind to an HTTP status.
func errorStatus(kind string) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindInvalidTransition, model.KindAmbiguous:
		return http.StatusConflict
	case model.KindBusinessRule, model.KindLowConfidence:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// domainError writes err with the status of its kind. Fatal errors are
// logged and their detail is not sent to the client.
func domainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.ErrorKind(err)
	msg := err.Error()
	if kind == model.KindFatal {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	jsonResponse(w, errorStatus(kind), map[string]string{"error": msg, "kind": kind})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// emptyIfNil keeps list endpoints from encoding null.
func emptyIfNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
