package api

import (
	"net/http"
	"strings"

	"github.com/erazemk/oprema/internal/command"
)

// CommandsHandler accepts transcribed voice commands.
type CommandsHandler struct {
	Interpreter *command.Interpreter
	Executor    *command.Executor
}

type commandRequest struct {
	Transcript string `json:"transcript"`
}

func (h *CommandsHandler) transcript(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	req.Transcript = strings.TrimSpace(req.Transcript)
	if req.Transcript == "" {
		jsonError(w, http.StatusBadRequest, "transcript required")
		return "", false
	}
	return req.Transcript, true
}

// Execute handles POST /api/commands. The response is always 200: a
// command that could not be carried out is reported with success=false
// and the kind of failure.
func (h *CommandsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	transcript, ok := h.transcript(w, r)
	if !ok {
		return
	}

	claims := GetClaims(r.Context())
	intent := h.Interpreter.Interpret(r.Context(), claims.TenantID, transcript)
	res := h.Executor.Execute(r.Context(), intent, command.Actor{UserID: claims.UserID, Username: claims.Username}, claims.TenantID)
	jsonResponse(w, http.StatusOK, res)
}

// Interpret handles POST /api/commands/interpret. It classifies the
// transcript without executing it.
func (h *CommandsHandler) Interpret(w http.ResponseWriter, r *http.Request) {
	transcript, ok := h.transcript(w, r)
	if !ok {
		return
	}
	intent := h.Interpreter.Interpret(r.Context(), GetClaims(r.Context()).TenantID, transcript)
	jsonResponse(w, http.StatusOK, intent)
}
