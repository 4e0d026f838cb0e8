package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/watchgate/watchgate/internal/kb"
	"github.com/watchgate/watchgate/internal/screen"
)

// maxRequestBytes caps the screening request body. Names and context fields
// are short; anything larger is a client bug.
const maxRequestBytes = 64 << 10

// errorBody is the JSON error response. Retryable tells the caller whether
// the same request may succeed later, which separates a degraded backend
// from a bad request.
type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// handleScreen serves POST /screen. A completed screening always returns
// 200 with a decision, including review. Errors never masquerade as
// decisions: a failed request is a 4xx or 5xx, so the caller can tell "the
// engine cleared this name" apart from "the engine could not run".
func (a *App) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req screen.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), false)
		return
	}

	result, err := a.screener.Screen(r.Context(), req)
	switch {
	case errors.Is(err, screen.ErrEmptyName):
		writeError(w, http.StatusBadRequest, "name is required", false)
		return
	case errors.Is(err, kb.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "knowledge base unavailable", true)
		return
	case err != nil:
		a.logger.Error("screening failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "screening unavailable", true)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, status int, msg string, retryable bool) {
	writeJSON(w, status, errorBody{Error: msg, Retryable: retryable})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}
