package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: a.cfg.clock(),
	}
	WriteJSON(w, http.StatusOK, resp)
}

// RequestID returns the request id stored by the request-id middleware.
func RequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// WriteJSON encodes payload as the JSON response body.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes the standard JSON error body.
func WriteError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	WriteJSON(w, status, resp)
}

// WriteInternalError reports err as a 500.
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
