package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fdctax/luna/internal/apperr"
	"github.com/fdctax/luna/internal/logging"
)

// errorResponse is the JSON body written for every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeJSONError writes {"error": msg} with the given status.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeError maps err to its status through apperr and writes it. Server
// errors are logged; client errors are not.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
	}
	writeJSONError(w, r, status, err.Error())
}
