package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const genericError = "We ran into a problem while servicing your request please try again later"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of requests that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// decode reads a JSON body into dst and answers 400 when it cannot.
func decode(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Warn("Failed to parse request body", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "Please check your request body and try again")
		return false
	}
	return true
}
