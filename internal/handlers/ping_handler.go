package handlers

import (
	"net/http"
)

// PingHandler answers health checks with the name of the service.
func PingHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong", "service": service})
	}
}
