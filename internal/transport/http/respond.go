package httptransport

import (
	"encoding/json"
	"net/http"

	"kindred/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps resolution error categories onto HTTP statuses so every
// handler returns the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.Category(err) {
	case domain.ErrorInput:
		status = http.StatusBadRequest
	case domain.ErrorDependency:
		status = http.StatusBadGateway
	case domain.ErrorConsistency:
		status = http.StatusConflict
	case domain.ErrorCapacity:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
