package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// Envelope is the body shape shared by every REST endpoint of the relay.
type Envelope map[string]any

// RespondJSON writes payload as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondSuccess writes a 200 envelope with "success": true merged into
// fields.
func RespondSuccess(w http.ResponseWriter, fields Envelope) {
	body := make(Envelope, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	RespondJSON(w, http.StatusOK, body)
}

// RespondError writes a `{"success": false, "error": message}` envelope.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, Envelope{"success": false, "error": message})
}
