// ABOUTME: JSON response envelope helpers
// ABOUTME: Writes the {success, data, meta} shape plus the legacy {response, error} shape
package web

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Meta carries response metadata: record counts, the last successful sync,
// and whether the payload is stale cached data served after a failure.
type Meta struct {
	Count    int        `json:"count"`
	LastSync *time.Time `json:"last_sync,omitempty"`
	Stale    bool       `json:"stale,omitempty"`
	RunID    string     `json:"run_id,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

// legacyEnvelope is the old dashboard response shape. Kept so existing
// callers keep working; new callers should use the v1 endpoints.
type legacyEnvelope struct {
	Response interface{} `json:"response"`
	Error    *string     `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func respondOK(w http.ResponseWriter, data interface{}, meta *Meta) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Meta: meta})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Success: false, Error: &apiError{Code: code, Message: message}})
}

func respondLegacy(w http.ResponseWriter, response interface{}, err error) {
	if err != nil {
		msg := err.Error()
		writeJSON(w, http.StatusInternalServerError, legacyEnvelope{Error: &msg})
		return
	}
	writeJSON(w, http.StatusOK, legacyEnvelope{Response: response})
}
