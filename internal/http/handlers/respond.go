// Package handlers provides HTTP API handlers for camrelay.
package handlers

import (
	"encoding/json"
	"net/http"
)

// writeJSON serializes v with the given status. Raw chi handlers use
// this; huma operations serialize through the API layer instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the uniform {"error": "<message>"} body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
