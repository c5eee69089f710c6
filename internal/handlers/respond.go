// Package handlers serves the detector's HTTP API.
package handlers

import (
	"encoding/json"
	"net/http"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
