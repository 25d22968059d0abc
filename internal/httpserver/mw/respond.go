package mw

import (
	"encoding/json"
	"net/http"
)

// errorBody matches the JSON error shape written by the handlers.
type errorBody struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// reject ends the request with a JSON error body.
func reject(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Status: status, Error: http.StatusText(status)})
}

// OnlyIf applies m to the requests matching pred and lets the others through.
func OnlyIf(pred func(*http.Request) bool, m func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := m(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if pred(r) {
				guarded.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
