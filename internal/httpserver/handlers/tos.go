package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/domain"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
)

type tosBody struct {
	URL string `json:"url"`
}

type tosFlagBody struct {
	Tos string `json:"tos"` // "signed" | "unsigned"
}

// SetTos publishes a new ToS URL and asks every user to accept it again.
func SetTos(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body tosBody
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		if err := d.Nodes.SetTos(r.Context(), chi.URLParam(r, "service"), body.URL); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetTosFlag records a user's acceptance. Without ?email= the flag is set
// for every user of the service.
func SetTosFlag(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body tosFlagBody
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		tos, err := domain.ParseTosState(body.Tos)
		if err != nil {
			writeError(w, r, d.Logger, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err))
			return
		}

		email := r.URL.Query().Get("email")
		if err := d.Nodes.SetTosFlag(r.Context(), chi.URLParam(r, "service"), tos, email); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
