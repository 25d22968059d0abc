package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/mw"
)

func init() { Register("patterns", registerPatterns) }

func registerPatterns(r chi.Router, d deps.Deps) {
	r.With(mw.EnforceHost(d.AllowedHosts, d.Logger)).Get("/patterns", handlers.ListPatterns(d))
}
