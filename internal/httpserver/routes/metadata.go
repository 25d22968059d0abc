package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/mw"
)

func init() { Register("metadata", registerMetadata) }

func registerMetadata(r chi.Router, d deps.Deps) {
	r.Route("/metadata/{service}", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		r.Get("/", handlers.ListMetadata(d))
		r.Get("/{name}", handlers.GetMetadata(d))

		admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
		admin.Post("/{name}", handlers.SetMetadata(d))
		admin.Put("/{name}", handlers.UpdateMetadata(d))
	})
}
