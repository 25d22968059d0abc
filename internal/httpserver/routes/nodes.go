package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/mw"
)

func init() { Register("nodes", registerNodes) }

func registerNodes(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateLimitBurst,
		RefillPerIPPerMin: d.RateLimitPerMin,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
		KeyParam:          "service",
	})

	r.Route("/nodes/{service}/{email}", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		r.Get("/", handlers.GetAssignment(d))
		r.With(limit).Post("/", handlers.AllocateNode(d))
	})
}
