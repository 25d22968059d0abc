package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/mw"
)

func init() { Register("tos", registerTos) }

func registerTos(r chi.Router, d deps.Deps) {
	r.Route("/tos/{service}", func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		admin := mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)
		r.With(admin).Put("/", handlers.SetTos(d))
		// without ?email the flag is reset for every user of the service
		r.With(mw.OnlyIf(bulkFlag, admin)).Put("/flag", handlers.SetTosFlag(d))
	})
}

func bulkFlag(r *http.Request) bool { return r.URL.Query().Get("email") == "" }
