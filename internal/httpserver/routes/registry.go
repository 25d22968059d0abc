// Package routes holds the route groups of the HTTP API. Each file adds its
// group from init() and server.New mounts them all with RegisterAll.
package routes

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type group struct {
	name string
	reg  Registrar
	mws  []Middleware
}

var groups = map[string]group{}

// Register adds a named route group with optional group-wide middlewares.
// Registering the same name twice panics.
func Register(name string, reg Registrar, mws ...Middleware) {
	if _, dup := groups[name]; dup {
		panic("routes: duplicate route group " + name)
	}
	groups[name] = group{name: name, reg: reg, mws: mws}
}

// Names lists the registered groups in mount order.
func Names() []string {
	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterAll mounts every group on r, sorted by name. Called once from server.New.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, name := range Names() {
		g := groups[name]
		if len(g.mws) == 0 {
			g.reg(r, d)
		} else {
			g.reg(r.With(g.mws...), d)
		}
		if d.Logger != nil {
			d.Logger.Debug("route group mounted",
				logger.String("group", name),
				logger.Int("middlewares", len(g.mws)))
		}
	}
}
