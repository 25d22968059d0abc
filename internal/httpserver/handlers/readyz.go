package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
)

type readyzResponse struct {
	Ready   bool   `json:"ready"`
	Backend string `json:"backend"`
}

// Readyz reports ready only while the storage backend answers a ping.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backend := d.Nodes.Backend()

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		ready := true
		if err := backend.Ping(ctx); err != nil {
			d.Logger.Warn("readiness check failed",
				logger.String("backend", backend.Name()),
				logger.Error(err))
			status = http.StatusServiceUnavailable
			ready = false
		}

		writeJSON(w, status, readyzResponse{
			Ready:   ready,
			Backend: backend.Name(),
		})
	}
}
