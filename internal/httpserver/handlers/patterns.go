package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
)

type patternResponse struct {
	Service string `json:"service"`
	Pattern string `json:"pattern"`
}

func ListPatterns(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patterns, err := d.Nodes.ListPatterns(r.Context())
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		resp := make([]patternResponse, 0, len(patterns))
		for _, p := range patterns {
			resp = append(resp, patternResponse{Service: p.Service, Pattern: p.Pattern})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
