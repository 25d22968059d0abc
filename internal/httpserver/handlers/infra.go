package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
)

type componentStatus struct {
	OK          bool   `json:"ok"`
	Mode        string `json:"mode,omitempty"`
	File        string `json:"file,omitempty"`
	NodesLoaded *int   `json:"nodes_loaded,omitempty"`
	Patterns    *int   `json:"patterns_loaded,omitempty"`
	LastReload  string `json:"last_reload,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Error       string `json:"error,omitempty"`
}

type infraResponse struct {
	AllocationMode string                     `json:"allocation_mode"`
	Components     map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"backend":  checkBackend(r.Context(), d),
			"registry": registryStatus(d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			AllocationMode: determineAllocationMode(components),
			Components:     components,
		})
	}
}

func determineAllocationMode(components map[string]componentStatus) string {
	// Without storage nothing can be looked up or allocated
	if backend, exists := components["backend"]; exists && !backend.OK {
		return "unavailable"
	}

	// Registry failures keep serving the last loaded nodes
	if registry, exists := components["registry"]; exists && !registry.OK {
		return "degraded"
	}

	return "operational"
}

func checkBackend(ctx context.Context, d deps.Deps) componentStatus {
	backend := d.Nodes.Backend()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := backend.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   backend.Name(),
			Impact: "allocation-disabled",
			Error:  "unreachable",
		}
	}

	return componentStatus{
		OK:   true,
		Mode: backend.Name(),
	}
}

func registryStatus(d deps.Deps) componentStatus {
	if d.Registry == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "nodes-managed-externally",
		}
	}

	st := d.Registry.Status()
	lastReload := "never"
	if !st.LastReload.IsZero() {
		lastReload = st.LastReload.Format("2006-01-02 15:04:05")
	}

	return componentStatus{
		OK:          st.LastError == "",
		Mode:        "file",
		File:        st.File,
		NodesLoaded: &st.Nodes,
		Patterns:    &st.Patterns,
		LastReload:  lastReload,
		Error:       st.LastError,
	}
}
