package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
)

type assignmentResponse struct {
	Assigned bool   `json:"assigned"`
	UID      int64  `json:"uid,omitempty"`
	Node     string `json:"node,omitempty"`
	TosURL   string `json:"terms_of_service,omitempty"`
}

type allocationResponse struct {
	UID  int64  `json:"uid"`
	Node string `json:"node"`
}

// GetAssignment reports the node of a user, or the ToS URL still to accept.
func GetAssignment(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		service := chi.URLParam(r, "service")
		email := chi.URLParam(r, "email")

		lookup, err := d.Nodes.GetAssignment(r.Context(), email, service)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		writeJSON(w, http.StatusOK, assignmentResponse{
			Assigned: lookup.Assigned,
			UID:      lookup.UID,
			Node:     lookup.Node,
			TosURL:   lookup.TosURL,
		})
	}
}

// AllocateNode assigns the least loaded node to a user.
func AllocateNode(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		service := chi.URLParam(r, "service")
		email := chi.URLParam(r, "email")

		uid, node, err := d.Nodes.AllocateNode(r.Context(), email, service)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		d.Logger.Debug("node allocated via endpoint",
			logger.String("service", service),
			logger.String("node", node))

		writeJSON(w, http.StatusCreated, allocationResponse{UID: uid, Node: node})
	}
}
