package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/httpserver/deps"
)

type metadataEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type metadataResponse struct {
	Service  string          `json:"service"`
	Metadata []metadataEntry `json:"metadata"`
}

type metadataBody struct {
	Value string `json:"value"`
}

// ListMetadata returns every metadata entry of a service.
func ListMetadata(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		service := chi.URLParam(r, "service")

		entries, err := d.Nodes.ListMetadata(r.Context(), service)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		resp := metadataResponse{Service: service, Metadata: make([]metadataEntry, 0, len(entries))}
		for _, e := range entries {
			resp.Metadata = append(resp.Metadata, metadataEntry{Name: e.Name, Value: e.Value})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GetMetadata returns a single metadata value.
func GetMetadata(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		value, err := d.Nodes.GetMetadata(r.Context(), chi.URLParam(r, "service"), name)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, metadataEntry{Name: name, Value: value})
	}
}

// SetMetadata creates a metadata key; existing keys answer 409.
func SetMetadata(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body metadataBody
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		err := d.Nodes.SetMetadata(r.Context(), chi.URLParam(r, "service"), chi.URLParam(r, "name"), body.Value)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// UpdateMetadata changes an existing metadata key.
func UpdateMetadata(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body metadataBody
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, r, d.Logger, err)
			return
		}

		err := d.Nodes.UpdateMetadata(r.Context(), chi.URLParam(r, "service"), chi.URLParam(r, "name"), body.Value)
		if err != nil {
			writeError(w, r, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
