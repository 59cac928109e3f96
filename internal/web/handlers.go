package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/gobimport/internal/mutations"
)

// maxRequestBody bounds the JSON request bodies of the API.
const maxRequestBody = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.Limiter().Status(),
	})
}

// StartImportRequest is the body of POST /api/imports.
type StartImportRequest struct {
	// Dataset is the path of the dataset definition, relative to the data
	// directory.
	Dataset   string `json:"dataset"`
	Mutations bool   `json:"mutations"`
}

// StartImportResponse is returned for an accepted import.
type StartImportResponse struct {
	ImportID string `json:"importId"`
}

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req StartImportRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	req.Dataset = strings.TrimSpace(req.Dataset)
	if req.Dataset == "" {
		writeBadRequest(w, r, "dataset is required")
		return
	}
	if strings.Contains(req.Dataset, "..") {
		writeBadRequest(w, r, "dataset must be inside the data directory")
		return
	}

	id, err := s.service.Start(r.Context(), req.Dataset, req.Mutations)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/imports/"+id)
	writeJSON(w, r, http.StatusAccepted, StartImportResponse{ImportID: id})
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.List())
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.Get(chi.URLParam(r, "importID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")
	if err := s.service.Cancel(id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, StartImportResponse{ImportID: id})
}

// handleImportQueue reports whether more imports can be started.
func (s *Server) handleImportQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Limiter().Status())
}

// MutationStateResponse describes where a mutation fed collection stands.
type MutationStateResponse struct {
	Last     *mutations.MutationImport `json:"last"`
	HaveNext bool                      `json:"haveNext"`
}

func (s *Server) handleMutationState(w http.ResponseWriter, r *http.Request) {
	last, next, err := s.service.MutationState(r.Context(),
		chi.URLParam(r, "catalogue"),
		chi.URLParam(r, "collection"),
		chi.URLParam(r, "application"),
	)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, MutationStateResponse{Last: last, HaveNext: next})
}
