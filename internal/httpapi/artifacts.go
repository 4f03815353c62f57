package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orbital-ai/orbital/internal/types"
)

// ListArtifacts returns artifacts newest first, optionally filtered by
// ?sessionId=.
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID != "" && !types.IsUUID(sessionID) {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	artifacts, err := h.store.ListArtifacts(r.Context(), types.SessionID(sessionID))
	if err != nil {
		storeError(w, err)
		return
	}
	if artifacts == nil {
		artifacts = []*types.Artifact{}
	}
	JSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

// GetArtifact returns one artifact with its full payload.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "artifactID")
	if !types.IsUUID(id) {
		Error(w, http.StatusBadRequest, "invalid artifact id")
		return
	}
	artifact, err := h.store.GetArtifact(r.Context(), types.ArtifactID(id))
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, artifact)
}
