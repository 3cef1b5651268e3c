package handlers

import (
	"fmt"
	"net/http"
	"os"

	"sandplane/internal/store"
	"sandplane/pkg/api"

	"github.com/google/uuid"
)

// ListArtifacts handles GET /executions/{id}/artifacts.
func (h *Handlers) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	executionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid execution id", http.StatusBadRequest)
		return
	}

	artifacts, err := h.store.ListArtifacts(ctx, executionID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := api.ListArtifactsResponse{Artifacts: make([]api.ArtifactResponse, 0, len(artifacts))}
	for i := range artifacts {
		resp.Artifacts = append(resp.Artifacts, toArtifactResponse(&artifacts[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetArtifact handles GET /artifacts/{id}.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	artifactID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid artifact id", http.StatusBadRequest)
		return
	}

	artifact, err := h.store.GetArtifact(ctx, artifactID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, toArtifactResponse(artifact))
}

// DownloadArtifact handles GET /artifacts/{id}/download.
// Metadata-only artifacts have no stored file and return 404.
func (h *Handlers) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	artifactID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid artifact id", http.StatusBadRequest)
		return
	}

	artifact, err := h.store.GetArtifact(ctx, artifactID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if artifact.StoredPath == nil {
		h.httpError(w, "Artifact has no stored file", http.StatusNotFound)
		return
	}

	f, err := os.Open(*artifact.StoredPath)
	if err != nil {
		h.httpError(w, "Artifact file is unreadable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	if artifact.MimeType != "" {
		w.Header().Set("Content-Type", artifact.MimeType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName))
	http.ServeContent(w, r, artifact.FileName, artifact.CreatedAt, f)
}

// DeleteArtifact handles DELETE /artifacts/{id}.
// The DB row is removed even when the underlying file is already gone.
func (h *Handlers) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	artifactID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid artifact id", http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteArtifact(ctx, artifactID); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toArtifactResponse(a *store.Artifact) api.ArtifactResponse {
	return api.ArtifactResponse{
		ID:           a.ID.String(),
		ExecutionID:  a.ExecutionID.String(),
		FileName:     a.FileName,
		MimeType:     a.MimeType,
		SizeBytes:    a.SizeBytes,
		Downloadable: a.StoredPath != nil,
		CreatedAt:    a.CreatedAt,
	}
}
