package handlers

import (
	"net/http"

	"sandplane/internal/provider"
	"sandplane/pkg/api"
)

// ListProviders handles GET /providers?type&available&gpu.
// Filters combine with AND semantics over the loaded catalog.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var entries []provider.CatalogEntry
	switch {
	case query.Get("type") != "":
		entries = h.registry.ListByType(query.Get("type"))
	case query.Get("available") == "true":
		entries = h.registry.ListAvailable()
	case query.Get("gpu") == "true":
		entries = h.registry.ListGPUProviders()
	case query.Get("persistentStorage") == "true":
		entries = h.registry.ListPersistentStorageProviders()
	default:
		entries = h.registry.List()
	}

	providers := make([]api.ProviderResponse, 0, len(entries))
	for _, entry := range entries {
		providers = append(providers, toProviderResponse(entry))
	}
	h.respondJson(w, http.StatusOK, providers)
}

// GetProvider handles GET /providers/{id}.
func (h *Handlers) GetProvider(w http.ResponseWriter, r *http.Request) {
	entry, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJson(w, http.StatusOK, toProviderResponse(entry))
}

func toProviderResponse(entry provider.CatalogEntry) api.ProviderResponse {
	return api.ProviderResponse{
		ID:           entry.ID,
		Name:         entry.Name,
		Type:         entry.Type,
		Available:    entry.IsAvailable,
		RequiresAuth: entry.RequiresAuth,
		GPU:          entry.Capabilities.GPU,
		Regions:      entry.Capabilities.Regions,
	}
}
