package orchestrator

import (
	"context"
	"fmt"

	"sandplane/internal/provider"
)

// CatalogConfigSource builds container configs from the provider catalog's
// defaults. Deployments with a CRUD layer supply their own ConfigSource; this
// one covers standalone operation, where the task id selects the workload via
// environment variables.
type CatalogConfigSource struct {
	registry   *provider.Registry
	providerID string
}

// NewCatalogConfigSource creates a config source backed by the catalog entry
// of the given provider.
func NewCatalogConfigSource(registry *provider.Registry, providerID string) *CatalogConfigSource {
	return &CatalogConfigSource{registry: registry, providerID: providerID}
}

func (s *CatalogConfigSource) BuildContainerConfig(ctx context.Context, taskID, agentID, model string) (provider.ContainerConfig, error) {
	entry, err := s.registry.Get(s.providerID)
	if err != nil {
		return provider.ContainerConfig{}, err
	}
	if entry.DefaultConf.Image == "" {
		return provider.ContainerConfig{}, fmt.Errorf("provider %s has no default image", s.providerID)
	}

	cfg := provider.ContainerConfig{
		Name:     fmt.Sprintf("task-%s", taskID),
		Image:    entry.DefaultConf.Image,
		CPUCores: float64(entry.DefaultConf.CPUCores),
		MemoryMB: entry.DefaultConf.MemoryMB,
		EnvVars:  map[string]string{"TASK_ID": taskID},
		Labels:   map[string]string{"sandplane.task_id": taskID},
	}
	if agentID != "" {
		cfg.EnvVars["AGENT_ID"] = agentID
		cfg.Labels["sandplane.agent_id"] = agentID
	}
	if model != "" {
		cfg.EnvVars["MODEL"] = model
	}
	return cfg, nil
}
