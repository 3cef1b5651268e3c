package provider

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed catalog.json
var catalogFS embed.FS

// CatalogEntry is one provider record of the versioned catalog document.
// The catalog is loaded once at startup and immutable afterwards.
type CatalogEntry struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         string        `json:"type"` // "docker" or "remote"
	Capabilities Capabilities  `json:"capabilities"`
	Pricing      Pricing       `json:"pricing"`
	Limits       Limits        `json:"limits"`
	DefaultConf  DefaultConfig `json:"default_config"`
	IsAvailable  bool          `json:"is_available"`
	RequiresAuth bool          `json:"requires_auth"`
}

// Capabilities lists the features a provider supports.
type Capabilities struct {
	GPU               bool     `json:"gpu"`
	PersistentStorage bool     `json:"persistent_storage"`
	PublicURLs        bool     `json:"public_urls"`
	SSHAccess         bool     `json:"ssh_access"`
	AutoScaling       bool     `json:"auto_scaling"`
	Regions           []string `json:"regions,omitempty"`
}

// Pricing carries cost metadata for scheduling decisions. The core exposes it
// but never bills against it.
type Pricing struct {
	Currency      string  `json:"currency"`
	PerCPUHour    float64 `json:"per_cpu_hour"`
	PerGBHour     float64 `json:"per_gb_hour"`
	PerGPUHour    float64 `json:"per_gpu_hour,omitempty"`
	FreeTierHours float64 `json:"free_tier_hours,omitempty"`
}

// Limits bounds the resources a single execution may request.
type Limits struct {
	MaxMemoryMB    int64 `json:"max_memory_mb"`
	MaxVCPU        int   `json:"max_vcpu"`
	MaxStorageGB   int64 `json:"max_storage_gb"`
	MaxRuntimeMins int   `json:"max_runtime_mins"`
}

// DefaultConfig holds catalog-level container defaults.
type DefaultConfig struct {
	Image    string `json:"image,omitempty"`
	CPUCores int    `json:"cpu_cores,omitempty"`
	MemoryMB int64  `json:"memory_mb,omitempty"`
}

type catalogDocument struct {
	Version   int            `json:"version"`
	Providers []CatalogEntry `json:"providers"`
}

// Registry serves the read-only provider catalog. It is safe for concurrent
// use without locking: the map is never written after LoadRegistry returns.
type Registry struct {
	version   int
	providers map[string]CatalogEntry
}

// LoadRegistry parses the embedded catalog document. A duplicate provider id
// fails the load instead of silently overwriting.
func LoadRegistry() (*Registry, error) {
	raw, err := catalogFS.ReadFile("catalog.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog: %w", err)
	}
	return parseCatalog(raw)
}

func parseCatalog(raw []byte) (*Registry, error) {
	var doc catalogDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}
	if doc.Version <= 0 {
		return nil, fmt.Errorf("provider catalog has invalid version %d", doc.Version)
	}

	providers := make(map[string]CatalogEntry, len(doc.Providers))
	for _, p := range doc.Providers {
		if p.ID == "" {
			return nil, fmt.Errorf("provider catalog contains an entry without an id")
		}
		if _, exists := providers[p.ID]; exists {
			return nil, fmt.Errorf("provider catalog contains duplicate id %q", p.ID)
		}
		providers[p.ID] = p
	}

	return &Registry{version: doc.Version, providers: providers}, nil
}

// Version returns the catalog document version.
func (r *Registry) Version() int { return r.version }

// Get returns the catalog entry for the given id.
func (r *Registry) Get(id string) (CatalogEntry, error) {
	p, ok := r.providers[id]
	if !ok {
		return CatalogEntry{}, &NotFoundError{ID: id}
	}
	return p, nil
}

// ValidateProviderID fails with NotFoundError if the id is absent from the
// catalog. All downstream components call this before dispatching.
func (r *Registry) ValidateProviderID(id string) error {
	if _, ok := r.providers[id]; !ok {
		return &NotFoundError{ID: id}
	}
	return nil
}

// List returns all catalog entries sorted by id.
func (r *Registry) List() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByType returns catalog entries of the given type, sorted by id.
func (r *Registry) ListByType(providerType string) []CatalogEntry {
	return r.filter(func(p CatalogEntry) bool { return p.Type == providerType })
}

// ListAvailable returns catalog entries marked available, sorted by id.
func (r *Registry) ListAvailable() []CatalogEntry {
	return r.filter(func(p CatalogEntry) bool { return p.IsAvailable })
}

// ListGPUProviders returns catalog entries with GPU support, sorted by id.
func (r *Registry) ListGPUProviders() []CatalogEntry {
	return r.filter(func(p CatalogEntry) bool { return p.Capabilities.GPU })
}

// ListPersistentStorageProviders returns catalog entries with persistent
// storage support, sorted by id.
func (r *Registry) ListPersistentStorageProviders() []CatalogEntry {
	return r.filter(func(p CatalogEntry) bool { return p.Capabilities.PersistentStorage })
}

func (r *Registry) filter(keep func(CatalogEntry) bool) []CatalogEntry {
	var out []CatalogEntry
	for _, p := range r.providers {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
