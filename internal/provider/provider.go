// Package provider defines the compute provider abstraction and its
// implementations. A provider runs containerized workloads; the local Docker
// runtime is the only variant performing real I/O, remote variants are
// registered for discoverability but return NotSupported from lifecycle calls.
package provider

import (
	"context"
	"io"
)

// Provider is the lifecycle contract every compute backend implements.
type Provider interface {
	// Name returns the catalog id of this provider.
	Name() string

	// CreateContainer creates a container from the given config and returns
	// its runtime-assigned id. The config is never mutated.
	CreateContainer(ctx context.Context, cfg ContainerConfig) (string, error)

	// StartContainer starts a previously created container.
	StartContainer(ctx context.Context, containerID string) error

	// StopContainer asks the container to shut down cooperatively within the
	// grace period, then kills it.
	StopContainer(ctx context.Context, containerID string, gracePeriodSecs int) error

	// RemoveContainer removes a stopped container. With force it removes a
	// running one as well.
	RemoveContainer(ctx context.Context, containerID string, force bool) error

	// IsAvailable probes connectivity to the backing runtime. "Not configured"
	// is reported as false, never as an error.
	IsAvailable(ctx context.Context) bool

	// GetInfo reports runtime name, version and availability status.
	GetInfo(ctx context.Context) Info
}

// LogStreamer is implemented by providers that can follow container output.
// The orchestrator type-asserts for it when supervising an execution.
type LogStreamer interface {
	StreamLogs(ctx context.Context, containerID string) (io.ReadCloser, error)
}

// Waiter is implemented by providers that can block until container exit.
type Waiter interface {
	WaitContainer(ctx context.Context, containerID string) (exitCode int, err error)
}

// Status is the coarse availability state reported by GetInfo.
type Status string

const (
	StatusAvailable    Status = "available"
	StatusNotAvailable Status = "not_available"
)

// Info describes a provider's backing runtime.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  Status `json:"status"`
	// Reason explains a not_available status.
	Reason string `json:"reason,omitempty"`
}

// ContainerConfig is the caller-supplied description of a container to run.
// It is a value object: the core never mutates it.
type ContainerConfig struct {
	Name       string            `json:"name"`
	Image      string            `json:"image"`
	Command    []string          `json:"command"`
	WorkingDir string            `json:"working_dir,omitempty"`
	EnvVars    map[string]string `json:"env_vars,omitempty"`
	Volumes    []VolumeMount     `json:"volumes,omitempty"`
	Ports      []PortMapping     `json:"ports,omitempty"`
	CPUCores   float64           `json:"cpu_cores,omitempty"`
	MemoryMB   int64             `json:"memory_mb,omitempty"`
	StorageGB  int64             `json:"storage_gb,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// VolumeMount maps a host path into the container.
type VolumeMount struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only,omitempty"`
}

// PortMapping exposes a container port on the host.
type PortMapping struct {
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol,omitempty"` // tcp (default) or udp
}
