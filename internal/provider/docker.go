package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
)

// DockerProvider runs containers against the local Docker daemon. It is the
// only provider variant performing real I/O.
type DockerProvider struct {
	name   string
	client *client.Client
	log    *slog.Logger
}

// NewDockerProvider creates a Docker-backed provider. The client is
// initialized from standard environment variables (DOCKER_HOST, etc.).
// An unreachable daemon is not a construction error; it surfaces later
// through IsAvailable and GetInfo.
func NewDockerProvider(log *slog.Logger) (*DockerProvider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &ConfigError{Provider: "docker", Reason: err.Error()}
	}
	return &DockerProvider{
		name:   "docker",
		client: cli,
		log:    log.With("provider", "docker"),
	}, nil
}

func (d *DockerProvider) Name() string { return d.name }

// CreateContainer translates the ContainerConfig 1:1 into a Docker create
// call, pulling the image first when it is absent locally.
func (d *DockerProvider) CreateContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	// Check if the image exists locally first to save time.
	if _, err := d.client.ImageInspect(ctx, cfg.Image); err != nil {
		reader, pullErr := d.client.ImagePull(ctx, cfg.Image, image.PullOptions{})
		if pullErr != nil {
			return "", d.classify(fmt.Errorf("failed to pull image %s: %w", cfg.Image, pullErr))
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	exposed, bindings, err := portMappings(cfg.Ports)
	if err != nil {
		return "", &FatalError{Provider: d.name, Err: err}
	}

	containerConfig := &container.Config{
		Image:        cfg.Image,
		Cmd:          cfg.Command,
		Env:          envList(cfg.EnvVars),
		WorkingDir:   cfg.WorkingDir,
		Labels:       cfg.Labels,
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{
		Binds:        volumeBinds(cfg.Volumes),
		PortBindings: bindings,
		Resources: container.Resources{
			NanoCPUs: int64(cfg.CPUCores * 1e9),
			Memory:   cfg.MemoryMB * 1024 * 1024,
		},
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, cfg.Name)
	if err != nil {
		return "", d.classify(fmt.Errorf("failed to create container: %w", err))
	}

	d.log.Info("container created", "container_id", resp.ID, "image", cfg.Image)
	return resp.ID, nil
}

func (d *DockerProvider) StartContainer(ctx context.Context, containerID string) error {
	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return d.classify(fmt.Errorf("failed to start container %s: %w", containerID, err))
	}
	return nil
}

func (d *DockerProvider) StopContainer(ctx context.Context, containerID string, gracePeriodSecs int) error {
	timeout := gracePeriodSecs
	if err := d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return d.classify(fmt.Errorf("failed to stop container %s: %w", containerID, err))
	}
	return nil
}

func (d *DockerProvider) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force})
	if err != nil && !errdefs.IsNotFound(err) {
		return d.classify(fmt.Errorf("failed to remove container %s: %w", containerID, err))
	}
	return nil
}

// IsAvailable pings the daemon. An unreachable daemon is reported as false,
// never as an error.
func (d *DockerProvider) IsAvailable(ctx context.Context) bool {
	_, err := d.client.Ping(ctx)
	return err == nil
}

func (d *DockerProvider) GetInfo(ctx context.Context) Info {
	ver, err := d.client.ServerVersion(ctx)
	if err != nil {
		return Info{
			Name:   d.name,
			Status: StatusNotAvailable,
			Reason: err.Error(),
		}
	}
	return Info{
		Name:    d.name,
		Version: ver.Version,
		Status:  StatusAvailable,
	}
}

// WaitContainer blocks until the container exits and returns its exit code.
func (d *DockerProvider) WaitContainer(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return -1, d.classify(err)
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), errors.New(status.Error.Message)
		}
		return int(status.StatusCode), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// StreamLogs follows the container's stdout/stderr.
func (d *DockerProvider) StreamLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	rc, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, d.classify(err)
	}
	return rc, nil
}

// classify maps daemon errors onto the retryability taxonomy: access/quota
// failures are fatal, everything else is a transient I/O hiccup.
func (d *DockerProvider) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsUnauthorized(err), errdefs.IsForbidden(err), errdefs.IsConflict(err), errdefs.IsInvalidParameter(err):
		return &FatalError{Provider: d.name, Err: err}
	case errdefs.IsNotFound(err):
		return &FatalError{Provider: d.name, Err: err}
	default:
		return &TransientError{Provider: d.name, Err: err}
	}
}

func envList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func volumeBinds(volumes []VolumeMount) []string {
	var binds []string
	for _, v := range volumes {
		bind := fmt.Sprintf("%s:%s", v.HostPath, v.ContainerPath)
		if v.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
	}
	return binds
}

func portMappings(ports []PortMapping) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port mapping %d/%s: %w", p.ContainerPort, proto, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostPort: strconv.Itoa(p.HostPort),
		})
	}
	return exposed, bindings, nil
}
