package provider

import (
	"context"
	"fmt"
	"log/slog"
)

// RemoteStub is a provider registered for discoverability and roadmap purposes
// only. It validates its credential at construction time, always reports
// itself unavailable, and returns NotSupported from every lifecycle call.
// No real work is ever routed to it.
type RemoteStub struct {
	name       string
	credential string
	log        *slog.Logger
}

// NewRemoteStub builds a stub remote provider. credEnvVar names the
// environment variable the credential came from, for the error message.
func NewRemoteStub(log *slog.Logger, name, credEnvVar, credential string) (*RemoteStub, error) {
	if credential == "" {
		return nil, &ConfigError{
			Provider: name,
			Reason:   fmt.Sprintf("credential %s is required", credEnvVar),
		}
	}
	return &RemoteStub{
		name:       name,
		credential: credential,
		log:        log.With("provider", name),
	}, nil
}

// NewE2BProvider builds the E2B stub. The API key is required.
func NewE2BProvider(log *slog.Logger, apiKey string) (*RemoteStub, error) {
	return NewRemoteStub(log, "e2b", "E2B_API_KEY", apiKey)
}

// NewModalProvider builds the Modal stub. The token is required.
func NewModalProvider(log *slog.Logger, token string) (*RemoteStub, error) {
	return NewRemoteStub(log, "modal", "MODAL_TOKEN", token)
}

// NewFlyProvider builds the Fly Machines stub. The API token is required.
func NewFlyProvider(log *slog.Logger, token string) (*RemoteStub, error) {
	return NewRemoteStub(log, "fly", "FLY_API_TOKEN", token)
}

func (r *RemoteStub) Name() string { return r.name }

func (r *RemoteStub) CreateContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	return "", &NotSupportedError{Provider: r.name, Operation: "create_container"}
}

func (r *RemoteStub) StartContainer(ctx context.Context, containerID string) error {
	return &NotSupportedError{Provider: r.name, Operation: "start_container"}
}

func (r *RemoteStub) StopContainer(ctx context.Context, containerID string, gracePeriodSecs int) error {
	return &NotSupportedError{Provider: r.name, Operation: "stop_container"}
}

func (r *RemoteStub) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	return &NotSupportedError{Provider: r.name, Operation: "remove_container"}
}

func (r *RemoteStub) IsAvailable(ctx context.Context) bool { return false }

func (r *RemoteStub) GetInfo(ctx context.Context) Info {
	return Info{
		Name:   r.name,
		Status: StatusNotAvailable,
		Reason: "remote provider integration not yet implemented",
	}
}
