// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// StopExecutionRequest is the request body for stopping a running execution.
type StopExecutionRequest struct {
	ContainerID string `json:"containerId"`
	// GracePeriodSecs bounds the cooperative shutdown window. Zero means
	// the server default.
	GracePeriodSecs int `json:"gracePeriodSecs,omitempty"`
}

// RetryExecutionRequest is the request body for retrying a terminal execution.
type RetryExecutionRequest struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId,omitempty"`
	Model   string `json:"model,omitempty"`
	// Provider overrides the parent execution's provider when set.
	Provider string `json:"provider,omitempty"`
}

// RetryExecutionResponse is the response body after a successful retry.
type RetryExecutionResponse struct {
	ExecutionID  string `json:"execution_id"`
	RetryAttempt int    `json:"retry_attempt"`
}

// ExecutionResponse represents an execution in API responses.
type ExecutionResponse struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	ProviderID   string     `json:"provider_id"`
	ContainerID  string     `json:"container_id,omitempty"`
	Status       string     `json:"status"`
	RetryAttempt int        `json:"retry_attempt"`
	RetriedFrom  *string    `json:"retried_from,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// LogEntry represents a single log line in the response.
type LogEntry struct {
	Sequence  int64     `json:"sequence"`
	Level     string    `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// GetLogsResponse is the response body for fetching logs.
type GetLogsResponse struct {
	Logs  []LogEntry `json:"logs"`
	Total int64      `json:"total"`
}

// ArtifactResponse represents an execution artifact.
type ArtifactResponse struct {
	ID          string `json:"id"`
	ExecutionID string `json:"execution_id"`
	FileName    string `json:"file_name"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	// Downloadable is false for metadata-only artifacts without a stored file.
	Downloadable bool      `json:"downloadable"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListArtifactsResponse is the response body for listing artifacts.
type ListArtifactsResponse struct {
	Artifacts []ArtifactResponse `json:"artifacts"`
}

// ProviderResponse describes one entry of the provider catalog.
type ProviderResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Available    bool     `json:"available"`
	RequiresAuth bool     `json:"requires_auth"`
	GPU          bool     `json:"gpu"`
	Regions      []string `json:"regions,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
