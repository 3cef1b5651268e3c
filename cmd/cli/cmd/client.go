package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sandplane/pkg/api"
)

const logsPageSize = 500

// Client handles API calls to the sandplane controller.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *Client) do(method, path string, reqBody, result interface{}) error {
	var body io.Reader
	if reqBody != nil {
		bodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// GetExecution sends GET /executions/{id}.
func (c *Client) GetExecution(executionID string) (*api.ExecutionResponse, error) {
	var result api.ExecutionResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/executions/%s", executionID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StopExecution sends POST /executions/{id}/stop.
func (c *Client) StopExecution(executionID string, req api.StopExecutionRequest) (*api.ExecutionResponse, error) {
	var result api.ExecutionResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/executions/%s/stop", executionID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RetryExecution sends POST /executions/{id}/retry.
func (c *Client) RetryExecution(executionID string, req api.RetryExecutionRequest) (*api.RetryExecutionResponse, error) {
	var result api.RetryExecutionResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/executions/%s/retry", executionID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLogs sends GET /executions/{id}/logs with offset pagination.
func (c *Client) GetLogs(executionID string, offset int) (*api.GetLogsResponse, error) {
	var result api.GetLogsResponse
	path := fmt.Sprintf("/executions/%s/logs?limit=%d&offset=%d", executionID, logsPageSize, offset)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListProviders sends GET /providers.
func (c *Client) ListProviders() ([]api.ProviderResponse, error) {
	var result []api.ProviderResponse
	if err := c.do(http.MethodGet, "/providers", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
