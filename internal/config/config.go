// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default and boundary values for the per-IP SSE connection limit.
const (
	DefaultMaxSSEPerIP = 3
	MinMaxSSEPerIP     = 1
	MaxMaxSSEPerIP     = 100
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Directory where artifact files are stored
	ArtifactDir string

	// OTLP collector endpoint for traces
	OTELEndpoint string

	// Maximum concurrent SSE connections per client IP (1-100)
	MaxSSEPerIP int

	// How long finished executions (and their logs/artifacts) are retained
	Retention time.Duration

	// Default grace period for cooperative container shutdown
	StopGracePeriod time.Duration

	// Remote provider credentials, consumed only at provider construction.
	E2BAPIKey   string
	ModalToken  string
	FlyAPIToken string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbUrl := os.Getenv("DATABASE_URL")
	if dbUrl == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}

	port := 6161 // Default
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	artifactDir := os.Getenv("ARTIFACT_DIR")
	if artifactDir == "" {
		artifactDir = "data/artifacts"
	}

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	maxSSE := DefaultMaxSSEPerIP
	if maxStr := os.Getenv("SANDBOX_MAX_SSE_PER_IP"); maxStr != "" {
		m, err := strconv.Atoi(maxStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SANDBOX_MAX_SSE_PER_IP: %w", err)
		}
		if m < MinMaxSSEPerIP || m > MaxMaxSSEPerIP {
			return nil, fmt.Errorf("SANDBOX_MAX_SSE_PER_IP must be between %d and %d, got %d",
				MinMaxSSEPerIP, MaxMaxSSEPerIP, m)
		}
		maxSSE = m
	}

	retention := 7 * 24 * time.Hour
	if retStr := os.Getenv("EXECUTION_RETENTION"); retStr != "" {
		r, err := time.ParseDuration(retStr)
		if err != nil {
			return nil, fmt.Errorf("invalid EXECUTION_RETENTION: %w", err)
		}
		retention = r
	}

	grace := 10 * time.Second
	if graceStr := os.Getenv("STOP_GRACE_PERIOD"); graceStr != "" {
		g, err := time.ParseDuration(graceStr)
		if err != nil {
			return nil, fmt.Errorf("invalid STOP_GRACE_PERIOD: %w", err)
		}
		grace = g
	}

	return &Config{
		DatabaseURL:     dbUrl,
		HTTPPort:        port,
		ArtifactDir:     artifactDir,
		OTELEndpoint:    otelEndpoint,
		MaxSSEPerIP:     maxSSE,
		Retention:       retention,
		StopGracePeriod: grace,
		E2BAPIKey:       os.Getenv("E2B_API_KEY"),
		ModalToken:      os.Getenv("MODAL_TOKEN"),
		FlyAPIToken:     os.Getenv("FLY_API_TOKEN"),
	}, nil
}
