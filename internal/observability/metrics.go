// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus
// exporter. It returns the HTTP handler for the /metrics endpoint and a
// shutdown function to call on application exit.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// RegisterRunningExecutionsGauge exposes the number of non-terminal
// executions as an observable gauge, sampled on each scrape.
func RegisterRunningExecutionsGauge(count func(context.Context) (int64, error)) error {
	meter := otel.Meter("sandplane")
	gauge, err := meter.Int64ObservableGauge(
		"sandplane_executions_running",
		metric.WithDescription("Number of executions that have not reached a terminal status"),
	)
	if err != nil {
		return fmt.Errorf("failed to create gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, observer metric.Observer) error {
		n, err := count(ctx)
		if err != nil {
			return err
		}
		observer.ObserveInt64(gauge, n)
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("failed to register gauge callback: %w", err)
	}
	return nil
}
