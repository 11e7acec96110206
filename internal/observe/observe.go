// Package observe wires OpenTelemetry metrics with a Prometheus exporter
// bridge so the service exposes a standard /metrics endpoint.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// meterName is the instrumentation scope for all service metrics.
const meterName = "github.com/mimikastudio/mimika"

// InitProvider installs a global meter provider backed by the Prometheus
// exporter. The returned shutdown flushes the provider; call it in a defer
// from main.
func InitProvider(ctx context.Context, serviceName, serviceVersion string) (func(context.Context) error, error) {
	if serviceName == "" {
		serviceName = "mimika"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// latencyBuckets cover synthesis latencies, which run from tens of
// milliseconds for short phrases to minutes for audiobook chapters.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// Metrics holds the service's metric instruments. The underlying OTel types
// are safe for concurrent use.
type Metrics struct {
	// GenerationDuration tracks synthesis latency per engine.
	GenerationDuration metric.Float64Histogram

	// Generations counts synthesis requests by engine and status.
	Generations metric.Int64Counter

	// JobsFinished counts terminal background jobs by kind and status.
	JobsFinished metric.Int64Counter

	// ActiveJobs tracks currently running background jobs.
	ActiveJobs metric.Int64UpDownCounter

	// ModelDownloads counts model download attempts by status.
	ModelDownloads metric.Int64Counter

	// StreamedFrames counts PCM frames delivered over streaming responses.
	StreamedFrames metric.Int64Counter

	// HTTPRequestDuration tracks request latency by method and route.
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics builds all instruments from the given provider. Tests pass a
// private provider to avoid cross-test pollution.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GenerationDuration, err = m.Float64Histogram("mimika.generation.duration",
		metric.WithDescription("Latency of speech synthesis by engine."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Generations, err = m.Int64Counter("mimika.generations",
		metric.WithDescription("Total synthesis requests by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.JobsFinished, err = m.Int64Counter("mimika.jobs.finished",
		metric.WithDescription("Terminal background jobs by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveJobs, err = m.Int64UpDownCounter("mimika.jobs.active",
		metric.WithDescription("Background jobs currently running."),
	); err != nil {
		return nil, err
	}
	if met.ModelDownloads, err = m.Int64Counter("mimika.model.downloads",
		metric.WithDescription("Model download attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.StreamedFrames, err = m.Int64Counter("mimika.stream.frames",
		metric.WithDescription("PCM frames delivered over streaming responses."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mimika.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built from the global
// meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
