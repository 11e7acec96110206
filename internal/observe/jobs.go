package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// JobMetrics adapts Metrics to the job manager's lifecycle hooks.
type JobMetrics struct {
	m *Metrics
}

// NewJobMetrics wraps m for the job manager.
func NewJobMetrics(m *Metrics) *JobMetrics {
	return &JobMetrics{m: m}
}

func (j *JobMetrics) JobStarted(kind string) {
	j.m.ActiveJobs.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

func (j *JobMetrics) JobFinished(kind, status string) {
	ctx := context.Background()
	j.m.ActiveJobs.Add(ctx, -1,
		metric.WithAttributes(attribute.String("kind", kind)))
	j.m.JobsFinished.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		))
}

// RecordGeneration notes one synthesis request outcome.
func (m *Metrics) RecordGeneration(ctx context.Context, engine, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	)
	m.Generations.Add(ctx, 1, attrs)
	m.GenerationDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("engine", engine)))
}

// RecordStreamedFrames notes how many PCM frames one streaming response
// delivered.
func (m *Metrics) RecordStreamedFrames(ctx context.Context, frames int64) {
	if frames > 0 {
		m.StreamedFrames.Add(ctx, frames)
	}
}

// RecordModelDownload notes one model download attempt outcome.
func (m *Metrics) RecordModelDownload(ctx context.Context, status string) {
	m.ModelDownloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}
