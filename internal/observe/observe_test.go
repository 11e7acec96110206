package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsCreatesInstruments(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordGeneration(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordGeneration(context.Background(), "kokoro", "completed", 1.25)

	rm := collect(t, reader)
	counter := findMetric(rm, "mimika.generations")
	if counter == nil {
		t.Fatal("generations counter not recorded")
	}
	sum, ok := counter.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("unexpected counter data: %+v", counter.Data)
	}

	hist := findMetric(rm, "mimika.generation.duration")
	if hist == nil {
		t.Fatal("duration histogram not recorded")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(h.DataPoints) != 1 || h.DataPoints[0].Sum != 1.25 {
		t.Errorf("unexpected histogram data: %+v", hist.Data)
	}
}

func TestJobMetricsLifecycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	jm := NewJobMetrics(m)

	jm.JobStarted("audiobook")
	jm.JobStarted("tts")
	jm.JobFinished("audiobook", "completed")

	rm := collect(t, reader)

	active := findMetric(rm, "mimika.jobs.active")
	if active == nil {
		t.Fatal("active jobs gauge not recorded")
	}
	sum := active.Data.(metricdata.Sum[int64])
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("active jobs = %d, want 1", total)
	}

	finished := findMetric(rm, "mimika.jobs.finished")
	if finished == nil {
		t.Fatal("finished jobs counter not recorded")
	}
}
