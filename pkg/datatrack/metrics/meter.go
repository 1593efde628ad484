package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meter mirrors pipeline runs onto OpenTelemetry instruments so they can be
// exported through any configured MeterProvider.
//
// Thread Safety: Safe for concurrent use after creation.
type Meter struct {
	runs        metric.Int64Counter
	duration    metric.Float64Histogram
	memoryDelta metric.Int64Gauge
	cpuTime     metric.Float64Counter
}

// NewMeter registers the pipeline instruments on meter.
func NewMeter(meter metric.Meter) (*Meter, error) {
	m := &Meter{}
	var err error

	m.runs, err = meter.Int64Counter(
		"pipeline.runs",
		metric.WithDescription("Pipeline executions by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline.runs: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"pipeline.duration",
		metric.WithDescription("Pipeline execution duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline.duration: %w", err)
	}

	m.memoryDelta, err = meter.Int64Gauge(
		"pipeline.memory.delta",
		metric.WithDescription("Resident memory change across the last execution"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline.memory.delta: %w", err)
	}

	m.cpuTime, err = meter.Float64Counter(
		"pipeline.cpu.time",
		metric.WithDescription("Process CPU time spent while pipelines ran"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline.cpu.time: %w", err)
	}

	return m, nil
}

// Run is one finished pipeline execution as seen by the meter.
type Run struct {
	Name        string
	Success     bool
	Seconds     float64
	CPUSeconds  float64
	MemoryDelta int64
	MemoryKnown bool
}

// Record adds one run to the instruments.
func (m *Meter) Record(ctx context.Context, run Run) {
	name := attribute.String("pipeline.name", run.Name)
	m.runs.Add(ctx, 1, metric.WithAttributes(name, attribute.String("status", status(run.Success))))
	m.duration.Record(ctx, run.Seconds, metric.WithAttributes(name))
	if run.MemoryKnown {
		m.memoryDelta.Record(ctx, run.MemoryDelta, metric.WithAttributes(name))
	}
	if run.CPUSeconds > 0 {
		m.cpuTime.Add(ctx, run.CPUSeconds, metric.WithAttributes(name))
	}
}
