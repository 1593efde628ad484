package datatrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

// Sink consumes finished measurements.
type Sink interface {
	Record(ctx context.Context, m Measurement) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, m Measurement) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, m Measurement) error { return f(ctx, m) }

// Publisher is the live dashboard publish interface. Emit must not block
// for long; it is called while the measured caller waits.
type Publisher interface {
	Emit(eventType string, payload map[string]any) error
}

type namedSink struct {
	name string
	Sink
}

// fanOut delivers m to every sink. A sink that errors or panics is logged
// and the remaining sinks still run.
func (mon *Monitor) fanOut(ctx context.Context, m Measurement) {
	for _, s := range mon.sinks {
		mon.record(ctx, s, m)
	}
}

func (mon *Monitor) record(ctx context.Context, s namedSink, m Measurement) {
	defer func() {
		if r := recover(); r != nil {
			mon.logger.Error("sink panicked",
				"sink", s.name, "subject", m.Subject, "panic", fmt.Sprint(r))
		}
	}()
	if err := s.Record(ctx, m); err != nil {
		mon.logger.Error("sink failed",
			"sink", s.name, "subject", m.Subject, "error", err)
	}
}

type logSink struct {
	logger *slog.Logger
}

func (s logSink) Record(ctx context.Context, m Measurement) error {
	attrs := []slog.Attr{
		slog.String("id", m.ID),
		slog.String("subject", m.Subject),
		slog.Float64("execution_time", m.Duration().Seconds()),
		slog.Float64("memory_usage_mb", m.MemoryDeltaMB()),
		slog.Bool("memory_known", m.MemoryKnown),
		slog.Float64("cpu_time", m.CPUTime.Seconds()),
		slog.Bool("success", m.Succeeded()),
	}
	level := slog.LevelInfo
	if !m.Succeeded() {
		level = slog.LevelError
		attrs = append(attrs,
			slog.String("error_type", m.Outcome.Kind),
			slog.String("error_message", m.Outcome.Message))
	}
	s.logger.LogAttrs(ctx, level, "measurement", attrs...)
	return nil
}

type registrySink struct {
	registry *metrics.Registry
}

func (s registrySink) Record(_ context.Context, m Measurement) error {
	s.registry.RecordRun(m.Subject, m.Succeeded())
	s.registry.ObserveDuration(m.Subject, m.Duration().Seconds())
	if m.MemoryKnown {
		s.registry.SetMemory(m.Subject, m.EndMemory)
	}
	s.registry.SetActiveCount(m.InFlight)
	return nil
}

type dashboardSink struct {
	publisher Publisher
}

func (s dashboardSink) Record(_ context.Context, m Measurement) error {
	var errs []error
	errs = append(errs, s.publisher.Emit("performance", map[string]any{
		"subject":          m.Subject,
		"measurement_id":   m.ID,
		"execution_time":   m.Duration().Seconds(),
		"active_pipelines": m.InFlight,
		"success":          m.Succeeded(),
	}))
	if m.MemoryKnown {
		errs = append(errs, s.publisher.Emit("memory", map[string]any{
			"subject":        m.Subject,
			"measurement_id": m.ID,
			"rss_mb":         float64(m.EndMemory) / metrics.MiB,
			"memory_used_mb": m.MemoryDeltaMB(),
		}))
	}
	if !m.Succeeded() {
		severity := "high"
		if m.Outcome.Panicked {
			severity = "critical"
		}
		errs = append(errs, s.publisher.Emit("alert", map[string]any{
			"subject":        m.Subject,
			"measurement_id": m.ID,
			"message":        fmt.Sprintf("Error in %s: %s", m.Subject, m.Outcome.Message),
			"error_type":     m.Outcome.Kind,
			"severity":       severity,
		}))
	}
	return errors.Join(errs...)
}

type meterSink struct {
	meter *metrics.Meter
}

func (s meterSink) Record(ctx context.Context, m Measurement) error {
	s.meter.Record(ctx, metrics.Run{
		Name:        m.Subject,
		Success:     m.Succeeded(),
		Seconds:     m.Duration().Seconds(),
		CPUSeconds:  m.CPUTime.Seconds(),
		MemoryDelta: m.MemoryDelta(),
		MemoryKnown: m.MemoryKnown,
	})
	return nil
}
