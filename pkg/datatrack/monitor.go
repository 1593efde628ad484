package datatrack

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/alerts"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

// Monitor instruments units of work and routes their measurements to the
// configured sinks and alert channel. It is safe for concurrent use; all
// per-invocation state lives in the call or in a Guard.
type Monitor struct {
	logger     *slog.Logger
	registry   *metrics.Registry
	publisher  Publisher
	sampler    metrics.Sampler
	dispatcher *alerts.Dispatcher
	sinks      []namedSink

	// channelFixed keeps a WithChannel channel bound across Reload.
	channelFixed bool

	mu         sync.RWMutex
	cfg        config.Config
	thresholds Thresholds

	inFlight  atomic.Int64
	stopped   atomic.Bool
	rssWarned atomic.Bool
}

type options struct {
	logger    *slog.Logger
	registry  *metrics.Registry
	publisher Publisher
	channel   alerts.Channel
	sampler   metrics.Sampler
	meter     *metrics.Meter
	sinks     []namedSink
	err       error
}

// Option configures a Monitor.
type Option func(*options)

// WithLogger sets the logger used for measurement records and internal
// failures. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry sets the metrics registry. The default is metrics.Default().
func WithRegistry(r *metrics.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithPublisher enables the dashboard sink.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithChannel binds ch instead of selecting a channel from configuration.
func WithChannel(ch alerts.Channel) Option {
	return func(o *options) {
		if ch == nil {
			o.err = fmt.Errorf("%w: WithChannel(nil)", alerts.ErrInvalidChannel)
			return
		}
		o.channel = ch
	}
}

// WithSampler replaces the process resource sampler.
func WithSampler(s metrics.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithMeter mirrors measurements onto OpenTelemetry instruments.
func WithMeter(m *metrics.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithSink adds a named sink after the built-in ones.
func WithSink(name string, s Sink) Option {
	return func(o *options) {
		if s != nil {
			o.sinks = append(o.sinks, namedSink{name: name, Sink: s})
		}
	}
}

// New validates cfg and returns a ready Monitor. Configuration and option
// errors are reported here, before anything is measured.
func New(cfg config.Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = metrics.Default()
	}
	if o.sampler == nil {
		o.sampler = metrics.NewProcessSampler()
	}

	ch := o.channel
	if ch == nil {
		ch = alerts.Select(cfg.Alerts, o.logger)
	}
	dispatcher, err := alerts.NewDispatcher(ch, o.logger)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		logger:       o.logger,
		registry:     o.registry,
		publisher:    o.publisher,
		sampler:      o.sampler,
		dispatcher:   dispatcher,
		channelFixed: o.channel != nil,
		cfg:          cfg,
		thresholds:   ThresholdsFromConfig(cfg.Alerts),
	}

	m.sinks = append(m.sinks,
		namedSink{name: "log", Sink: logSink{logger: m.logger}},
		namedSink{name: "registry", Sink: registrySink{registry: m.registry}},
	)
	if m.publisher != nil {
		m.sinks = append(m.sinks, namedSink{name: "dashboard", Sink: dashboardSink{publisher: m.publisher}})
	}
	if o.meter != nil {
		m.sinks = append(m.sinks, namedSink{name: "otel", Sink: meterSink{meter: o.meter}})
	}
	m.sinks = append(m.sinks, o.sinks...)

	m.logger.Debug("monitor created",
		"channel", alerts.ChannelName(ch),
		"alerts_enabled", cfg.Alerts.Enabled,
		"time_threshold", m.thresholds.Time,
		"memory_threshold_mb", m.thresholds.MemoryMB)
	return m, nil
}

// Registry returns the metrics registry the monitor writes to.
func (m *Monitor) Registry() *metrics.Registry { return m.registry }

// Dispatcher returns the alert dispatcher, for runtime channel replacement.
func (m *Monitor) Dispatcher() *alerts.Dispatcher { return m.dispatcher }

// Config returns the active configuration.
func (m *Monitor) Config() config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// DefaultThresholds returns the thresholds applied to sites that set none.
func (m *Monitor) DefaultThresholds() Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds
}

// InFlight returns the number of invocations currently running.
func (m *Monitor) InFlight() int { return int(m.inFlight.Load()) }

// Reload applies a new configuration: default thresholds change for
// subsequent invocations and, unless a channel was fixed with WithChannel,
// the alert channel is selected again.
func (m *Monitor) Reload(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !m.channelFixed {
		if err := m.dispatcher.UpdateChannel(alerts.Select(cfg.Alerts, m.logger)); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.cfg = cfg
	m.thresholds = ThresholdsFromConfig(cfg.Alerts)
	m.mu.Unlock()

	m.logger.Info("configuration reloaded",
		"channel", alerts.ChannelName(m.dispatcher.Channel()),
		"alerts_enabled", cfg.Alerts.Enabled)
	return nil
}

// Alert sends a manual alert through the bound channel. It does nothing
// after Stop.
func (m *Monitor) Alert(ctx context.Context, message string, fields map[string]any) {
	if m.stopped.Load() {
		return
	}
	m.dispatcher.Alert(ctx, message, fields)
}

// Stop turns off alert dispatch. Measurements keep flowing to the sinks.
func (m *Monitor) Stop() { m.stopped.Store(true) }

// Active reports whether alert dispatch is on.
func (m *Monitor) Active() bool { return !m.stopped.Load() }

// LogMemoryUsage logs the current process memory and warns when resident
// memory is above thresholdMB. A thresholdMB of 0 disables the check.
func (m *Monitor) LogMemoryUsage(thresholdMB float64) (metrics.Snapshot, error) {
	snap, err := m.sampler.Sample()
	if err != nil {
		m.logger.Warn("memory usage unavailable", "error", err)
		return snap, err
	}
	m.logger.Info("memory usage",
		"rss_mb", snap.RSSMB(),
		"vms_mb", snap.VMSMB(),
		"percent", snap.MemoryPercent(),
		"heap_alloc_mb", float64(snap.HeapAlloc)/metrics.MiB,
		"goroutines", snap.NumGoroutine)
	if thresholdMB > 0 && snap.RSSMB() > thresholdMB {
		m.logger.Warn(fmt.Sprintf("Memory usage (%.2fMB) exceeded threshold (%gMB)", snap.RSSMB(), thresholdMB),
			"rss_mb", snap.RSSMB(),
			"threshold_mb", thresholdMB)
	}
	return snap, nil
}

// raise reports threshold breaches to the log, the dashboard and the alert
// channel. A failing dashboard never stops the channel dispatch.
func (m *Monitor) raise(ctx context.Context, events []AlertEvent) {
	for _, ev := range events {
		m.logger.Warn(ev.Message, "subject", ev.Fields["subject"], "kind", string(ev.Kind))
		if m.publisher != nil {
			m.publishAlert(ev)
		}
		m.Alert(ctx, ev.Message, ev.Fields)
	}
}

func (m *Monitor) publishAlert(ev AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("sink panicked",
				"sink", "dashboard", "subject", ev.Fields["subject"], "panic", fmt.Sprint(r))
		}
	}()
	err := m.publisher.Emit("alert", map[string]any{
		"subject":        ev.Fields["subject"],
		"measurement_id": ev.Fields["measurement_id"],
		"message":        ev.Message,
		"kind":           string(ev.Kind),
		"observed":       ev.Fields["observed"],
		"threshold":      ev.Fields["threshold"],
	})
	if err != nil {
		m.logger.Error("sink failed", "sink", "dashboard", "subject", ev.Fields["subject"], "error", err)
	}
}
