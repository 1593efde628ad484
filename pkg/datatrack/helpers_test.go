package datatrack

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/alerts"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

// syncBuffer is a goroutine-safe log destination.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type sentAlert struct {
	message string
	fields  map[string]any
}

type alertRecorder struct {
	mu   sync.Mutex
	sent []sentAlert
}

func (r *alertRecorder) Notify(_ context.Context, message string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentAlert{message: message, fields: fields})
	return nil
}

func (r *alertRecorder) all() []sentAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentAlert(nil), r.sent...)
}

type emitted struct {
	eventType string
	payload   map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (p *recordingPublisher) Emit(eventType string, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, emitted{eventType: eventType, payload: payload})
	return p.err
}

func (p *recordingPublisher) ofType(t string) []emitted {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []emitted
	for _, e := range p.events {
		if e.eventType == t {
			out = append(out, e)
		}
	}
	return out
}

// steppingSampler reports RSS growing by step bytes on every sample.
func steppingSampler(base, step uint64) metrics.Sampler {
	var n atomic.Uint64
	return metrics.SamplerFunc(func() (metrics.Snapshot, error) {
		i := n.Add(1) - 1
		return metrics.Snapshot{RSS: base + i*step}, nil
	})
}

var errNoProc = errors.New("no procfs")

func failingSampler() metrics.Sampler {
	return metrics.SamplerFunc(func() (metrics.Snapshot, error) {
		return metrics.Snapshot{}, errNoProc
	})
}

type harness struct {
	mon      *Monitor
	registry *metrics.Registry
	alerts   *alertRecorder
	logs     *syncBuffer
}

func newHarness(t *testing.T, cfg config.Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		registry: metrics.NewRegistry(),
		alerts:   &alertRecorder{},
		logs:     &syncBuffer{},
	}
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{
		WithLogger(logger),
		WithRegistry(h.registry),
		WithChannel(h.alerts),
		WithSampler(steppingSampler(100*metrics.MiB, 0)),
	}
	mon, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	h.mon = mon
	return h
}

func quietConfig() config.Config {
	cfg := config.Default()
	cfg.Alerts.Enabled = false
	return cfg
}

var _ alerts.Channel = (*alertRecorder)(nil)
