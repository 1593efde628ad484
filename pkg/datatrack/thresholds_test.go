package datatrack

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

func measurementOf(d time.Duration, deltaMB float64) Measurement {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Measurement{
		ID:          "m-1",
		Subject:     "load",
		Start:       start,
		End:         start.Add(d),
		StartMemory: 100 * metrics.MiB,
		EndMemory:   uint64(int64(100*metrics.MiB) + int64(deltaMB*metrics.MiB)),
		MemoryKnown: true,
	}
}

func TestEvaluateTimeBoundary(t *testing.T) {
	th := Thresholds{Time: 5 * time.Second}

	tests := []struct {
		duration time.Duration
		want     int
	}{
		{5001 * time.Millisecond, 1},
		{5 * time.Second, 0},
		{4999 * time.Millisecond, 0},
	}
	for _, tc := range tests {
		t.Run(tc.duration.String(), func(t *testing.T) {
			events := Evaluate(measurementOf(tc.duration, 0), th)
			require.Len(t, events, tc.want)
			if tc.want == 1 {
				assert.Equal(t, AlertTime, events[0].Kind)
				assert.Equal(t, "Function load exceeded time threshold: 5.001s > 5s", events[0].Message)
				assert.InDelta(t, 5.001, events[0].Fields["observed"], 1e-9)
				assert.Equal(t, 5.0, events[0].Fields["threshold"])
			}
		})
	}
}

func TestEvaluateMemoryBoundary(t *testing.T) {
	th := Thresholds{MemoryMB: 50}

	tests := []struct {
		deltaMB float64
		want    int
	}{
		{50.5, 1},
		{50, 0},
		{49, 0},
		{-90, 0},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.deltaMB), func(t *testing.T) {
			events := Evaluate(measurementOf(time.Millisecond, tc.deltaMB), th)
			require.Len(t, events, tc.want)
			if tc.want == 1 {
				assert.Equal(t, "Function load exceeded memory threshold: 50.500MB > 50MB", events[0].Message)
			}
		})
	}
}

func TestEvaluateIndependentAlerts(t *testing.T) {
	m := measurementOf(2*time.Second, 80)
	events := Evaluate(m, Thresholds{Time: time.Second, MemoryMB: 50})

	require.Len(t, events, 2)
	assert.Equal(t, AlertTime, events[0].Kind)
	assert.Equal(t, AlertMemory, events[1].Kind)
	assert.Equal(t, "Function load exceeded memory threshold: 80.000MB > 50MB", events[1].Message)

	for _, ev := range events {
		assert.Equal(t, "load", ev.Fields["subject"])
		assert.Equal(t, "m-1", ev.Fields["measurement_id"])
		assert.Equal(t, m, ev.Fields["measurement"])
		assert.Equal(t, string(ev.Kind), ev.Fields["kind"])
	}
}

func TestEvaluateUnsetAndUnknown(t *testing.T) {
	m := measurementOf(time.Hour, 10_000)
	assert.Empty(t, Evaluate(m, Thresholds{}))

	m.MemoryKnown = false
	assert.Empty(t, Evaluate(m, Thresholds{MemoryMB: 1}))
}

func TestThresholdsFromConfig(t *testing.T) {
	cfg := config.Default().Alerts
	assert.Equal(t, Thresholds{Time: 300 * time.Second, MemoryMB: 1000}, ThresholdsFromConfig(cfg))

	cfg.Enabled = false
	assert.True(t, ThresholdsFromConfig(cfg).IsZero())
}

func TestMeasurementDerivedValues(t *testing.T) {
	m := measurementOf(time.Second, -10)
	assert.Equal(t, int64(-10*metrics.MiB), m.MemoryDelta())
	assert.Equal(t, -10.0, m.MemoryDeltaMB())

	m.End = m.Start.Add(-time.Second)
	assert.Zero(t, m.Duration())

	m.MemoryKnown = false
	assert.Zero(t, m.MemoryDelta())
}
