package datatrack

import (
	"fmt"
	"time"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
)

// Thresholds are the alert limits of one instrumentation site. A zero field
// is unset and never fires.
type Thresholds struct {
	Time     time.Duration
	MemoryMB float64
}

// IsZero reports whether no threshold is set.
func (t Thresholds) IsZero() bool { return t.Time <= 0 && t.MemoryMB <= 0 }

// ThresholdsFromConfig returns the configured default thresholds, or none
// when alerts are disabled.
func ThresholdsFromConfig(cfg config.Alerts) Thresholds {
	if !cfg.Enabled {
		return Thresholds{}
	}
	return Thresholds{Time: cfg.TimeLimit(), MemoryMB: cfg.MemoryThreshold}
}

// AlertKind names the threshold that fired.
type AlertKind string

const (
	AlertTime   AlertKind = "time"
	AlertMemory AlertKind = "memory"
)

// AlertEvent is one threshold breach.
type AlertEvent struct {
	Kind    AlertKind
	Message string
	Fields  map[string]any
}

// Evaluate compares m against th. Each threshold is checked on its own with
// a strict comparison, so a measurement over both limits yields two events.
// The memory threshold is skipped when the measurement has no memory data.
func Evaluate(m Measurement, th Thresholds) []AlertEvent {
	var events []AlertEvent

	if th.Time > 0 && m.Duration() > th.Time {
		observed := m.Duration().Seconds()
		limit := th.Time.Seconds()
		events = append(events, AlertEvent{
			Kind: AlertTime,
			Message: fmt.Sprintf("Function %s exceeded time threshold: %.3fs > %gs",
				m.Subject, observed, limit),
			Fields: alertFields(m, AlertTime, observed, limit),
		})
	}

	if th.MemoryMB > 0 && m.MemoryKnown && m.MemoryDeltaMB() > th.MemoryMB {
		observed := m.MemoryDeltaMB()
		events = append(events, AlertEvent{
			Kind: AlertMemory,
			Message: fmt.Sprintf("Function %s exceeded memory threshold: %.3fMB > %gMB",
				m.Subject, observed, th.MemoryMB),
			Fields: alertFields(m, AlertMemory, observed, th.MemoryMB),
		})
	}

	return events
}

func alertFields(m Measurement, kind AlertKind, observed, threshold float64) map[string]any {
	return map[string]any{
		"subject":        m.Subject,
		"kind":           string(kind),
		"observed":       observed,
		"threshold":      threshold,
		"measurement_id": m.ID,
		"measurement":    m,
	}
}
