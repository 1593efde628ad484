package datatrack

import (
	"fmt"
	"time"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

// Outcome is the result of one measured invocation. The zero value is a
// success.
type Outcome struct {
	// Err is the error returned by the measured code, or a *PanicError.
	Err error `json:"-"`
	// Kind is the dynamic type of Err, or "panic".
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
	Panicked bool   `json:"panicked,omitempty"`
}

// Success reports whether the invocation completed without error.
func (o Outcome) Success() bool { return o.Err == nil }

func outcomeOf(err error) Outcome {
	if err == nil {
		return Outcome{}
	}
	if pe, ok := err.(*PanicError); ok {
		return Outcome{Err: err, Kind: "panic", Message: pe.Error(), Panicked: true}
	}
	return Outcome{Err: err, Kind: fmt.Sprintf("%T", err), Message: err.Error()}
}

// PanicError records a panic raised by measured code. It is only seen by
// sinks and alert channels; callers get the original panic re-raised.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Measurement is the record of one instrumented invocation. It is built
// once when the invocation ends and never modified afterwards.
type Measurement struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`

	// Resident set size at entry and exit. Both are zero and MemoryKnown
	// is false when either snapshot failed.
	StartMemory uint64 `json:"start_memory"`
	EndMemory   uint64 `json:"end_memory"`
	MemoryKnown bool   `json:"memory_known"`

	// CPUTime is process CPU time consumed during the invocation.
	CPUTime time.Duration `json:"cpu_time"`

	// InFlight is the number of other invocations still running when this
	// one finished.
	InFlight int `json:"in_flight"`

	Outcome Outcome `json:"outcome"`
}

// Duration returns End - Start, never negative.
func (m Measurement) Duration() time.Duration {
	d := m.End.Sub(m.Start)
	if d < 0 {
		return 0
	}
	return d
}

// MemoryDelta returns EndMemory - StartMemory in bytes, which may be
// negative. It is 0 when memory is unknown.
func (m Measurement) MemoryDelta() int64 {
	if !m.MemoryKnown {
		return 0
	}
	return int64(m.EndMemory) - int64(m.StartMemory)
}

// MemoryDeltaMB returns MemoryDelta in megabytes.
func (m Measurement) MemoryDeltaMB() float64 {
	return float64(m.MemoryDelta()) / metrics.MiB
}

// Succeeded reports whether the measured code completed without error.
func (m Measurement) Succeeded() bool { return m.Outcome.Success() }
