package metrics

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/procfs"
)

// MiB is the number of bytes in one megabyte as used by memory thresholds.
const MiB = 1024 * 1024

// ErrRSSUnavailable is returned when the platform cannot report resident memory.
var ErrRSSUnavailable = errors.New("resident memory unavailable")

// Snapshot is a point-in-time view of the process resources.
type Snapshot struct {
	// Process memory from /proc/self/stat.
	RSS uint64 `json:"rss"`
	VMS uint64 `json:"vms"`

	// Go heap from runtime.MemStats.
	HeapAlloc    uint64 `json:"heap_alloc"`
	HeapSys      uint64 `json:"heap_sys"`
	HeapObjects  uint64 `json:"heap_objects"`
	NumGC        uint32 `json:"num_gc"`
	NumGoroutine int    `json:"num_goroutine"`

	// User plus system CPU time consumed by the process so far.
	CPUTime time.Duration `json:"cpu_time"`

	// Physical memory of the host, 0 when unknown.
	MemTotal uint64 `json:"mem_total"`

	Timestamp time.Time `json:"timestamp"`
}

// RSSMB returns resident memory in megabytes.
func (s Snapshot) RSSMB() float64 { return float64(s.RSS) / MiB }

// VMSMB returns virtual memory in megabytes.
func (s Snapshot) VMSMB() float64 { return float64(s.VMS) / MiB }

// MemoryPercent returns resident memory as a percentage of host memory.
func (s Snapshot) MemoryPercent() float64 {
	if s.MemTotal == 0 {
		return 0
	}
	return float64(s.RSS) / float64(s.MemTotal) * 100
}

// Sampler takes resource snapshots. A non-nil error with a populated
// Snapshot means only the resident-memory fields are missing.
type Sampler interface {
	Sample() (Snapshot, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func() (Snapshot, error)

// Sample calls f.
func (f SamplerFunc) Sample() (Snapshot, error) { return f() }

// ProcessSampler reads the current process through procfs and the Go runtime.
type ProcessSampler struct {
	fs       procfs.FS
	fsErr    error
	memTotal uint64
	readHeap bool
}

// NewProcessSampler opens the default procfs mount. On platforms without
// procfs the sampler still works but every Sample reports ErrRSSUnavailable.
func NewProcessSampler() *ProcessSampler {
	s := &ProcessSampler{readHeap: true}
	s.fs, s.fsErr = procfs.NewDefaultFS()
	if s.fsErr == nil {
		if mi, err := s.fs.Meminfo(); err == nil && mi.MemTotal != nil {
			s.memTotal = *mi.MemTotal * 1024
		}
	}
	return s
}

// WithoutHeapStats skips runtime.ReadMemStats, which stops the world briefly.
func (s *ProcessSampler) WithoutHeapStats() *ProcessSampler {
	s.readHeap = false
	return s
}

// Sample takes a snapshot of the current process.
func (s *ProcessSampler) Sample() (Snapshot, error) {
	snap := Snapshot{
		NumGoroutine: runtime.NumGoroutine(),
		MemTotal:     s.memTotal,
		Timestamp:    time.Now(),
	}

	if s.readHeap {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		snap.HeapAlloc = m.HeapAlloc
		snap.HeapSys = m.HeapSys
		snap.HeapObjects = m.HeapObjects
		snap.NumGC = m.NumGC
	}

	if cpu, err := processCPUTime(); err == nil {
		snap.CPUTime = cpu
	}

	if s.fsErr != nil {
		return snap, fmt.Errorf("%w: %v", ErrRSSUnavailable, s.fsErr)
	}
	proc, err := s.fs.Self()
	if err != nil {
		return snap, fmt.Errorf("%w: %v", ErrRSSUnavailable, err)
	}
	stat, err := proc.Stat()
	if err != nil {
		return snap, fmt.Errorf("%w: %v", ErrRSSUnavailable, err)
	}
	snap.RSS = uint64(stat.ResidentMemory())
	snap.VMS = uint64(stat.VirtualMemory())
	return snap, nil
}
