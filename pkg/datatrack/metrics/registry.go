// Package metrics holds the process-wide pipeline metrics registry, the
// resource sampler used to snapshot memory and CPU around an invocation,
// and an OpenTelemetry meter adapter.
//
// # Thread Safety
//
// Every Registry method is safe for concurrent use. Series are stored in
// Prometheus vectors: updates to one label-set are atomic and never wait on
// updates to another, so unrelated pipelines do not serialize.
package metrics

import (
	"bufio"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const (
	RunsMetric     = "pipeline_runs_total"
	DurationMetric = "pipeline_duration_seconds"
	MemoryMetric   = "pipeline_memory_usage_bytes"
	ActiveMetric   = "active_pipelines"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

// DurationBuckets covers sub-millisecond steps up to ten-minute batch jobs.
var DurationBuckets = []float64{
	.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// Registry is the pipeline metrics registry. Entries are only ever added or
// overwritten; nothing is deleted while the process runs.
type Registry struct {
	reg      *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	memory   *prometheus.GaugeVec
	active   prometheus.Gauge
}

// NewRegistry creates an isolated registry with the four pipeline series
// registered on a private Prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: RunsMetric,
			Help: "Total number of pipeline executions",
		}, []string{"pipeline_name", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    DurationMetric,
			Help:    "Pipeline execution duration in seconds",
			Buckets: DurationBuckets,
		}, []string{"pipeline_name"}),
		memory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MemoryMetric,
			Help: "Current memory usage in bytes",
		}, []string{"pipeline_name"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ActiveMetric,
			Help: "Number of currently active pipelines",
		}),
	}
	r.reg.MustRegister(r.runs, r.duration, r.memory, r.active)
	return r
}

var (
	defaultRegistry *Registry
	initOnce        sync.Once
)

// Init creates the process-wide registry on first call and returns it.
// Later calls return the same instance.
func Init() *Registry {
	initOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Default is an alias for Init.
func Default() *Registry { return Init() }

// RecordRun counts one finished invocation of name.
func (r *Registry) RecordRun(name string, success bool) {
	r.runs.WithLabelValues(name, status(success)).Inc()
}

// ObserveDuration adds one duration sample for name.
func (r *Registry) ObserveDuration(name string, seconds float64) {
	r.duration.WithLabelValues(name).Observe(seconds)
}

// SetMemory overwrites the last observed memory value for name.
func (r *Registry) SetMemory(name string, bytes uint64) {
	r.memory.WithLabelValues(name).Set(float64(bytes))
}

// SetActiveCount sets the number of in-flight invocations.
func (r *Registry) SetActiveCount(n int) {
	r.active.Set(float64(n))
}

// RegisterRuntimeCollectors adds the Go runtime and process collectors.
func (r *Registry) RegisterRuntimeCollectors() error {
	if err := r.reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	return r.reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Registerer exposes the underlying registry so other exporters can share it.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer exposes the underlying registry for reads.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Render writes a point-in-time snapshot of every series in the Prometheus
// text exposition format. It does not modify any series.
func (r *Registry) Render(w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(bw, mf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Handler serves the registry for scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func status(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusFailure
}
