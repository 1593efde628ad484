package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("RecordRun", func(t *testing.T) {
		r := NewRegistry()
		r.RecordRun("load", true)
		r.RecordRun("load", true)
		r.RecordRun("load", false)

		assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("load", StatusSuccess)))
		assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("load", StatusFailure)))
	})

	t.Run("ObserveDuration", func(t *testing.T) {
		r := NewRegistry()
		r.ObserveDuration("load", 0.5)
		r.ObserveDuration("load", 3)
		r.ObserveDuration("train", 1)

		assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf))
		assert.Contains(t, buf.String(), `pipeline_duration_seconds_count{pipeline_name="load"} 2`)
		assert.Contains(t, buf.String(), `pipeline_duration_seconds_sum{pipeline_name="load"} 3.5`)
	})

	t.Run("SetMemoryOverwrites", func(t *testing.T) {
		r := NewRegistry()
		r.SetMemory("load", 4096)
		r.SetMemory("load", 1024)

		assert.Equal(t, 1024.0, testutil.ToFloat64(r.memory.WithLabelValues("load")))
	})

	t.Run("SetActiveCount", func(t *testing.T) {
		r := NewRegistry()
		r.SetActiveCount(3)
		assert.Equal(t, 3.0, testutil.ToFloat64(r.active))
		r.SetActiveCount(0)
		assert.Equal(t, 0.0, testutil.ToFloat64(r.active))
	})
}

func TestRegistryRender(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("x", true)
	r.SetActiveCount(1)

	var first, second bytes.Buffer
	require.NoError(t, r.Render(&first))
	require.NoError(t, r.Render(&second))

	out := first.String()
	assert.Contains(t, out, `pipeline_runs_total{pipeline_name="x",status="success"} 1`)
	assert.Contains(t, out, "# TYPE pipeline_runs_total counter")
	assert.Contains(t, out, "active_pipelines 1")
	assert.Equal(t, out, second.String(), "render must not change state")
}

func TestRegistryHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("served", false)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `pipeline_runs_total{pipeline_name="served",status="failure"} 1`)
}

func TestRegistryRuntimeCollectors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterRuntimeCollectors())
	assert.Error(t, r.RegisterRuntimeCollectors(), "second registration should collide")

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.Contains(t, buf.String(), "go_goroutines")
}

func TestInitReturnsSingleton(t *testing.T) {
	a := Init()
	b := Default()
	assert.Same(t, a, b)
	assert.NotSame(t, a, NewRegistry())
}

func TestRegistryLabelIsolation(t *testing.T) {
	r := NewRegistry()
	const (
		subjects = 8
		perSubj  = 250
	)

	var wg sync.WaitGroup
	for s := 0; s < subjects; s++ {
		for i := 0; i < perSubj; i++ {
			wg.Add(1)
			go func(name string, ok bool) {
				defer wg.Done()
				r.RecordRun(name, ok)
				r.ObserveDuration(name, 0.01)
			}(fmt.Sprintf("subject-%d", s), i%5 != 0)
		}
	}
	wg.Wait()

	for s := 0; s < subjects; s++ {
		name := fmt.Sprintf("subject-%d", s)
		assert.Equal(t, float64(perSubj/5*4), testutil.ToFloat64(r.runs.WithLabelValues(name, StatusSuccess)), name)
		assert.Equal(t, float64(perSubj/5), testutil.ToFloat64(r.runs.WithLabelValues(name, StatusFailure)), name)
	}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.Equal(t, subjects, strings.Count(buf.String(), "pipeline_duration_seconds_count{"))
}
