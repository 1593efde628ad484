package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestConfigCommand(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		out := execute(t, "config")
		assert.Contains(t, out, "time_threshold: 300")
		assert.Contains(t, out, "memory_threshold: 1000")
		assert.Contains(t, out, "port: 5000")
	})

	t.Run("file values with masked credentials", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "datatrack.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: WARNING
alerts:
  time_threshold: 12
  email:
    password: hunter2
`), 0o600))

		out := execute(t, "config", "--config", path)
		assert.Contains(t, out, "time_threshold: 12")
		assert.Contains(t, out, "memory_threshold: 1000")
		assert.Contains(t, out, "****")
		assert.NotContains(t, out, "hunter2")
	})

	t.Run("unreadable file falls back to defaults", func(t *testing.T) {
		out := execute(t, "config", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Contains(t, out, "time_threshold: 300")
	})
}

func TestUnknownScenario(t *testing.T) {
	a := &app{cfg: config.Default()}
	w := &workload{scenarios: []string{"nope"}}
	_, err := w.runner(a, nil, nil)
	assert.Error(t, err)
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, discardLogger(), addr, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusTeapot
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestOTelMeterExportsIntoRegistry(t *testing.T) {
	reg := metrics.NewRegistry()
	meter, shutdown, err := otelMeter(reg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	cfg := config.Default()
	cfg.Alerts.Enabled = false
	mon, err := datatrack.New(cfg,
		datatrack.WithLogger(discardLogger()),
		datatrack.WithRegistry(reg),
		datatrack.WithMeter(meter),
	)
	require.NoError(t, err)
	require.NoError(t, mon.Run("otel_job", func() error { return nil }))

	var buf bytes.Buffer
	require.NoError(t, reg.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, `pipeline_runs_total{pipeline_name="otel_job",status="success"} 1`)

	var otelLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "otel_pipeline_runs_total{") {
			otelLine = line
		}
	}
	require.NotEmpty(t, otelLine)
	assert.Contains(t, otelLine, `pipeline_name="otel_job"`)
	assert.True(t, strings.HasSuffix(otelLine, " 1"))
}
