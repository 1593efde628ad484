package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"

	"github.com/pachecocarlos27/DataTrackPro/internal/demo"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

const (
	meterName     = "github.com/pachecocarlos27/DataTrackPro"
	otelNamespace = "otel"
)

func newPrometheusCmd(a *app) *cobra.Command {
	var (
		w       workload
		useOTel bool
	)
	cmd := &cobra.Command{
		Use:   "prometheus",
		Short: "Expose pipeline metrics for scraping while running the demo workloads",
		Long: `Serve the metrics registry at /metrics on metrics.port and drive it with
the demo workloads. With --otel the runs are also recorded through an
OpenTelemetry meter exported into the same registry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrometheus(cmd.Context(), a, &w, useOTel)
		},
	}
	w.bind(cmd)
	cmd.Flags().BoolVar(&useOTel, "otel", false, "also record runs through OpenTelemetry instruments")
	return cmd
}

func runPrometheus(ctx context.Context, a *app, w *workload, useOTel bool) error {
	reg := a.registry()
	opts := []datatrack.Option{
		datatrack.WithLogger(a.logger),
		datatrack.WithRegistry(reg),
	}

	if useOTel {
		meter, shutdown, err := otelMeter(reg)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				a.logger.Warn("meter provider shutdown failed", "error", err)
			}
		}()
		opts = append(opts, datatrack.WithMeter(meter))
	}

	mon, err := datatrack.New(a.cfg, opts...)
	if err != nil {
		return err
	}
	runner, err := w.runner(a, mon, demo.NewLedger())
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())

	addr := net.JoinHostPort("", strconv.Itoa(a.cfg.Metrics.Port))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(ctx, a.logger, addr, mux)
	})
	g.Go(func() error {
		return runner.Run(ctx)
	})
	return g.Wait()
}

// otelMeter builds a MeterProvider whose Prometheus exporter registers on
// reg, installs it globally and returns the pipeline instruments. The
// exported series carry the otel_ prefix so they do not collide with the
// registry's own pipeline series.
func otelMeter(reg *metrics.Registry) (*metrics.Meter, func(context.Context) error, error) {
	exporter, err := promexporter.New(
		promexporter.WithRegisterer(reg.Registerer()),
		promexporter.WithNamespace(otelNamespace),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter, err := metrics.NewMeter(otel.Meter(meterName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, nil, err
	}
	return meter, provider.Shutdown, nil
}
