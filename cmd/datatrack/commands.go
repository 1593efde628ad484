package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/logging"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/metrics"
)

const shutdownTimeout = 5 * time.Second

// app is the state shared by every subcommand: the loaded configuration
// and the process logger built from it.
type app struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	closer     io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default(), logger: slog.Default()}

	root := &cobra.Command{
		Use:   "datatrack",
		Short: "Performance monitoring for data pipelines",
		Long: `datatrack measures pipeline functions and blocks, exports the results
as Prometheus metrics, raises threshold alerts and streams everything to a
live dashboard.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML or JSON configuration file")

	root.AddCommand(
		newDashboardCmd(a),
		newDemoCmd(a),
		newPrometheusCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger. An unreadable or
// invalid config file is logged and the defaults are used instead.
func (a *app) setup(*cobra.Command, []string) error {
	var loadErr error
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			loadErr = err
		} else {
			a.cfg = cfg
		}
	}

	logger, closer, err := logging.Setup(a.cfg.Logging)
	if err != nil {
		return err
	}
	a.logger, a.closer = logger, closer
	slog.SetDefault(logger)

	if loadErr != nil {
		logger.Error("failed to load config, using defaults", "path", a.configPath, "error", loadErr)
	}
	return nil
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// registry returns the process-wide metrics registry with the Go runtime
// and process collectors attached.
func (a *app) registry() *metrics.Registry {
	reg := metrics.Init()
	if err := reg.RegisterRuntimeCollectors(); err != nil {
		a.logger.Debug("runtime collectors already registered", "error", err)
	}
	return reg
}

func (a *app) dashboardAddr() string {
	return net.JoinHostPort(a.cfg.Dashboard.Host, strconv.Itoa(a.cfg.Dashboard.Port))
}

// serve runs h on addr until ctx is done.
func serve(ctx context.Context, logger *slog.Logger, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
