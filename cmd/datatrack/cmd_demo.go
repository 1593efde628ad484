package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pachecocarlos27/DataTrackPro/internal/demo"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/config"
	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/dashboard"
)

// workload holds the flags that control the demo scenarios.
type workload struct {
	iterations  int
	concurrency int
	pace        float64
	pause       time.Duration
	scenarios   []string
}

func (w *workload) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&w.iterations, "iterations", 0, "scenario rounds to run, 0 runs until interrupted")
	f.IntVar(&w.concurrency, "concurrency", 2, "scenarios running at the same time")
	f.Float64Var(&w.pace, "pace", 1, "multiplier for simulated delays, 0 disables them")
	f.DurationVar(&w.pause, "pause", 2*time.Second, "pause between rounds")
	f.StringSliceVar(&w.scenarios, "scenario", nil, "scenarios to run (ledger, training, batch, memory), default all")
}

func (w *workload) runner(a *app, mon *datatrack.Monitor, ledger *demo.Ledger) (*demo.Runner, error) {
	set, err := demo.ByName(demo.Default(ledger, w.pace), w.scenarios...)
	if err != nil {
		return nil, err
	}
	return &demo.Runner{
		Monitor:     mon,
		Logger:      a.logger,
		Scenarios:   set,
		Iterations:  w.iterations,
		Concurrency: w.concurrency,
		Pause:       w.pause,
	}, nil
}

func newDemoCmd(a *app) *cobra.Command {
	var w workload
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the demo workloads with the live dashboard",
		Long: `Run the ledger, training, batch and memory workloads through a monitor
wired to the dashboard. The ledger is also served under /ledger/ on the
dashboard listener, each request measured as "ledger_api". When --config
is set the file is watched and changes are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), a, &w)
		},
	}
	w.bind(cmd)
	return cmd
}

func runDemo(ctx context.Context, a *app, w *workload) error {
	reg := a.registry()
	srv := dashboard.NewServer(a.dashboardAddr(),
		dashboard.WithLogger(a.logger),
		dashboard.WithRegistry(reg),
	)
	defer srv.Stop()

	mon, err := datatrack.New(a.cfg,
		datatrack.WithLogger(a.logger),
		datatrack.WithRegistry(reg),
		datatrack.WithPublisher(srv),
	)
	if err != nil {
		return err
	}

	ledger := demo.NewLedger()
	runner, err := w.runner(a, mon, ledger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	mux.Handle("/ledger/", http.StripPrefix("/ledger", mon.HTTPMiddleware("ledger_api")(ledger.Handler())))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(ctx, a.logger, srv.Addr(), mux)
	})
	g.Go(func() error {
		if err := runner.Run(ctx); err != nil {
			return err
		}
		a.logger.Info("demo workload finished, dashboard still serving")
		return nil
	})
	if a.configPath != "" {
		g.Go(func() error {
			return watchConfig(ctx, a, mon)
		})
	}
	return g.Wait()
}

// watchConfig applies every valid change of the config file to mon.
func watchConfig(ctx context.Context, a *app, mon *datatrack.Monitor) error {
	return config.NewWatcher(a.configPath,
		func(cfg config.Config) {
			if err := mon.Reload(cfg); err != nil {
				a.logger.Error("failed to apply config", "path", a.configPath, "error", err)
				return
			}
			a.logger.Info("config reloaded", "path", a.configPath)
		},
		func(err error) {
			a.logger.Warn("config reload failed", "path", a.configPath, "error", err)
		},
	).Run(ctx)
}
