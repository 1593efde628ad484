// Package demo holds the example workloads driven by the datatrack CLI: a
// ledger of account transfers, a simulated model-training pipeline, and
// memory-heavy batch processing. Every workload runs through a Monitor so
// the dashboard and metrics endpoint have live data to show.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack"
)

// Scenario is one demo workload.
type Scenario interface {
	Name() string
	Run(ctx context.Context, mon *datatrack.Monitor) error
}

// Runner repeats scenarios with bounded concurrency.
type Runner struct {
	Monitor     *datatrack.Monitor
	Logger      *slog.Logger
	Scenarios   []Scenario
	Iterations  int // 0 runs until ctx is done
	Concurrency int
	Pause       time.Duration
}

// Run executes every scenario Iterations times. Scenario errors are logged
// and do not stop the run; only context cancellation ends it early.
func (r *Runner) Run(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := r.Concurrency
	if limit <= 0 {
		limit = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; r.Iterations == 0 || i < r.Iterations; i++ {
		for _, sc := range r.Scenarios {
			if ctx.Err() != nil {
				return g.Wait()
			}
			g.Go(func() error {
				if err := sc.Run(ctx, r.Monitor); err != nil {
					logger.Warn("scenario failed", "scenario", sc.Name(), "iteration", i, "error", err)
				}
				return nil
			})
		}
		if err := sleep(ctx, r.Pause); err != nil {
			break
		}
	}

	return g.Wait()
}

// Default returns the standard scenario set at the given pace, with the
// ledger scenario transferring between accounts of l. pace scales every
// simulated delay; 1 reproduces realistic timings.
func Default(l *Ledger, pace float64) []Scenario {
	return []Scenario{
		NewLedgerScenario(l, pace),
		&TrainingScenario{Epochs: 10, Pace: pace},
		&BatchScenario{Sizes: []int{100, 200, 300, 400, 500}, Pace: pace},
		&MemoryScenario{Batches: 5, BatchMB: 8},
	}
}

// ByName picks scenarios from set by name.
func ByName(set []Scenario, names ...string) ([]Scenario, error) {
	if len(names) == 0 {
		return set, nil
	}
	index := make(map[string]Scenario, len(set))
	for _, sc := range set {
		index[sc.Name()] = sc
	}
	out := make([]Scenario, 0, len(names))
	for _, n := range names {
		sc, ok := index[n]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
		out = append(out, sc)
	}
	return out, nil
}

func scaled(d time.Duration, pace float64) time.Duration {
	if pace <= 0 {
		return 0
	}
	return time.Duration(float64(d) * pace)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
