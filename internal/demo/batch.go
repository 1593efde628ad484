package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack"
)

// BatchScenario processes batches of increasing size with variable timing.
type BatchScenario struct {
	Sizes []int
	Pace  float64
}

func (s *BatchScenario) Name() string { return "batch" }

func (s *BatchScenario) Run(ctx context.Context, mon *datatrack.Monitor) error {
	for _, size := range s.Sizes {
		err := mon.RunContext(ctx, fmt.Sprintf("batch_processing_%d", size), func(ctx context.Context) error {
			process := datatrack.Wrap(mon, "process_batch", func() ([]int, error) {
				delay := 100*time.Millisecond + time.Duration(rand.IntN(400))*time.Millisecond
				if err := sleep(ctx, scaled(delay, s.Pace)); err != nil {
					return nil, err
				}
				out := make([]int, size)
				for i := range out {
					out[i] = i * i
				}
				return out, nil
			}, datatrack.WithMemoryThreshold(50), datatrack.WithContext(ctx))

			result, err := process()
			if err != nil {
				return err
			}
			if len(result) != size {
				return fmt.Errorf("batch %d: got %d results", size, len(result))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// MemoryScenario allocates and releases large buffers so memory deltas and
// memory threshold alerts show up.
type MemoryScenario struct {
	Batches int
	BatchMB int
}

func (s *MemoryScenario) Name() string { return "memory" }

func (s *MemoryScenario) Run(ctx context.Context, mon *datatrack.Monitor) error {
	var retained [][]byte
	scope := mon.Scope("memory_batch", datatrack.WithMemoryThreshold(float64(s.BatchMB)/2))

	for i := 0; i < s.Batches; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		g := scope.EnterContext(ctx)
		buf := make([]byte, s.BatchMB<<20)
		for j := 0; j < len(buf); j += 4096 {
			buf[j] = byte(j)
		}
		retained = append(retained, buf)
		g.Exit(nil)
	}

	// Failures are already logged by LogMemoryUsage.
	_, _ = mon.LogMemoryUsage(float64(s.Batches*s.BatchMB) * 4)
	runtime.KeepAlive(retained)
	return nil
}
