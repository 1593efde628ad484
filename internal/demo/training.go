package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack"
)

// TrainingScenario simulates preprocessing followed by a training loop,
// all inside one "training_pipeline" block.
type TrainingScenario struct {
	Epochs  int
	Samples int
	Pace    float64
}

func (s *TrainingScenario) Name() string { return "training" }

func (s *TrainingScenario) Run(ctx context.Context, mon *datatrack.Monitor) (err error) {
	g := mon.Scope("training_pipeline").EnterContext(ctx)
	defer g.Done(&err)

	samples := s.Samples
	if samples <= 0 {
		samples = 10_000
	}
	preprocess := datatrack.Wrap(mon, "preprocess_data", func() (float64, error) {
		data := make([]float64, samples)
		var sum float64
		for i := range data {
			data[i] = rand.Float64()
			sum += data[i]
		}
		if err := sleep(ctx, scaled(100*time.Millisecond, s.Pace)); err != nil {
			return 0, err
		}
		return sum / float64(len(data)), nil
	}, datatrack.WithMemoryThreshold(200), datatrack.WithContext(ctx))

	avg, err := preprocess()
	if err != nil {
		return err
	}

	train := datatrack.Wrap(mon, "train_model", func() (float64, error) {
		best := 1.0
		for epoch := 0; epoch < s.Epochs; epoch++ {
			if err := sleep(ctx, scaled(200*time.Millisecond, s.Pace)); err != nil {
				return 0, err
			}
			loss := 1/float64(epoch+1) + rand.Float64()*0.1
			if loss < best {
				best = loss
			}
		}
		return best, nil
	}, datatrack.WithTimeThreshold(2*time.Second), datatrack.WithContext(ctx))

	loss, err := train()
	if err != nil {
		return fmt.Errorf("train after preprocessing (avg %.3f): %w", avg, err)
	}
	if loss <= 0 {
		return fmt.Errorf("invalid loss %.4f", loss)
	}
	return nil
}
