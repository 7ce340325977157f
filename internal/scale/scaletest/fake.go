// Package scaletest provides a programmable scale.Client for tests.
package scaletest

import (
	"context"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/co2scale/internal/scale"
)

// Fake is a scale.Client whose behaviour is set per operation. Unset
// functions succeed with zero values.
type Fake struct {
	ReadLoadFunc    func(ctx context.Context) (scale.Reading, error)
	SetBaselineFunc func(ctx context.Context, grams float64) (scale.Confirmation, error)
	TareFunc        func(ctx context.Context) (scale.Confirmation, error)

	reads atomic.Int64
	tares atomic.Int64

	mu        sync.Mutex
	baselines []float64
}

var _ scale.Client = (*Fake)(nil)

func (f *Fake) ReadLoad(ctx context.Context) (scale.Reading, error) {
	f.reads.Add(1)
	if f.ReadLoadFunc != nil {
		return f.ReadLoadFunc(ctx)
	}
	return scale.Reading{}, nil
}

func (f *Fake) SetBaseline(ctx context.Context, grams float64) (scale.Confirmation, error) {
	if err := scale.CheckFinite(grams); err != nil {
		return scale.Confirmation{}, err
	}

	f.mu.Lock()
	f.baselines = append(f.baselines, grams)
	f.mu.Unlock()

	if f.SetBaselineFunc != nil {
		return f.SetBaselineFunc(ctx, grams)
	}
	return scale.Confirmation{Info: "OK", Value: grams}, nil
}

func (f *Fake) Tare(ctx context.Context) (scale.Confirmation, error) {
	f.tares.Add(1)
	if f.TareFunc != nil {
		return f.TareFunc(ctx)
	}
	return scale.Confirmation{Info: "OK"}, nil
}

// Reads returns how many ReadLoad calls were made.
func (f *Fake) Reads() int {
	return int(f.reads.Load())
}

// Tares returns how many Tare calls were made.
func (f *Fake) Tares() int {
	return int(f.tares.Load())
}

// Baselines returns the values passed to SetBaseline that got past
// validation.
func (f *Fake) Baselines() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]float64, len(f.baselines))
	copy(out, f.baselines)
	return out
}
