// Package headcount estimates the number of heads in a run of fair coin
// flips by counting set bits in a stream of fresh xoshiro256++ output.
//
// ThreadedWrapper always uses the CPU. GPUExecutor offloads large requests
// to a compute device and quietly falls back to the CPU when no device can
// run them. Both read their configuration from HEADCOUNT_* environment
// variables on first use; use the dispatch package directly for anything
// more specific.
package headcount

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openfluke/headcount/config"
	"github.com/openfluke/headcount/dispatch"
)

// ErrGenerationFailed is the only error a caller of the entry points sees.
var ErrGenerationFailed = errors.New("generation failed")

var (
	defaultOnce       sync.Once
	defaultDispatcher *dispatch.Dispatcher
	defaultErr        error
)

func dispatcher() (*dispatch.Dispatcher, error) {
	defaultOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			defaultErr = err
			return
		}
		defaultDispatcher, defaultErr = dispatch.New(cfg)
	})
	return defaultDispatcher, defaultErr
}

// ThreadedWrapper returns the number of heads among count flips computed on
// the CPU.
func ThreadedWrapper(count uint64) (uint64, error) {
	return ThreadedWrapperContext(context.Background(), count)
}

// ThreadedWrapperContext is ThreadedWrapper with cancellation.
func ThreadedWrapperContext(ctx context.Context, count uint64) (uint64, error) {
	d, err := dispatcher()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	heads, err := d.CountCPU(ctx, count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return heads, nil
}

// GPUExecutor returns the number of heads among count flips, using a
// compute device for large counts when one is available.
func GPUExecutor(count uint64) (uint64, error) {
	return GPUExecutorContext(context.Background(), count)
}

// GPUExecutorContext is GPUExecutor with cancellation.
func GPUExecutorContext(ctx context.Context, count uint64) (uint64, error) {
	d, err := dispatcher()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	heads, err := d.Count(ctx, count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return heads, nil
}
