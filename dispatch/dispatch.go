// Package dispatch routes a flip request to the CPU or the device.
//
// Requests below the large threshold run on the threaded executor.
// Larger ones try the device first; any device failure is logged and the
// whole request is rerun on the CPU. Every call is independent.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfluke/headcount/config"
	"github.com/openfluke/headcount/device"
	"github.com/openfluke/headcount/executor"
	"github.com/openfluke/headcount/flip"
	"github.com/openfluke/headcount/logging"
)

// Path names where a request ran.
type Path string

const (
	PathCPU    Path = "cpu"
	PathDevice Path = "device"
)

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	log     *logging.Logger
	cpuOpts []executor.Option
	devOpts []device.Option
}

// WithLogger sets the logger shared by both paths.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithExecutorOptions passes options to the threaded executor.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(o *options) { o.cpuOpts = append(o.cpuOpts, opts...) }
}

// WithDeviceOptions passes options to the device executor.
func WithDeviceOptions(opts ...device.Option) Option {
	return func(o *options) { o.devOpts = append(o.devOpts, opts...) }
}

// Dispatcher picks the execution path for each request.
type Dispatcher struct {
	cfg config.Config
	cpu *executor.Threaded
	dev *device.Executor
	log *logging.Logger
}

// New validates cfg and builds both executors.
func New(cfg config.Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: logging.Noop()}
	for _, opt := range opts {
		opt(&o)
	}

	cpu, err := executor.New(cfg, append([]executor.Option{executor.WithLogger(o.log)}, o.cpuOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("cpu executor: %w", err)
	}
	dev := device.NewExecutor(cfg, cpu, append([]device.Option{device.WithLogger(o.log)}, o.devOpts...)...)

	return &Dispatcher{
		cfg: cfg,
		cpu: cpu,
		dev: dev,
		log: o.log.WithComponent("dispatch"),
	}, nil
}

// Config returns the configuration the Dispatcher was built with.
func (d *Dispatcher) Config() config.Config { return d.cfg }

// CPU returns the threaded executor.
func (d *Dispatcher) CPU() *executor.Threaded { return d.cpu }

// Route reports the path Count tries first for count.
func (d *Dispatcher) Route(count uint64) Path {
	if count < d.cfg.LargeThreshold {
		return PathCPU
	}
	return PathDevice
}

// Count returns the number of heads among count fresh random bits.
func (d *Dispatcher) Count(ctx context.Context, count uint64) (uint64, error) {
	if d.Route(count) == PathCPU {
		return d.CountCPU(ctx, count)
	}
	return d.fallback(ctx, count, d.dev.Run)
}

// CountCPU runs count on the threaded executor regardless of size.
func (d *Dispatcher) CountCPU(ctx context.Context, count uint64) (uint64, error) {
	start := time.Now()
	heads, err := d.cpu.Run(ctx, count)
	d.log.LogRun(ctx, string(PathCPU), count, heads, time.Since(start), err)
	return heads, err
}

// CountDevice tries the device for any count, falling back to the CPU.
func (d *Dispatcher) CountDevice(ctx context.Context, count uint64) (uint64, error) {
	return d.fallback(ctx, count, func(ctx context.Context, count uint64) (uint64, error) {
		heads, rem, err := d.dev.Offload(ctx, count)
		if err != nil {
			return 0, err
		}
		tail, err := d.cpu.Run(ctx, rem)
		if err != nil {
			return 0, err
		}
		return heads + tail, nil
	})
}

// Profile runs count on the threaded executor and breaks the heads down by
// bit position.
func (d *Dispatcher) Profile(ctx context.Context, count uint64) (flip.Profile, error) {
	return d.cpu.Profile(ctx, count)
}

func (d *Dispatcher) fallback(ctx context.Context, count uint64, run func(context.Context, uint64) (uint64, error)) (uint64, error) {
	start := time.Now()
	heads, err := run(ctx, count)
	if err == nil {
		d.log.LogRun(ctx, string(PathDevice), count, heads, time.Since(start), nil)
		return heads, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return 0, fmt.Errorf("%w: %w", executor.ErrCanceled, cerr)
	}
	if errors.Is(err, executor.ErrCanceled) {
		return 0, err
	}
	d.log.LogFallback(ctx, count, err)
	return d.CountCPU(ctx, count)
}
