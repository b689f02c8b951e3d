package device

import (
	"context"
	"fmt"
	"time"

	"github.com/openfluke/headcount/config"
	"github.com/openfluke/headcount/logging"
)

// CPU computes the bits a device dispatch does not cover.
type CPU interface {
	Run(ctx context.Context, count uint64) (uint64, error)
}

// SeedSource returns seed words for threads device threads.
type SeedSource func(threads uint64) ([]uint32, error)

// Option configures an Executor.
type Option func(*Executor)

// WithOpener replaces the backend selected by the configuration.
func WithOpener(open Opener) Option {
	return func(e *Executor) { e.open = open }
}

// WithSeeds replaces the system randomness source for device seeds.
func WithSeeds(src SeedSource) Option {
	return func(e *Executor) { e.seeds = src }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// Executor runs large requests on a device and the leftover bits on the CPU.
type Executor struct {
	cfg   config.Config
	cpu   CPU
	open  Opener
	seeds SeedSource
	log   *logging.Logger
}

// NewExecutor builds an Executor that hands everything the device does not
// cover to cpu.
func NewExecutor(cfg config.Config, cpu CPU, opts ...Option) *Executor {
	e := &Executor{
		cfg:   cfg,
		cpu:   cpu,
		open:  Open(cfg.Device),
		seeds: NewSeeds,
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent("device")
	return e
}

// Run returns the number of heads among count fresh random bits. Requests
// below the large threshold go straight to the CPU.
func (e *Executor) Run(ctx context.Context, count uint64) (uint64, error) {
	if count < e.cfg.LargeThreshold {
		return e.cpu.Run(ctx, count)
	}
	heads, rem, err := e.Offload(ctx, count)
	if err != nil {
		return 0, err
	}
	tail, err := e.cpu.Run(ctx, rem)
	if err != nil {
		return 0, err
	}
	return heads + tail, nil
}

// Offload runs as much of count as the device grid covers and returns the
// heads it produced together with the number of bits left over.
func (e *Executor) Offload(ctx context.Context, count uint64) (heads, remainder uint64, err error) {
	if count == 0 {
		return 0, 0, nil
	}

	dev, err := e.open(ctx)
	if err != nil {
		return 0, 0, classify(ErrNoPlatformOrDevice, err)
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			e.log.WarnContext(ctx, "device close failed", "error", cerr)
		}
	}()

	info := dev.Info()
	cu := e.cfg.Device.ComputeUnits
	if cu == 0 {
		cu = info.ComputeUnits
	}
	if cu == 0 {
		cu = DefaultComputeUnits
	}
	wg := chooseWorkgroup(e.cfg.Device.WorkgroupSize, info.MaxWorkgroupSize)

	plan, err := PlanThreads(count, Layout{
		ComputeUnits:    cu,
		Occupancy:       e.cfg.Device.Occupancy,
		WorkgroupSize:   wg,
		MaxThreads:      e.cfg.Device.MaxThreads,
		MaxGroupsPerDim: info.MaxWorkgroupsPerDimension,
	})
	if err != nil {
		return 0, 0, err
	}
	e.log.DebugContext(ctx, "device plan",
		"device", info.Name,
		"count", count,
		"threads", plan.Threads,
		"bits_per_thread", plan.BitsPerThread,
		"grid_x", plan.GroupsX,
		"grid_y", plan.GroupsY,
		"remainder", plan.Remainder,
	)
	if plan.BitsPerThread == 0 {
		return 0, count, nil
	}

	need := plan.Threads * SeedBytesPerThread
	if limit := info.MaxStorageBufferBindingSize; limit > 0 && need > limit {
		return 0, 0, fmt.Errorf("%w: seed buffer of %d bytes exceeds binding limit %d",
			ErrBufferAllocationFailed, need, limit)
	}

	prog, err := dev.Compile(ctx, KernelSource(wg))
	if err != nil {
		return 0, 0, classify(ErrCompile, err)
	}
	defer prog.Release()

	seeds, err := e.seeds(plan.Threads)
	if err != nil {
		return 0, 0, err
	}

	dctx := ctx
	if d := e.cfg.Device.ReadbackTimeout; d > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	start := time.Now()
	heads, err = dev.Dispatch(dctx, prog, plan.Args(seeds))
	if err != nil {
		return 0, 0, classify(ErrDispatchFailed, err)
	}
	if heads > plan.Covered() {
		return 0, 0, fmt.Errorf("%w: %d heads reported for %d bits",
			ErrReadbackFailed, heads, plan.Covered())
	}
	e.log.DebugContext(ctx, "device dispatch completed",
		"heads", heads,
		"covered", plan.Covered(),
		"elapsed", time.Since(start),
	)
	return heads, plan.Remainder, nil
}
