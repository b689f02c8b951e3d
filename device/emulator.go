package device

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Emulator runs the flip kernel on CPU goroutines. It walks the same grid a
// real device would, derives thread ids the same way, and combines partial
// sums with the same 32-bit add-with-carry.
type Emulator struct {
	info    Info
	workers int
}

// EmulatorOption configures an Emulator.
type EmulatorOption func(*Emulator)

// EmulatorLimits overrides the reported dispatch limits.
func EmulatorLimits(maxWorkgroupSize, maxGroupsPerDim uint32) EmulatorOption {
	return func(e *Emulator) {
		e.info.MaxWorkgroupSize = maxWorkgroupSize
		e.info.MaxWorkgroupsPerDimension = maxGroupsPerDim
	}
}

// EmulatorWorkers sets how many goroutines execute workgroups.
func EmulatorWorkers(n int) EmulatorOption {
	return func(e *Emulator) { e.workers = max(n, 1) }
}

// NewEmulator returns an Emulator that reports one compute unit per CPU.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		info: Info{
			Name:                        "kernel emulator",
			Vendor:                      "headcount",
			Backend:                     "cpu",
			AdapterType:                 "cpu",
			ComputeUnits:                uint32(runtime.NumCPU()),
			MaxWorkgroupSize:            256,
			MaxWorkgroupsPerDimension:   defaultMaxWorkgroupsPerDimension,
			MaxStorageBufferBindingSize: 128 << 20,
		},
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emulator) Info() Info { return e.info }

type emulatedProgram struct {
	released atomic.Bool
}

func (p *emulatedProgram) Release() { p.released.Store(true) }

// Compile accepts any source that declares the compute entry point.
func (e *Emulator) Compile(_ context.Context, source string) (Program, error) {
	if !strings.Contains(source, "@compute") || !strings.Contains(source, "fn main") {
		return nil, fmt.Errorf("%w: no compute entry point", ErrCompile)
	}
	return &emulatedProgram{}, nil
}

func (e *Emulator) Dispatch(ctx context.Context, prog Program, args DispatchArgs) (uint64, error) {
	p, ok := prog.(*emulatedProgram)
	if !ok || p.released.Load() {
		return 0, fmt.Errorf("%w: program not compiled by this device", ErrDispatchFailed)
	}
	if args.WorkgroupSize == 0 || args.WorkgroupSize > e.info.MaxWorkgroupSize {
		return 0, fmt.Errorf("%w: workgroup size %d", ErrDispatchFailed, args.WorkgroupSize)
	}
	if args.GroupsX > e.info.MaxWorkgroupsPerDimension || args.GroupsY > e.info.MaxWorkgroupsPerDimension {
		return 0, fmt.Errorf("%w: grid %dx%d exceeds %d per dimension",
			ErrDispatchFailed, args.GroupsX, args.GroupsY, e.info.MaxWorkgroupsPerDimension)
	}
	if uint64(len(args.Seeds)) < uint64(args.Threads)*SeedWordsPerThread {
		return 0, fmt.Errorf("%w: seed buffer holds %d words, need %d",
			ErrBufferAllocationFailed, len(args.Seeds), uint64(args.Threads)*SeedWordsPerThread)
	}

	var lo, hi atomic.Uint32
	combine := func(wgLo, wgHi uint32) {
		prev := lo.Add(wgLo) - wgLo
		if prev+wgLo < prev {
			wgHi++
		}
		if wgHi > 0 {
			hi.Add(wgHi)
		}
	}

	groups := uint64(args.GroupsX) * uint64(args.GroupsY)
	workers := uint64(max(e.workers, 1))
	per := (groups + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := uint64(0); start < groups; start += per {
		end := min(start+per, groups)
		g.Go(func() error {
			for gi := start; gi < end; gi++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				combine(e.workgroup(args, gi))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %w", ErrReadbackFailed, err)
		}
		return 0, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	return uint64(hi.Load())<<32 | uint64(lo.Load()), nil
}

// workgroup runs the threads of workgroup gi and returns its (lo, hi) sum.
func (e *Emulator) workgroup(args DispatchArgs, gi uint64) (uint32, uint32) {
	wg := uint64(args.WorkgroupSize)
	gx := gi % uint64(args.GroupsX)
	gy := gi / uint64(args.GroupsX)

	var wgLo, wgHi uint32
	for lid := uint64(0); lid < wg; lid++ {
		tid := gx*wg + lid + gy*uint64(args.RowStride)
		if tid >= uint64(args.Threads) {
			continue
		}
		seeds := args.Seeds[tid*SeedWordsPerThread : (tid+1)*SeedWordsPerThread]
		st := loadKernelState(seeds)
		h := st.heads(args.BitsPerThread)
		st.store(seeds)

		sum := wgLo + h
		if sum < wgLo {
			wgHi++
		}
		wgLo = sum
	}
	return wgLo, wgHi
}

func (e *Emulator) Close() error { return nil }
