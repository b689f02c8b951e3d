// Package executor spreads a flip request across the host's CPUs.
//
// Each worker owns a freshly seeded generator and reduces its own partition;
// partial counts come back over a channel and are summed. Requests below the
// small threshold run inline on the calling goroutine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openfluke/headcount/config"
	"github.com/openfluke/headcount/flip"
	"github.com/openfluke/headcount/logging"
	"github.com/openfluke/headcount/xoshiro"
)

// GeneratorFactory returns the generator for one partition. attempt is 0 for
// the first run and increases on retries.
type GeneratorFactory func(p Partition, attempt, lanes int) (flip.Generator, error)

// EntropyGenerators seeds every partition from the system randomness source.
func EntropyGenerators(_ Partition, _ int, lanes int) (flip.Generator, error) {
	return xoshiro.FromEntropy(lanes)
}

// Option configures a Threaded executor.
type Option func(*Threaded)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(t *Threaded) { t.log = l }
}

// WithGenerators overrides how partitions are seeded.
func WithGenerators(f GeneratorFactory) Option {
	return func(t *Threaded) { t.generators = f }
}

// Threaded runs the CPU path.
type Threaded struct {
	small      uint64
	workers    int
	lanes      int
	pin        bool
	cpus       []int
	chunkBits  uint64
	interval   time.Duration
	generators GeneratorFactory
	log        *logging.Logger
}

// New builds a Threaded executor from cfg.
func New(cfg config.Config, opts ...Option) (*Threaded, error) {
	lanes, err := xoshiro.ResolveLanes(cfg.Lanes)
	if err != nil {
		return nil, err
	}
	cpus := availableCPUs()
	workers := cfg.Workers
	if workers == 0 {
		workers = len(cpus)
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	workers = max(workers, 1)

	t := &Threaded{
		small:      cfg.SmallThreshold,
		workers:    workers,
		lanes:      lanes,
		pin:        cfg.PinWorkers,
		cpus:       cpus,
		chunkBits:  cfg.ChunkBits,
		interval:   cfg.ProgressInterval,
		generators: EntropyGenerators,
		log:        logging.Noop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithComponent("cpu")
	return t, nil
}

// Workers returns the number of partitions a large request is split into.
func (t *Threaded) Workers() int { return t.workers }

// Lanes returns the generator lane width.
func (t *Threaded) Lanes() int { return t.lanes }

// Run returns the number of heads among count fresh random bits.
func (t *Threaded) Run(ctx context.Context, count uint64) (uint64, error) {
	return fanOut(ctx, t, count,
		func(ctx context.Context, r flip.Reducer, n uint64, g flip.Generator) (uint64, error) {
			return r.Reduce(ctx, n, g)
		},
		func(a, b uint64) uint64 { return a + b },
	)
}

// Profile is Run with per-bit-position counts.
func (t *Threaded) Profile(ctx context.Context, count uint64) (flip.Profile, error) {
	return fanOut(ctx, t, count,
		func(ctx context.Context, r flip.Reducer, n uint64, g flip.Generator) (flip.Profile, error) {
			return r.Profile(ctx, n, g)
		},
		func(a, b flip.Profile) flip.Profile {
			a.Merge(b)
			return a
		},
	)
}

type reduceFunc[T any] func(ctx context.Context, r flip.Reducer, n uint64, g flip.Generator) (T, error)

type outcome[T any] struct {
	part  Partition
	value T
	err   error
}

// errWorkerPanic marks a partition whose worker died; it is retried inline.
type errWorkerPanic struct{ v any }

func (e errWorkerPanic) Error() string { return fmt.Sprintf("worker panic: %v", e.v) }

func fanOut[T any](ctx context.Context, t *Threaded, count uint64, work reduceFunc[T], merge func(T, T) T) (T, error) {
	var zero T
	if count == 0 {
		return zero, nil
	}

	workers := t.workers
	if count < t.small {
		workers = 1
	}
	parts := Plan(count, workers)
	prog := newProgress(ctx, t.log, count, t.interval)
	t.log.DebugContext(ctx, "partition plan",
		"count", count,
		"workers", workers,
		"lanes", t.lanes,
		"base", parts[0].Size,
		"last", parts[len(parts)-1].Size,
	)

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan outcome[T], len(parts)-1)
	for _, p := range parts[:len(parts)-1] {
		g.Go(func() error {
			if t.pin && len(t.cpus) > 0 {
				cpu := t.cpus[p.Worker%len(t.cpus)]
				if err := pinThread(cpu); err != nil {
					t.log.WarnContext(gctx, "cpu pinning failed", "worker", p.Worker, "cpu", cpu, "error", err)
				}
			}
			v, err := runPartition(gctx, t, p, 0, work, prog)
			var wp errWorkerPanic
			if err != nil && !errors.As(err, &wp) {
				return err
			}
			results <- outcome[T]{part: p, value: v, err: err}
			return nil
		})
	}

	last := parts[len(parts)-1]
	total, ownErr := runPartition(gctx, t, last, 0, work, prog)
	var failed []Partition
	if ownErr != nil {
		var wp errWorkerPanic
		if !errors.As(ownErr, &wp) {
			// A worker failure cancels gctx, so ownErr may only be its echo.
			if err := g.Wait(); err != nil {
				return zero, wrapRunErr(err)
			}
			return zero, wrapRunErr(ownErr)
		}
		total = zero
		failed = append(failed, last)
	}

	if err := g.Wait(); err != nil {
		return zero, wrapRunErr(err)
	}
	close(results)
	for o := range results {
		if o.err != nil {
			t.log.WarnContext(ctx, "worker failed, retrying partition inline",
				"worker", o.part.Worker, "size", o.part.Size, "error", o.err)
			failed = append(failed, o.part)
			continue
		}
		total = merge(total, o.value)
	}

	for _, p := range failed {
		v, err := runPartition(ctx, t, p, 1, work, prog)
		if err != nil {
			return zero, wrapRunErr(err)
		}
		total = merge(total, v)
	}
	return total, nil
}

// runPartition reduces one partition with a fresh generator. A panic inside
// the worker is converted into errWorkerPanic. Progress reported by a failed
// attempt is withdrawn so a retry does not count it twice.
func runPartition[T any](ctx context.Context, t *Threaded, p Partition, attempt int, work reduceFunc[T], prog *progress) (v T, err error) {
	var reported uint64
	defer func() {
		if r := recover(); r != nil {
			err = errWorkerPanic{v: r}
		}
		if err != nil && reported > 0 {
			prog.retract(reported)
		}
	}()

	if p.Size == 0 {
		return v, nil
	}
	gen, err := t.generators(p, attempt, t.lanes)
	if err != nil {
		return v, err
	}
	r := flip.Reducer{
		ChunkBits: t.chunkBits,
		Progress: func(bits uint64) {
			reported += bits
			prog.add(bits)
		},
	}
	return work(ctx, r, p.Size, gen)
}

func wrapRunErr(err error) error {
	var wp errWorkerPanic
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	case errors.As(err, &wp):
		return fmt.Errorf("%w: %w", ErrThreadSpawnFailed, err)
	}
	return err
}
