// Package flip turns generator output into head counts.
//
// A request for n flips consumes n bits: every full lane batch is counted
// whole, the next batch supplies the remaining whole words, and the last
// partial word is masked down to the bits still owed. No bit is counted
// twice and none is dropped.
package flip

import (
	"context"
	"math/bits"
)

// Generator produces one 64-bit word per lane on every Advance call.
type Generator interface {
	Advance() []uint64
	Lanes() int
}

// Reducer counts heads in chunks so that long requests can be canceled and
// observed. The zero value reduces in a single chunk with no reporting.
type Reducer struct {
	// ChunkBits is the number of bits processed between cancellation checks.
	// Zero disables chunking.
	ChunkBits uint64

	// Progress, if set, is called after every chunk with the number of bits
	// consumed by that chunk.
	Progress func(bits uint64)
}

// Count returns the number of set bits among the next n bits produced by g.
func Count(n uint64, g Generator) uint64 {
	heads, _ := Reducer{}.Reduce(context.Background(), n, g)
	return heads
}

// Reduce returns the number of set bits among the next n bits produced by g.
// n == 0 returns immediately without advancing g. On cancellation the partial
// count is discarded and ctx.Err() is returned.
func (r Reducer) Reduce(ctx context.Context, n uint64, g Generator) (uint64, error) {
	if n == 0 {
		return 0, nil
	}

	stride := uint64(g.Lanes()) * 64
	full := n / stride
	rem := n % stride

	chunk := full
	if r.ChunkBits > 0 {
		chunk = max(r.ChunkBits/stride, 1)
	}

	var heads uint64
	for full > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		step := min(full, chunk)
		for i := uint64(0); i < step; i++ {
			for _, w := range g.Advance() {
				heads += uint64(bits.OnesCount64(w))
			}
		}
		full -= step
		r.report(step * stride)
	}

	if rem > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		words := g.Advance()
		whole := rem / 64
		for _, w := range words[:whole] {
			heads += uint64(bits.OnesCount64(w))
		}
		if tail := rem % 64; tail > 0 {
			heads += uint64(bits.OnesCount64(words[whole] & (1<<tail - 1)))
		}
		r.report(rem)
	}
	return heads, nil
}

func (r Reducer) report(n uint64) {
	if r.Progress != nil {
		r.Progress(n)
	}
}
