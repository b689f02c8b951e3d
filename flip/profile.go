package flip

import (
	"context"

	"github.com/clausecker/pospop"
)

// profileBlockWords is the buffer size handed to the positional counter.
// Multiples of 64 bytes around 8 KiB keep pospop's kernels on their fast path.
const profileBlockWords = 1024

// Profile breaks a head count down by bit position. Positions[i] is the
// number of heads that landed on bit i of a generated word; the positions
// always sum to Heads. A healthy generator keeps every position near
// Heads/64 for large requests; a stuck lane or a broken seed shows up as a
// lopsided position.
type Profile struct {
	Bits      uint64
	Heads     uint64
	Positions [64]uint64
}

// Merge adds o into p.
func (p *Profile) Merge(o Profile) {
	p.Bits += o.Bits
	p.Heads += o.Heads
	for i := range p.Positions {
		p.Positions[i] += o.Positions[i]
	}
}

// Profile consumes exactly the same bits from g as Reduce would for the same
// n, and returns them counted per bit position.
func (r Reducer) Profile(ctx context.Context, n uint64, g Generator) (Profile, error) {
	p := Profile{Bits: n}
	if n == 0 {
		return p, nil
	}

	var (
		counts [64]int
		buf    = make([]uint64, 0, profileBlockWords+g.Lanes())
	)
	flush := func() {
		pospop.Count64(&counts, buf)
		buf = buf[:0]
		for i, c := range counts {
			p.Positions[i] += uint64(c)
			p.Heads += uint64(c)
			counts[i] = 0
		}
	}

	stride := uint64(g.Lanes()) * 64
	full := n / stride
	rem := n % stride

	chunk := full
	if r.ChunkBits > 0 {
		chunk = max(r.ChunkBits/stride, 1)
	}

	for full > 0 {
		if err := ctx.Err(); err != nil {
			return Profile{}, err
		}
		step := min(full, chunk)
		for i := uint64(0); i < step; i++ {
			buf = append(buf, g.Advance()...)
			if len(buf) >= profileBlockWords {
				flush()
			}
		}
		full -= step
		r.report(step * stride)
	}

	if rem > 0 {
		if err := ctx.Err(); err != nil {
			return Profile{}, err
		}
		words := g.Advance()
		whole := rem / 64
		buf = append(buf, words[:whole]...)
		if tail := rem % 64; tail > 0 {
			buf = append(buf, words[whole]&(1<<tail-1))
		}
		r.report(rem)
	}
	flush()
	return p, nil
}
