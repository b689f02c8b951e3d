package flip

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/headcount/xoshiro"
)

func fixedSeed(lanes int) []byte {
	seed := make([]byte, xoshiro.SeedSize(lanes))
	for i := range seed {
		seed[i] = byte(i*31 + 17)
	}
	return seed
}

func newVector(t testing.TB, lanes int) *xoshiro.Vector {
	t.Helper()
	v, err := xoshiro.New(lanes, fixedSeed(lanes))
	require.NoError(t, err)
	return v
}

// referenceHeads walks the same stream one bit at a time using independent
// per-lane scalar generators.
func referenceHeads(t testing.TB, lanes int, n uint64) uint64 {
	t.Helper()
	v := newVector(t, lanes)
	scalars := make([]*xoshiro.Scalar, lanes)
	for j := range scalars {
		scalars[j] = v.Lane(j)
	}

	var heads, taken uint64
	for taken < n {
		for j := 0; j < lanes && taken < n; j++ {
			w := scalars[j].Next()
			for b := 0; b < 64 && taken < n; b++ {
				heads += (w >> b) & 1
				taken++
			}
		}
	}
	return heads
}

type countingGenerator struct {
	lanes int
	calls int
	words []uint64
}

func (g *countingGenerator) Advance() []uint64 {
	g.calls++
	return g.words
}

func (g *countingGenerator) Lanes() int { return g.lanes }

func TestReduceMatchesBitByBitReference(t *testing.T) {
	sizes := []uint64{0, 1, 63, 64, 65, 255, 256, 257, 511, 512, 513, 1000, 4097}
	for _, lanes := range []int{4, 8} {
		for _, n := range sizes {
			got := Count(n, newVector(t, lanes))
			want := referenceHeads(t, lanes, n)
			assert.Equalf(t, want, got, "lanes=%d n=%d", lanes, n)
		}
	}
}

func TestReduceZeroDoesNotAdvance(t *testing.T) {
	g := &countingGenerator{lanes: 4, words: []uint64{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}}
	assert.Equal(t, uint64(0), Count(0, g))
	assert.Equal(t, 0, g.calls)
}

func TestReduceMasksTailBits(t *testing.T) {
	ones := []uint64{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}
	for _, n := range []uint64{1, 63, 64, 65, 200, 255, 256, 257, 1023} {
		g := &countingGenerator{lanes: 4, words: ones}
		assert.Equalf(t, n, Count(n, g), "n=%d", n)

		wantCalls := int(n / 256)
		if n%256 != 0 {
			wantCalls++
		}
		assert.Equalf(t, wantCalls, g.calls, "n=%d", n)
	}
}

func TestReduceWithinRange(t *testing.T) {
	for _, n := range []uint64{1, 7, 100, 12345} {
		g, err := xoshiro.FromEntropy(4)
		require.NoError(t, err)
		got := Count(n, g)
		assert.LessOrEqual(t, got, n)
	}
}

func TestReduceProgressCoversRequest(t *testing.T) {
	var seen uint64
	r := Reducer{ChunkBits: 1 << 12, Progress: func(b uint64) { seen += b }}
	n := uint64(1<<16 + 77)

	got, err := r.Reduce(context.Background(), n, newVector(t, 8))
	require.NoError(t, err)
	assert.Equal(t, n, seen)
	assert.Equal(t, Count(n, newVector(t, 8)), got)
}

func TestReduceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Reducer{ChunkBits: 1 << 10}.Reduce(ctx, 1<<20, newVector(t, 4))
	require.ErrorIs(t, err, context.Canceled)
}

func TestReduceStatistical(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test skipped in short mode")
	}
	const n = 10_000_000
	bound := 6 * math.Sqrt(n) / 2
	for trial := 0; trial < 3; trial++ {
		g, err := xoshiro.FromEntropy(8)
		require.NoError(t, err)
		got := Count(n, g)
		assert.Lessf(t, math.Abs(float64(got)-n/2), bound, "trial %d: heads=%d", trial, got)
	}
}

func BenchmarkReduce(b *testing.B) {
	const n = 1 << 20
	for _, lanes := range []int{4, 8} {
		v := newVector(b, lanes)
		b.Run(map[int]string{4: "x4", 8: "x8"}[lanes], func(b *testing.B) {
			b.SetBytes(n / 8)
			for i := 0; i < b.N; i++ {
				Count(n, v)
			}
		})
	}
}
