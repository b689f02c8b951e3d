package flip

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileAgreesWithReduce(t *testing.T) {
	for _, lanes := range []int{4, 8} {
		for _, n := range []uint64{0, 1, 63, 64, 65, 511, 512, 513, 100_003} {
			p, err := Reducer{}.Profile(context.Background(), n, newVector(t, lanes))
			require.NoError(t, err)

			assert.Equal(t, n, p.Bits)
			assert.Equalf(t, Count(n, newVector(t, lanes)), p.Heads, "lanes=%d n=%d", lanes, n)

			var sum uint64
			for _, c := range p.Positions {
				sum += c
			}
			assert.Equal(t, p.Heads, sum)
		}
	}
}

func TestProfileTailPositions(t *testing.T) {
	g := &countingGenerator{lanes: 4, words: []uint64{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}}
	p, err := Reducer{}.Profile(context.Background(), 256+64+5, g)
	require.NoError(t, err)

	// One full batch (4 words), one whole word and 5 masked bits.
	for i, c := range p.Positions {
		want := uint64(5)
		if i < 5 {
			want = 6
		}
		assert.Equalf(t, want, c, "bit %d", i)
	}
	assert.Equal(t, uint64(325), p.Heads)
}

func TestProfileBalanced(t *testing.T) {
	const n = 1 << 22
	p, err := Reducer{ChunkBits: 1 << 18}.Profile(context.Background(), n, newVector(t, 8))
	require.NoError(t, err)

	perPosition := float64(n) / 64 / 2
	for i, c := range p.Positions {
		assert.InDeltaf(t, perPosition, float64(c), 6*128, "bit %d", i)
	}
}

func TestProfileMerge(t *testing.T) {
	var total Profile
	a := Profile{Bits: 10, Heads: 3}
	a.Positions[0] = 3
	b := Profile{Bits: 5, Heads: 2}
	b.Positions[1] = 2
	total.Merge(a)
	total.Merge(b)

	assert.Equal(t, uint64(15), total.Bits)
	assert.Equal(t, uint64(5), total.Heads)
	assert.Equal(t, uint64(3), total.Positions[0])
	assert.Equal(t, uint64(2), total.Positions[1])
}
