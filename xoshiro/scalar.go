package xoshiro

import "math/bits"

// Scalar is a single-stream xoshiro256++ generator. Every lane of a Vector
// evolves exactly like one Scalar.
type Scalar struct {
	s [4]uint64
}

// NewScalar builds a generator from explicit state words. An all-zero state
// is replaced with the SplitMix64 expansion of zero.
func NewScalar(s0, s1, s2, s3 uint64) *Scalar {
	g := &Scalar{s: [4]uint64{s0, s1, s2, s3}}
	if s0|s1|s2|s3 == 0 {
		g.s = SplitMix(0)
	}
	return g
}

// State returns the current state words.
func (g *Scalar) State() [4]uint64 { return g.s }

// Next returns the next 64-bit output.
func (g *Scalar) Next() uint64 {
	s := &g.s
	result := bits.RotateLeft64(s[0]+s[3], 23) + s[0]
	t := s[1] << 17

	s[2] ^= s[0]
	s[3] ^= s[1]
	s[1] ^= s[2]
	s[0] ^= s[3]

	s[2] ^= t
	s[3] = bits.RotateLeft64(s[3], 45)
	return result
}

// SplitMix expands x into four state words with SplitMix64. It is the
// fallback for seeds that would leave a generator stuck at zero.
func SplitMix(x uint64) [4]uint64 {
	var out [4]uint64
	for i := range out {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		out[i] = z ^ (z >> 31)
	}
	return out
}
