// Package xoshiro implements xoshiro256++ advanced across several
// independent lanes in lockstep.
//
// A Vector with W lanes produces W fresh 64-bit words per Advance call.
// Each lane is an ordinary xoshiro256++ stream; running them side by side
// lets the compiler keep the four state arrays in registers and is what
// gives the generator its throughput. The lane count is fixed when the
// Vector is built, usually from DetectLanes.
package xoshiro

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
)

// MaxLanes is the widest supported lane configuration.
const MaxLanes = 8

// SeedSize returns the number of seed bytes consumed by a Vector with the
// given lane count: four 64-bit state words per lane.
func SeedSize(lanes int) int {
	return lanes * 32
}

// Vector is a lane-parallel xoshiro256++ generator. It is not safe for
// concurrent use; every worker owns its own Vector.
type Vector struct {
	s0, s1, s2, s3 [MaxLanes]uint64
	out            [MaxLanes]uint64
	lanes          int
}

// New seeds a Vector from exactly SeedSize(lanes) bytes.
//
// Seed layout: state word k of lane j is the little-endian word at byte
// offset (k*lanes+j)*8. A lane whose four words are all zero would never
// leave the zero state, so it is reseeded with SplitMix64 from its lane
// index.
func New(lanes int, seed []byte) (*Vector, error) {
	if err := checkLanes(lanes); err != nil {
		return nil, err
	}
	if len(seed) != SeedSize(lanes) {
		return nil, fmt.Errorf("%w: want %d bytes for %d lanes, got %d",
			ErrSeedLength, SeedSize(lanes), lanes, len(seed))
	}

	v := &Vector{lanes: lanes}
	for j := 0; j < lanes; j++ {
		v.s0[j] = seedWord(seed, 0, j, lanes)
		v.s1[j] = seedWord(seed, 1, j, lanes)
		v.s2[j] = seedWord(seed, 2, j, lanes)
		v.s3[j] = seedWord(seed, 3, j, lanes)
		if v.s0[j]|v.s1[j]|v.s2[j]|v.s3[j] == 0 {
			st := SplitMix(uint64(j))
			v.s0[j], v.s1[j], v.s2[j], v.s3[j] = st[0], st[1], st[2], st[3]
		}
	}
	return v, nil
}

// FromEntropy seeds a Vector from the operating system's randomness source.
func FromEntropy(lanes int) (*Vector, error) {
	return FromReader(lanes, rand.Reader)
}

// FromReader seeds a Vector with SeedSize(lanes) bytes read from r.
func FromReader(lanes int, r io.Reader) (*Vector, error) {
	if err := checkLanes(lanes); err != nil {
		return nil, err
	}
	seed := make([]byte, SeedSize(lanes))
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntropyUnavailable, err)
	}
	return New(lanes, seed)
}

// Lanes returns the number of words produced per Advance.
func (v *Vector) Lanes() int { return v.lanes }

// Advance steps every lane once and returns one output word per lane.
// The returned slice is reused by the next call.
func (v *Vector) Advance() []uint64 {
	n := v.lanes
	for j := 0; j < n; j++ {
		s0, s1, s2, s3 := v.s0[j], v.s1[j], v.s2[j], v.s3[j]
		v.out[j] = bits.RotateLeft64(s0+s3, 23) + s0

		t := s1 << 17
		s2 ^= s0
		s3 ^= s1
		s1 ^= s2
		s0 ^= s3
		s2 ^= t
		s3 = bits.RotateLeft64(s3, 45)

		v.s0[j], v.s1[j], v.s2[j], v.s3[j] = s0, s1, s2, s3
	}
	return v.out[:n]
}

// Lane returns a Scalar positioned at lane j's current state. Advancing the
// Scalar does not affect the Vector.
func (v *Vector) Lane(j int) *Scalar {
	return &Scalar{s: [4]uint64{v.s0[j], v.s1[j], v.s2[j], v.s3[j]}}
}

func seedWord(seed []byte, k, lane, lanes int) uint64 {
	off := (k*lanes + lane) * 8
	return binary.LittleEndian.Uint64(seed[off : off+8])
}

func checkLanes(lanes int) error {
	switch lanes {
	case 4, 8:
		return nil
	}
	return fmt.Errorf("%w: %d (want 4 or 8)", ErrLanes, lanes)
}
