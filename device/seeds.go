package device

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/openfluke/headcount/xoshiro"
)

const (
	// KernelLanes is the number of xoshiro128++ lanes per device thread.
	KernelLanes = 4

	// SeedWordsPerThread is four state vectors of KernelLanes words.
	SeedWordsPerThread = 4 * KernelLanes

	// SeedBytesPerThread is the seed buffer footprint of one thread.
	SeedBytesPerThread = SeedWordsPerThread * 4
)

// NewSeeds returns fresh device seeds for threads threads, read from the
// system randomness source.
func NewSeeds(threads uint64) ([]uint32, error) {
	return SeedsFromReader(rand.Reader, threads)
}

// SeedsFromReader decodes little-endian seed words read from r.
//
// Word k of lane j of thread t lives at index t*16 + k*4 + j, matching the
// vec4<u32> layout the kernel reads. A lane whose four words are all zero
// is reseeded with SplitMix64 from its global lane index.
func SeedsFromReader(r io.Reader, threads uint64) ([]uint32, error) {
	raw := make([]byte, threads*SeedBytesPerThread)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: %w", xoshiro.ErrEntropyUnavailable, err)
	}
	seeds := make([]uint32, threads*SeedWordsPerThread)
	for i := range seeds {
		seeds[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	for t := uint64(0); t < threads; t++ {
		base := t * SeedWordsPerThread
		for j := uint64(0); j < KernelLanes; j++ {
			if seeds[base+j]|seeds[base+4+j]|seeds[base+8+j]|seeds[base+12+j] != 0 {
				continue
			}
			st := xoshiro.SplitMix(t*KernelLanes + j)
			seeds[base+j] = uint32(st[0])
			seeds[base+4+j] = uint32(st[0] >> 32)
			seeds[base+8+j] = uint32(st[1])
			seeds[base+12+j] = uint32(st[1] >> 32)
		}
	}
	return seeds, nil
}
