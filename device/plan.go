package device

import (
	"fmt"
	"math"
)

// DefaultComputeUnits is used when neither the configuration nor the
// backend provides a compute unit count.
const DefaultComputeUnits = 32

// defaultMaxWorkgroupsPerDimension is the WebGPU baseline limit.
const defaultMaxWorkgroupsPerDimension = 65535

// Layout holds the inputs of the thread count formula.
type Layout struct {
	ComputeUnits    uint32
	Occupancy       uint32
	WorkgroupSize   uint32
	MaxThreads      uint64
	MaxGroupsPerDim uint32
}

// Plan is how a request is laid out on the device.
type Plan struct {
	Threads       uint64
	BitsPerThread uint32
	// Remainder is count - Threads*BitsPerThread, left for the CPU.
	Remainder     uint64
	GroupsX       uint32
	GroupsY       uint32
	RowStride     uint32
	WorkgroupSize uint32
}

// Covered returns the number of bits the device generates.
func (p Plan) Covered() uint64 { return p.Threads * uint64(p.BitsPerThread) }

// Args builds the dispatch arguments for seeds.
func (p Plan) Args(seeds []uint32) DispatchArgs {
	return DispatchArgs{
		Seeds:         seeds,
		Threads:       uint32(p.Threads),
		BitsPerThread: p.BitsPerThread,
		GroupsX:       p.GroupsX,
		GroupsY:       p.GroupsY,
		RowStride:     p.RowStride,
		WorkgroupSize: p.WorkgroupSize,
	}
}

// PlanThreads picks the device thread count for count flips.
//
// T starts at ComputeUnits*Occupancy. If count/T does not fit the 32-bit
// per-thread counter, T is multiplied by (count/T)/MaxUint32+1. T is then
// rounded up to fill whole workgroups and, when the workgroup count exceeds
// the per-dimension limit, a whole 2-D grid.
func PlanThreads(count uint64, l Layout) (Plan, error) {
	if l.ComputeUnits == 0 || l.Occupancy == 0 || l.WorkgroupSize == 0 {
		return Plan{}, fmt.Errorf("%w: empty layout %+v", ErrTooManyThreads, l)
	}
	maxDim := uint64(l.MaxGroupsPerDim)
	if maxDim == 0 {
		maxDim = defaultMaxWorkgroupsPerDimension
	}
	wg := uint64(l.WorkgroupSize)

	threads := uint64(l.ComputeUnits) * uint64(l.Occupancy)
	if per := count / threads; per > math.MaxUint32 {
		threads *= per/math.MaxUint32 + 1
	}

	groups := (threads + wg - 1) / wg
	x, y := groups, uint64(1)
	if groups > maxDim {
		y = (groups + maxDim - 1) / maxDim
		x = (groups + y - 1) / y
	}
	threads = x * y * wg

	limit := min(l.MaxThreads, math.MaxUint32)
	if l.MaxThreads == 0 {
		limit = math.MaxUint32
	}
	if threads > limit || y > maxDim {
		return Plan{}, fmt.Errorf("%w: %d threads for %d flips, limit %d",
			ErrTooManyThreads, threads, count, limit)
	}

	per := count / threads
	return Plan{
		Threads:       threads,
		BitsPerThread: uint32(per),
		Remainder:     count - threads*per,
		GroupsX:       uint32(x),
		GroupsY:       uint32(y),
		RowStride:     uint32(x * wg),
		WorkgroupSize: l.WorkgroupSize,
	}, nil
}

// chooseWorkgroup returns the largest candidate size that fits both the
// requested size and the device limit.
func chooseWorkgroup(want, limit uint32) uint32 {
	if limit == 0 || want <= limit {
		return want
	}
	for _, c := range []uint32{256, 128, 64, 32, 16, 8, 4, 1} {
		if c <= want && c <= limit {
			return c
		}
	}
	return 1
}
