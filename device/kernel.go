package device

import (
	"fmt"
	"math/bits"
)

// KernelSource renders the WGSL flip kernel for the given workgroup size.
//
// Bindings:
//
//	0  uniform Params { bits_per_thread, threads, row_stride, pad }
//	1  storage array<vec4<u32>>, four state vectors per thread
//	2  storage array<atomic<u32>, 2>, the 64-bit total as (lo, hi)
func KernelSource(workgroupSize uint32) string {
	return fmt.Sprintf(kernelTemplate, workgroupSize)
}

const kernelTemplate = `
struct Params {
	bits_per_thread: u32,
	threads: u32,
	row_stride: u32,
	pad: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read_write> seeds: array<vec4<u32>>;
@group(0) @binding(2) var<storage, read_write> total: array<atomic<u32>, 2>;

var<workgroup> wg_lo: atomic<u32>;
var<workgroup> wg_hi: atomic<u32>;

fn rotl(x: vec4<u32>, k: u32) -> vec4<u32> {
	return (x << vec4<u32>(k)) | (x >> vec4<u32>(32u - k));
}

fn popcount4(v: vec4<u32>) -> u32 {
	let c = countOneBits(v);
	return c.x + c.y + c.z + c.w;
}

@compute @workgroup_size(%d)
fn main(
	@builtin(global_invocation_id) gid: vec3<u32>,
	@builtin(local_invocation_index) lid: u32
) {
	if (lid == 0u) {
		atomicStore(&wg_lo, 0u);
		atomicStore(&wg_hi, 0u);
	}
	workgroupBarrier();

	let tid = gid.x + gid.y * params.row_stride;
	var heads = 0u;
	if (tid < params.threads) {
		let base = tid * 4u;
		var s0 = seeds[base];
		var s1 = seeds[base + 1u];
		var s2 = seeds[base + 2u];
		var s3 = seeds[base + 3u];

		let steps = params.bits_per_thread >> 7u;
		let rem = params.bits_per_thread & 127u;
		for (var i = 0u; i < steps + select(0u, 1u, rem > 0u); i++) {
			let r = rotl(s0 + s3, 7u) + s0;
			let t = s1 << vec4<u32>(9u);
			s2 ^= s0;
			s3 ^= s1;
			s1 ^= s2;
			s0 ^= s3;
			s2 ^= t;
			s3 = rotl(s3, 11u);

			if (i < steps) {
				heads += popcount4(r);
			} else {
				var left = rem;
				for (var c = 0u; c < 4u; c++) {
					if (left >= 32u) {
						heads += countOneBits(r[c]);
						left -= 32u;
					} else if (left > 0u) {
						heads += countOneBits(r[c] & ((1u << left) - 1u));
						left = 0u;
					}
				}
			}
		}

		seeds[base] = s0;
		seeds[base + 1u] = s1;
		seeds[base + 2u] = s2;
		seeds[base + 3u] = s3;
	}

	let old = atomicAdd(&wg_lo, heads);
	if (old + heads < old) {
		atomicAdd(&wg_hi, 1u);
	}
	workgroupBarrier();

	if (lid == 0u) {
		let lo = atomicLoad(&wg_lo);
		var carry = atomicLoad(&wg_hi);
		let prev = atomicAdd(&total[0], lo);
		if (prev + lo < prev) {
			carry += 1u;
		}
		if (carry > 0u) {
			atomicAdd(&total[1], carry);
		}
	}
}
`

// kernelState mirrors one device thread: four xoshiro128++ lanes stored
// as state vectors, word k of lane j at s[k][j].
type kernelState [4][KernelLanes]uint32

func loadKernelState(seeds []uint32) kernelState {
	var s kernelState
	for k := range s {
		copy(s[k][:], seeds[k*KernelLanes:(k+1)*KernelLanes])
	}
	return s
}

func (s *kernelState) store(seeds []uint32) {
	for k := range s {
		copy(seeds[k*KernelLanes:(k+1)*KernelLanes], s[k][:])
	}
}

// next advances every lane by one xoshiro128++ step.
func (s *kernelState) next() [KernelLanes]uint32 {
	var r [KernelLanes]uint32
	for j := 0; j < KernelLanes; j++ {
		r[j] = bits.RotateLeft32(s[0][j]+s[3][j], 7) + s[0][j]
		t := s[1][j] << 9
		s[2][j] ^= s[0][j]
		s[3][j] ^= s[1][j]
		s[1][j] ^= s[2][j]
		s[0][j] ^= s[3][j]
		s[2][j] ^= t
		s[3][j] = bits.RotateLeft32(s[3][j], 11)
	}
	return r
}

// heads runs one thread's share of the kernel: full 128-bit steps, then
// one more step masked down to the remaining bits.
func (s *kernelState) heads(n uint32) uint32 {
	steps := n >> 7
	rem := n & 127
	var heads uint32
	for i := uint32(0); i < steps; i++ {
		for _, w := range s.next() {
			heads += uint32(bits.OnesCount32(w))
		}
	}
	if rem > 0 {
		left := rem
		for _, w := range s.next() {
			switch {
			case left >= 32:
				heads += uint32(bits.OnesCount32(w))
				left -= 32
			case left > 0:
				heads += uint32(bits.OnesCount32(w & (1<<left - 1)))
				left = 0
			}
		}
	}
	return heads
}
