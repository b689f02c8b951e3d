// Package device offloads large flip requests to a compute device.
//
// The engine talks to hardware only through the Device interface: it
// compiles the kernel source once per request, dispatches it over a grid of
// threads that each own an independent xoshiro128++ state, and reads back a
// single 64-bit head count. The WebGPU backend is built with -tags gpu; the
// Emulator runs the same kernel semantics on CPU goroutines and is what
// tests use in place of real hardware.
package device

import "context"

// Info describes an opened device.
type Info struct {
	Name        string `json:"name" yaml:"name"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Backend     string `json:"backend" yaml:"backend"`
	AdapterType string `json:"adapter_type" yaml:"adapter_type"`
	Driver      string `json:"driver,omitempty" yaml:"driver,omitempty"`

	// ComputeUnits is zero when the backend does not report it.
	ComputeUnits                uint32 `json:"compute_units" yaml:"compute_units"`
	MaxWorkgroupSize            uint32 `json:"max_workgroup_size" yaml:"max_workgroup_size"`
	MaxWorkgroupsPerDimension   uint32 `json:"max_workgroups_per_dimension" yaml:"max_workgroups_per_dimension"`
	MaxStorageBufferBindingSize uint64 `json:"max_storage_buffer_binding_size" yaml:"max_storage_buffer_binding_size"`
}

// Program is a compiled kernel.
type Program interface {
	Release()
}

// DispatchArgs is everything one kernel launch needs.
type DispatchArgs struct {
	// Seeds holds SeedWordsPerThread words per thread. A backend may
	// overwrite it with the advanced state.
	Seeds []uint32

	Threads       uint32
	BitsPerThread uint32
	GroupsX       uint32
	GroupsY       uint32
	RowStride     uint32
	WorkgroupSize uint32
}

// Device is a compute backend able to run the flip kernel.
type Device interface {
	Info() Info
	Compile(ctx context.Context, source string) (Program, error)
	// Dispatch runs prog over the grid in args and returns the number of
	// heads across all threads.
	Dispatch(ctx context.Context, prog Program, args DispatchArgs) (uint64, error)
	Close() error
}

// Opener provisions a Device for one request.
type Opener func(ctx context.Context) (Device, error)
