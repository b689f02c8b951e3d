//go:build gpu

package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// WebGPU runs the kernel through a native WebGPU adapter.
type WebGPU struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     Info
}

// OpenWebGPU provisions a WebGPU device. When prefer is non-empty the first
// adapter whose name or vendor contains it wins; otherwise a high
// performance adapter is requested, then a low power one, then the default.
func OpenWebGPU(_ context.Context, prefer string) (Device, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("%w: wgpu.CreateInstance returned nil", ErrNoPlatformOrDevice)
	}

	adapter, err := selectAdapter(inst, prefer)
	if err != nil {
		inst.Release()
		return nil, fmt.Errorf("%w: %w", ErrNoPlatformOrDevice, err)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		inst.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrContextCreationFailed, err)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		inst.Release()
		return nil, fmt.Errorf("%w: device has no queue", ErrContextCreationFailed)
	}

	info := adapter.GetInfo()
	limits := adapter.GetLimits()
	return &WebGPU{
		instance: inst,
		adapter:  adapter,
		device:   dev,
		queue:    queue,
		info: Info{
			Name:                        strings.TrimSpace(info.Name),
			Vendor:                      strings.TrimSpace(info.VendorName),
			Backend:                     info.BackendType.String(),
			AdapterType:                 info.AdapterType.String(),
			Driver:                      strings.TrimSpace(info.DriverDescription),
			MaxWorkgroupSize:            min(limits.Limits.MaxComputeInvocationsPerWorkgroup, limits.Limits.MaxComputeWorkgroupSizeX),
			MaxWorkgroupsPerDimension:   limits.Limits.MaxComputeWorkgroupsPerDimension,
			MaxStorageBufferBindingSize: limits.Limits.MaxStorageBufferBindingSize,
		},
	}, nil
}

func selectAdapter(inst *wgpu.Instance, prefer string) (*wgpu.Adapter, error) {
	if prefer != "" {
		want := strings.ToLower(prefer)
		for _, a := range inst.EnumerateAdapters(nil) {
			info := a.GetInfo()
			if strings.Contains(strings.ToLower(info.Name), want) ||
				strings.Contains(strings.ToLower(info.VendorName), want) {
				return a, nil
			}
		}
	}

	var lastErr error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		a, err := inst.RequestAdapter(opts)
		if err == nil && a != nil {
			return a, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no adapter")
	}
	return nil, fmt.Errorf("all adapter attempts failed: %w", lastErr)
}

func (g *WebGPU) Info() Info { return g.info }

type pipelineProgram struct {
	pipeline *wgpu.ComputePipeline
}

func (p *pipelineProgram) Release() { p.pipeline.Release() }

func (g *WebGPU) Compile(_ context.Context, source string) (Program, error) {
	module, err := g.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "headcount_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	defer module.Release()

	pipeline, err := g.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "headcount_pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return &pipelineProgram{pipeline: pipeline}, nil
}

func (g *WebGPU) Dispatch(ctx context.Context, prog Program, args DispatchArgs) (uint64, error) {
	p, ok := prog.(*pipelineProgram)
	if !ok {
		return 0, fmt.Errorf("%w: program not compiled by this device", ErrDispatchFailed)
	}

	params, err := g.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "headcount_params",
		Contents: wgpu.ToBytes([]uint32{args.BitsPerThread, args.Threads, args.RowStride, 0}),
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: params: %w", ErrBufferAllocationFailed, err)
	}
	defer params.Release()

	seeds, err := g.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "headcount_seeds",
		Contents: wgpu.ToBytes(args.Seeds[:uint64(args.Threads)*SeedWordsPerThread]),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: seeds: %w", ErrBufferAllocationFailed, err)
	}
	defer seeds.Release()

	total, err := g.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "headcount_total",
		Contents: wgpu.ToBytes([]uint32{0, 0}),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: total: %w", ErrBufferAllocationFailed, err)
	}
	defer total.Release()

	staging, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "headcount_staging",
		Size:  8,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: staging: %w", ErrBufferAllocationFailed, err)
	}
	defer staging.Release()

	layout := p.pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bind, err := g.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "headcount_bind",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: params, Size: params.GetSize()},
			{Binding: 1, Buffer: seeds, Size: seeds.GetSize()},
			{Binding: 2, Buffer: total, Size: total.GetSize()},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: bind group: %w", ErrDispatchFailed, err)
	}
	defer bind.Release()

	enc, err := g.device.CreateCommandEncoder(nil)
	if err != nil {
		return 0, fmt.Errorf("%w: command encoder: %w", ErrDispatchFailed, err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bind, nil)
	pass.DispatchWorkgroups(args.GroupsX, args.GroupsY, 1)
	pass.End()
	enc.CopyBufferToBuffer(total, 0, staging, 0, 8)
	cmd, err := enc.Finish(nil)
	if err != nil {
		enc.Release()
		return 0, fmt.Errorf("%w: finish: %w", ErrDispatchFailed, err)
	}
	enc.Release()
	g.queue.Submit(cmd)
	cmd.Release()

	words, err := g.readback(ctx, staging, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReadbackFailed, err)
	}
	return uint64(words[1])<<32 | uint64(words[0]), nil
}

// readback maps staging and copies out its contents, polling the device
// until the map completes or ctx is done.
func (g *WebGPU) readback(ctx context.Context, staging *wgpu.Buffer, size uint64) ([]uint32, error) {
	done := make(chan struct{})
	var mapErr error
	err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("map async: %w", err)
	}

	for {
		g.device.Poll(false, nil)
		select {
		case <-done:
			if mapErr != nil {
				return nil, mapErr
			}
			data := staging.GetMappedRange(0, uint(size))
			if data == nil {
				return nil, fmt.Errorf("empty mapped range")
			}
			out := make([]uint32, size/4)
			copy(out, wgpu.FromBytes[uint32](data))
			staging.Unmap()
			return out, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func (g *WebGPU) Close() error {
	g.device.Release()
	g.adapter.Release()
	g.instance.Release()
	return nil
}
