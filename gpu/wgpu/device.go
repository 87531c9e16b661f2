// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu adapts a hal compute device to gpu.Device.
//
// Shader modules are compiled from WGSL to SPIR-V up front through
// naga, so invalid sources fail at pipeline construction rather than
// first dispatch. Host readback of device resources is not available
// through hal yet; ReadBuffer and ReadTexture return
// gpu.ErrReadbackUnsupported, which confines stats and debug queries to
// the software device.
package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshlet/gpu"
)

// fenceTimeout bounds a Submit's completion wait.
const fenceTimeout = 5 * time.Second

// Device implements gpu.Device on a hal device/queue pair.
type Device struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue

	nextID uint64

	buffers   map[gpu.BufferID]hal.Buffer
	textures  map[gpu.TextureID]*texture
	modules   map[gpu.ShaderModuleID]hal.ShaderModule
	bgLayouts map[gpu.BindGroupLayoutID]*bgLayout
	pipeLts   map[gpu.PipelineLayoutID]hal.PipelineLayout
	pipelines map[gpu.ComputePipelineID]hal.ComputePipeline
	groups    map[gpu.BindGroupID]*bindGroup

	pending []hal.CommandBuffer
}

type texture struct {
	tex   hal.Texture
	desc  gpu.TextureDesc
	views []hal.TextureView
}

type bgLayout struct {
	layout  hal.BindGroupLayout
	entries []gpu.BindGroupLayoutEntry
}

type bindGroup struct {
	group hal.BindGroup
}

// NewDevice wraps a hal device and queue. The caller keeps ownership of
// both and destroys them after Close.
func NewDevice(device hal.Device, queue hal.Queue) *Device {
	return &Device{
		device:    device,
		queue:     queue,
		buffers:   make(map[gpu.BufferID]hal.Buffer),
		textures:  make(map[gpu.TextureID]*texture),
		modules:   make(map[gpu.ShaderModuleID]hal.ShaderModule),
		bgLayouts: make(map[gpu.BindGroupLayoutID]*bgLayout),
		pipeLts:   make(map[gpu.PipelineLayoutID]hal.PipelineLayout),
		pipelines: make(map[gpu.ComputePipelineID]hal.ComputePipeline),
		groups:    make(map[gpu.BindGroupID]*bindGroup),
	}
}

// Close releases every resource still registered with the adapter.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, g := range d.groups {
		d.device.DestroyBindGroup(g.group)
		delete(d.groups, id)
	}
	for id, p := range d.pipelines {
		d.device.DestroyComputePipeline(p)
		delete(d.pipelines, id)
	}
	for id, pl := range d.pipeLts {
		d.device.DestroyPipelineLayout(pl)
		delete(d.pipeLts, id)
	}
	for id, l := range d.bgLayouts {
		d.device.DestroyBindGroupLayout(l.layout)
		delete(d.bgLayouts, id)
	}
	for id, m := range d.modules {
		d.device.DestroyShaderModule(m)
		delete(d.modules, id)
	}
	for id, t := range d.textures {
		for _, v := range t.views {
			d.device.DestroyTextureView(v)
		}
		d.device.DestroyTexture(t.tex)
		delete(d.textures, id)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b)
		delete(d.buffers, id)
	}
}

// SupportsCompute reports whether the hal device runs compute shaders.
func (d *Device) SupportsCompute() bool {
	return d.device != nil && d.queue != nil
}

func (d *Device) allocID() uint64 {
	d.nextID++
	return d.nextID
}

// CreateShaderModule compiles WGSL through naga and hands the SPIR-V to
// the hal device.
func (d *Device) CreateShaderModule(desc *gpu.ShaderModuleDesc) (gpu.ShaderModuleID, error) {
	spirvBytes, err := naga.Compile(desc.WGSL)
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: compile %q: %w", desc.Label, err)
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: create module %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.ShaderModuleID(d.allocID())
	d.modules[id] = module
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(id gpu.ShaderModuleID) {
	d.mu.Lock()
	m, ok := d.modules[id]
	delete(d.modules, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyShaderModule(m)
	}
}

func convertBufferUsage(usage gpu.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if usage&gpu.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if usage&gpu.BufferUsageCopyDst != 0 {
		out |= gputypes.BufferUsageCopyDst
	}
	if usage&gpu.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if usage&gpu.BufferUsageStorage != 0 {
		out |= gputypes.BufferUsageStorage
	}
	if usage&gpu.BufferUsageIndirect != 0 {
		out |= gputypes.BufferUsageIndirect
	}
	return out
}

// CreateBuffer creates a device buffer.
func (d *Device) CreateBuffer(size int, usage gpu.BufferUsage) (gpu.BufferID, error) {
	if size <= 0 {
		return gpu.InvalidID, fmt.Errorf("wgpu: invalid buffer size %d", size)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: create buffer: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.BufferID(d.allocID())
	d.buffers[id] = buf
	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpu.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBuffer(b)
	}
}

// WriteBuffer uploads data through the queue.
func (d *Device) WriteBuffer(id gpu.BufferID, offset uint64, data []byte) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	d.mu.Unlock()
	if ok && len(data) > 0 {
		d.queue.WriteBuffer(b, offset, data)
	}
}

// ReadBuffer is unavailable: hal exposes no buffer mapping yet.
func (d *Device) ReadBuffer(id gpu.BufferID, offset, size uint64) ([]byte, error) {
	return nil, gpu.ErrReadbackUnsupported
}

func convertTextureFormat(f gpu.TextureFormat) gputypes.TextureFormat {
	switch f {
	case gpu.TextureFormatR32Float:
		return gputypes.TextureFormatR32Float
	case gpu.TextureFormatR32Uint:
		return gputypes.TextureFormatR32Uint
	case gpu.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatR32Float
	}
}

func convertTextureUsage(usage gpu.TextureUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if usage&gpu.TextureUsageCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if usage&gpu.TextureUsageCopyDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	if usage&gpu.TextureUsageSampled != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpu.TextureUsageStorage != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	return out
}

// CreateTexture creates a 2D texture with its mip chain.
func (d *Device) CreateTexture(desc *gpu.TextureDesc) (gpu.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpu.InvalidID, fmt.Errorf("wgpu: invalid texture size %dx%d", desc.Width, desc.Height)
	}
	mips := desc.MipLevelCount
	if mips == 0 {
		mips = 1
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        convertTextureFormat(desc.Format),
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.TextureID(d.allocID())
	d.textures[id] = &texture{tex: tex, desc: *desc}
	return id, nil
}

// DestroyTexture releases a texture and its views.
func (d *Device) DestroyTexture(id gpu.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()
	if !ok {
		return
	}
	for _, v := range t.views {
		d.device.DestroyTextureView(v)
	}
	d.device.DestroyTexture(t.tex)
}

// WriteTexture uploads one mip level.
func (d *Device) WriteTexture(id gpu.TextureID, mip uint32, data []byte) {
	d.mu.Lock()
	t, ok := d.textures[id]
	d.mu.Unlock()
	if !ok || len(data) == 0 {
		return
	}
	w := max(t.desc.Width>>mip, 1)
	h := max(t.desc.Height>>mip, 1)
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: mip,
			Origin:   hal.Origin3D{},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			BytesPerRow:  uint32(t.desc.Format.TexelSize()) * w,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1})
}

// ReadTexture is unavailable: hal exposes no texture readback yet.
func (d *Device) ReadTexture(id gpu.TextureID, mip uint32) ([]byte, error) {
	return nil, gpu.ErrReadbackUnsupported
}

func convertLayoutEntry(e gpu.BindGroupLayoutEntry) gputypes.BindGroupLayoutEntry {
	out := gputypes.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}
	switch e.Type {
	case gpu.BindingTypeUniformBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case gpu.BindingTypeStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case gpu.BindingTypeReadOnlyStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	case gpu.BindingTypeSampledTexture:
		out.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpu.BindingTypeStorageTexture:
		out.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        convertTextureFormat(e.Format),
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	}
	return out
}

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(desc *gpu.BindGroupLayoutDesc) (gpu.BindGroupLayoutID, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entries[i] = convertLayoutEntry(e)
	}
	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: create layout %q: %w", desc.Label, err)
	}

	kept := make([]gpu.BindGroupLayoutEntry, len(desc.Entries))
	copy(kept, desc.Entries)

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.BindGroupLayoutID(d.allocID())
	d.bgLayouts[id] = &bgLayout{layout: layout, entries: kept}
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *Device) DestroyBindGroupLayout(id gpu.BindGroupLayoutID) {
	d.mu.Lock()
	l, ok := d.bgLayouts[id]
	delete(d.bgLayouts, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBindGroupLayout(l.layout)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (d *Device) CreatePipelineLayout(layouts []gpu.BindGroupLayoutID) (gpu.PipelineLayoutID, error) {
	d.mu.Lock()
	halLayouts := make([]hal.BindGroupLayout, 0, len(layouts))
	for _, id := range layouts {
		l, ok := d.bgLayouts[id]
		if !ok {
			d.mu.Unlock()
			return gpu.InvalidID, gpu.ErrInvalidResource
		}
		halLayouts = append(halLayouts, l.layout)
	}
	d.mu.Unlock()

	pl, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.PipelineLayoutID(d.allocID())
	d.pipeLts[id] = pl
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(id gpu.PipelineLayoutID) {
	d.mu.Lock()
	pl, ok := d.pipeLts[id]
	delete(d.pipeLts, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyPipelineLayout(pl)
	}
}

// CreateComputePipeline creates a compute pipeline from the compiled
// module. The Go kernel is ignored here; hal executes the shader.
func (d *Device) CreateComputePipeline(desc *gpu.ComputePipelineDesc) (gpu.ComputePipelineID, error) {
	d.mu.Lock()
	module, ok := d.modules[desc.Module]
	layout, lok := d.pipeLts[desc.Layout]
	d.mu.Unlock()
	if !ok || !lok {
		return gpu.InvalidID, fmt.Errorf("wgpu: pipeline %q: %w", desc.Label, gpu.ErrInvalidResource)
	}

	pipe, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: create pipeline %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.ComputePipelineID(d.allocID())
	d.pipelines[id] = pipe
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(id gpu.ComputePipelineID) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	delete(d.pipelines, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyComputePipeline(p)
	}
}

// CreateBindGroup resolves buffers and creates texture views for the
// requested mip ranges. Views live as long as their texture.
func (d *Device) CreateBindGroup(desc *gpu.BindGroupDesc) (gpu.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	layout, ok := d.bgLayouts[desc.Layout]
	if !ok {
		return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q: %w", desc.Label, gpu.ErrInvalidResource)
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(layout.entries))
	for _, le := range layout.entries {
		var entry *gpu.BindGroupEntry
		for i := range desc.Entries {
			if desc.Entries[i].Binding == le.Binding {
				entry = &desc.Entries[i]
				break
			}
		}
		if entry == nil {
			return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q binding %d: %w",
				desc.Label, le.Binding, gpu.ErrBindingMismatch)
		}

		switch le.Type {
		case gpu.BindingTypeUniformBuffer, gpu.BindingTypeStorageBuffer, gpu.BindingTypeReadOnlyStorageBuffer:
			buf, ok := d.buffers[entry.Buffer]
			if !ok {
				return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q binding %d: %w",
					desc.Label, le.Binding, gpu.ErrBindingMismatch)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding: le.Binding,
				Resource: gputypes.BufferBinding{
					Buffer: buf.NativeHandle(),
					Offset: entry.Offset,
					Size:   entry.Size,
				},
			})

		case gpu.BindingTypeSampledTexture, gpu.BindingTypeStorageTexture:
			t, ok := d.textures[entry.Texture]
			if !ok {
				return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q binding %d: %w",
					desc.Label, le.Binding, gpu.ErrBindingMismatch)
			}
			view, err := d.device.CreateTextureView(t.tex, &hal.TextureViewDescriptor{
				Label:         desc.Label,
				Format:        convertTextureFormat(t.desc.Format),
				Dimension:     gputypes.TextureViewDimension2D,
				Aspect:        gputypes.TextureAspectAll,
				BaseMipLevel:  entry.MipLevel,
				MipLevelCount: entry.MipLevelCount,
			})
			if err != nil {
				return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q binding %d: %w",
					desc.Label, le.Binding, err)
			}
			t.views = append(t.views, view)
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  le.Binding,
				Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
			})

		default:
			return gpu.InvalidID, fmt.Errorf("wgpu: bind group %q binding %d: unknown binding type %d",
				desc.Label, le.Binding, le.Type)
		}
	}

	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		return gpu.InvalidID, fmt.Errorf("wgpu: create bind group %q: %w", desc.Label, err)
	}

	id := gpu.BindGroupID(d.allocID())
	d.groups[id] = &bindGroup{group: group}
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpu.BindGroupID) {
	d.mu.Lock()
	g, ok := d.groups[id]
	delete(d.groups, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBindGroup(g.group)
	}
}

// passEncoder records one compute pass into a hal command encoder.
type passEncoder struct {
	dev     *Device
	encoder hal.CommandEncoder
	pass    hal.ComputePassEncoder
	failed  bool
}

// BeginComputePass begins recording a compute pass.
func (d *Device) BeginComputePass(label string) gpu.ComputePassEncoder {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return &passEncoder{dev: d, failed: true}
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return &passEncoder{dev: d, failed: true}
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	return &passEncoder{dev: d, encoder: encoder, pass: pass}
}

// SetPipeline sets the active pipeline.
func (p *passEncoder) SetPipeline(pipeline gpu.ComputePipelineID) {
	if p.failed {
		return
	}
	p.dev.mu.Lock()
	pipe, ok := p.dev.pipelines[pipeline]
	p.dev.mu.Unlock()
	if ok {
		p.pass.SetPipeline(pipe)
	}
}

// SetBindGroup binds a bind group.
func (p *passEncoder) SetBindGroup(index uint32, group gpu.BindGroupID) {
	if p.failed {
		return
	}
	p.dev.mu.Lock()
	g, ok := p.dev.groups[group]
	p.dev.mu.Unlock()
	if ok {
		p.pass.SetBindGroup(index, g.group, nil)
	}
}

// Dispatch dispatches workgroups.
func (p *passEncoder) Dispatch(x, y, z uint32) {
	if !p.failed {
		p.pass.Dispatch(x, y, z)
	}
}

// DispatchIndirect dispatches workgroup counts from a buffer.
func (p *passEncoder) DispatchIndirect(buffer gpu.BufferID, offset uint64) {
	if p.failed {
		return
	}
	p.dev.mu.Lock()
	buf, ok := p.dev.buffers[buffer]
	p.dev.mu.Unlock()
	if ok {
		p.pass.DispatchIndirect(buf, offset)
	}
}

// End finishes the pass and queues its command buffer for Submit.
func (p *passEncoder) End() {
	if p.failed {
		return
	}
	p.pass.End()
	cmdBuf, err := p.encoder.EndEncoding()
	if err != nil {
		p.encoder.DiscardEncoding()
		return
	}
	p.dev.mu.Lock()
	p.dev.pending = append(p.dev.pending, cmdBuf)
	p.dev.mu.Unlock()
}

// Submit submits all recorded passes and waits for completion.
//
// hal manages its own submission fencing; waiting here keeps
// Submit+WaitIdle semantics identical to the software device.
func (d *Device) Submit() {
	d.mu.Lock()
	cmdBufs := d.pending
	d.pending = nil
	d.mu.Unlock()
	if len(cmdBufs) == 0 {
		return
	}

	if _, err := d.queue.Submit(cmdBufs); err != nil {
		return
	}
	_ = d.device.WaitIdle()
	for _, cb := range cmdBufs {
		d.device.FreeCommandBuffer(cb)
	}
}

// WaitIdle is a no-op: Submit already waits on its fence.
func (d *Device) WaitIdle() {}
