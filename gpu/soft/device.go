// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft implements gpu.Device entirely on the CPU.
//
// Compute pipelines execute their Go kernels data-parallel across
// workgroups on a worker pool. Buffer and texture storage is backed by
// 8-byte-aligned allocations so kernels can apply real atomic
// operations to device memory, preserving the concurrency semantics of
// the GPU path (unordered invocations, atomics as the only
// synchronization).
package soft

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/meshlet/gpu"
)

// Device is a software compute device.
//
// Submit executes recorded passes synchronously in submission order;
// WaitIdle is therefore a no-op. Resource creation is safe for
// concurrent use.
type Device struct {
	mu   sync.Mutex
	pool *workerPool

	nextID uint64

	buffers     map[gpu.BufferID]*buffer
	textures    map[gpu.TextureID]*texture
	modules     map[gpu.ShaderModuleID]*shaderModule
	bgLayouts   map[gpu.BindGroupLayoutID]*bindGroupLayout
	pipeLayouts map[gpu.PipelineLayoutID]*pipelineLayout
	pipelines   map[gpu.ComputePipelineID]*computePipeline
	bindGroups  map[gpu.BindGroupID]*bindGroup

	pending []dispatchCmd
}

// NewDevice creates a software device executing dispatches on the given
// number of workers. workers <= 0 uses GOMAXPROCS.
func NewDevice(workers int) *Device {
	return &Device{
		pool:        newWorkerPool(workers),
		buffers:     make(map[gpu.BufferID]*buffer),
		textures:    make(map[gpu.TextureID]*texture),
		modules:     make(map[gpu.ShaderModuleID]*shaderModule),
		bgLayouts:   make(map[gpu.BindGroupLayoutID]*bindGroupLayout),
		pipeLayouts: make(map[gpu.PipelineLayoutID]*pipelineLayout),
		pipelines:   make(map[gpu.ComputePipelineID]*computePipeline),
		bindGroups:  make(map[gpu.BindGroupID]*bindGroup),
	}
}

// Close stops the worker pool. The device must not be used afterwards.
func (d *Device) Close() {
	d.pool.close()
}

// SupportsCompute reports true: the software device always executes.
func (d *Device) SupportsCompute() bool { return true }

type buffer struct {
	usage gpu.BufferUsage
	words []uint64
	data  []byte
}

type mipLevel struct {
	width  uint32
	height uint32
	words  []uint64
	data   []byte
}

type texture struct {
	desc gpu.TextureDesc
	mips []mipLevel
}

type shaderModule struct {
	label string
	wgsl  string
}

type bindGroupLayout struct {
	entries []gpu.BindGroupLayoutEntry
}

type pipelineLayout struct {
	groups []gpu.BindGroupLayoutID
}

type computePipeline struct {
	label  string
	kernel gpu.Kernel
	wgSize [3]uint32
}

// resolvedBinding is one slot of a bind group with its resource views
// resolved at creation time.
type resolvedBinding struct {
	buf []byte
	tex *gpu.TextureBinding
}

type bindGroup struct {
	slots []resolvedBinding
}

// alignedBytes allocates size bytes backed by uint64 words, so the
// returned slice is 8-byte aligned and safe for atomic word access.
func alignedBytes(size int) ([]uint64, []byte) {
	if size <= 0 {
		size = 8
	}
	words := make([]uint64, (size+7)/8)
	data := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size) //nolint:gosec // aligned backing store
	return words, data
}

func (d *Device) allocID() uint64 {
	d.nextID++
	return d.nextID
}

// CreateShaderModule retains the WGSL source for diagnostics. The
// software device never compiles it; execution uses the pipeline's Go
// kernel.
func (d *Device) CreateShaderModule(desc *gpu.ShaderModuleDesc) (gpu.ShaderModuleID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.ShaderModuleID(d.allocID())
	d.modules[id] = &shaderModule{label: desc.Label, wgsl: desc.WGSL}
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(id gpu.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.modules, id)
}

// CreateBuffer creates a zero-filled buffer.
func (d *Device) CreateBuffer(size int, usage gpu.BufferUsage) (gpu.BufferID, error) {
	if size < 0 {
		return gpu.InvalidID, fmt.Errorf("soft: negative buffer size %d", size)
	}
	words, data := alignedBytes(size)

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.BufferID(d.allocID())
	d.buffers[id] = &buffer{usage: usage, words: words, data: data}
	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpu.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, id)
}

// WriteBuffer copies data into the buffer. Writes beyond the buffer
// end are truncated.
func (d *Device) WriteBuffer(id gpu.BufferID, offset uint64, data []byte) {
	d.mu.Lock()
	b := d.buffers[id]
	d.mu.Unlock()
	if b == nil || offset >= uint64(len(b.data)) {
		return
	}
	copy(b.data[offset:], data)
}

// ReadBuffer copies size bytes out of the buffer.
func (d *Device) ReadBuffer(id gpu.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	b := d.buffers[id]
	d.mu.Unlock()
	if b == nil {
		return nil, gpu.ErrInvalidResource
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("soft: read [%d, %d) out of range (buffer %d bytes)", offset, offset+size, len(b.data))
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

// CreateTexture creates a zero-filled texture with its full mip chain.
func (d *Device) CreateTexture(desc *gpu.TextureDesc) (gpu.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpu.InvalidID, fmt.Errorf("soft: invalid texture size %dx%d", desc.Width, desc.Height)
	}
	texel := desc.Format.TexelSize()
	if texel == 0 {
		return gpu.InvalidID, fmt.Errorf("soft: unknown texture format %d", desc.Format)
	}

	mipCount := desc.MipLevelCount
	if mipCount == 0 {
		mipCount = 1
	}

	t := &texture{desc: *desc}
	w, h := desc.Width, desc.Height
	for m := uint32(0); m < mipCount; m++ {
		words, data := alignedBytes(int(w) * int(h) * texel)
		t.mips = append(t.mips, mipLevel{width: w, height: h, words: words, data: data})
		if w > 1 {
			w >>= 1
		}
		if h > 1 {
			h >>= 1
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.TextureID(d.allocID())
	d.textures[id] = t
	return id, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpu.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// WriteTexture replaces one mip level's texel data.
func (d *Device) WriteTexture(id gpu.TextureID, mip uint32, data []byte) {
	d.mu.Lock()
	t := d.textures[id]
	d.mu.Unlock()
	if t == nil || mip >= uint32(len(t.mips)) {
		return
	}
	copy(t.mips[mip].data, data)
}

// ReadTexture copies one mip level's texel data out.
func (d *Device) ReadTexture(id gpu.TextureID, mip uint32) ([]byte, error) {
	d.mu.Lock()
	t := d.textures[id]
	d.mu.Unlock()
	if t == nil || mip >= uint32(len(t.mips)) {
		return nil, gpu.ErrInvalidResource
	}
	out := make([]byte, len(t.mips[mip].data))
	copy(out, t.mips[mip].data)
	return out, nil
}

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(desc *gpu.BindGroupLayoutDesc) (gpu.BindGroupLayoutID, error) {
	entries := make([]gpu.BindGroupLayoutEntry, len(desc.Entries))
	copy(entries, desc.Entries)

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpu.BindGroupLayoutID(d.allocID())
	d.bgLayouts[id] = &bindGroupLayout{entries: entries}
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *Device) DestroyBindGroupLayout(id gpu.BindGroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.bgLayouts, id)
}

// CreatePipelineLayout creates a pipeline layout.
func (d *Device) CreatePipelineLayout(layouts []gpu.BindGroupLayoutID) (gpu.PipelineLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range layouts {
		if d.bgLayouts[l] == nil {
			return gpu.InvalidID, gpu.ErrInvalidResource
		}
	}
	groups := make([]gpu.BindGroupLayoutID, len(layouts))
	copy(groups, layouts)
	id := gpu.PipelineLayoutID(d.allocID())
	d.pipeLayouts[id] = &pipelineLayout{groups: groups}
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(id gpu.PipelineLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipeLayouts, id)
}

// CreateComputePipeline creates a compute pipeline. The software device
// requires a Go kernel; the WGSL module is carried for parity only.
func (d *Device) CreateComputePipeline(desc *gpu.ComputePipelineDesc) (gpu.ComputePipelineID, error) {
	if desc.Kernel == nil {
		return gpu.InvalidID, fmt.Errorf("soft: pipeline %q: %w", desc.Label, gpu.ErrMissingKernel)
	}

	wg := desc.WorkgroupSize
	for i := range wg {
		if wg[i] == 0 {
			wg[i] = 1
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Layout != gpu.InvalidID && d.pipeLayouts[desc.Layout] == nil {
		return gpu.InvalidID, fmt.Errorf("soft: pipeline %q: %w", desc.Label, gpu.ErrInvalidResource)
	}
	id := gpu.ComputePipelineID(d.allocID())
	d.pipelines[id] = &computePipeline{label: desc.Label, kernel: desc.Kernel, wgSize: wg}
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(id gpu.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, id)
}

// CreateBindGroup validates each entry against the layout and resolves
// resource views up front, so dispatch-time binding is slice indexing.
func (d *Device) CreateBindGroup(desc *gpu.BindGroupDesc) (gpu.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	layout := d.bgLayouts[desc.Layout]
	if layout == nil {
		return gpu.InvalidID, fmt.Errorf("soft: bind group %q: %w", desc.Label, gpu.ErrInvalidResource)
	}

	maxBinding := uint32(0)
	for _, e := range layout.entries {
		if e.Binding > maxBinding {
			maxBinding = e.Binding
		}
	}
	slots := make([]resolvedBinding, maxBinding+1)

	for _, le := range layout.entries {
		entry, ok := findEntry(desc.Entries, le.Binding)
		if !ok {
			return gpu.InvalidID, fmt.Errorf("soft: bind group %q binding %d: %w", desc.Label, le.Binding, gpu.ErrBindingMismatch)
		}

		switch le.Type {
		case gpu.BindingTypeUniformBuffer, gpu.BindingTypeStorageBuffer, gpu.BindingTypeReadOnlyStorageBuffer:
			b := d.buffers[entry.Buffer]
			if b == nil {
				return gpu.InvalidID, fmt.Errorf("soft: bind group %q binding %d: %w", desc.Label, le.Binding, gpu.ErrBindingMismatch)
			}
			view, err := bufferRange(b, entry.Offset, entry.Size)
			if err != nil {
				return gpu.InvalidID, fmt.Errorf("soft: bind group %q binding %d: %w", desc.Label, le.Binding, err)
			}
			slots[le.Binding] = resolvedBinding{buf: view}

		case gpu.BindingTypeSampledTexture, gpu.BindingTypeStorageTexture:
			t := d.textures[entry.Texture]
			if t == nil {
				return gpu.InvalidID, fmt.Errorf("soft: bind group %q binding %d: %w", desc.Label, le.Binding, gpu.ErrBindingMismatch)
			}
			view, err := textureView(t, entry.MipLevel, entry.MipLevelCount)
			if err != nil {
				return gpu.InvalidID, fmt.Errorf("soft: bind group %q binding %d: %w", desc.Label, le.Binding, err)
			}
			if le.Type == gpu.BindingTypeStorageTexture {
				if len(view.Mips) != 1 {
					return gpu.InvalidID, fmt.Errorf("soft: bind group %q binding %d: storage texture views must cover one mip: %w",
						desc.Label, le.Binding, gpu.ErrBindingMismatch)
				}
				if le.Format != 0 && le.Format != view.Format {
					return gpu.InvalidID, fmt.Errorf("soft: bind group %q binding %d: storage format %d does not match view format %d: %w",
						desc.Label, le.Binding, le.Format, view.Format, gpu.ErrBindingMismatch)
				}
			}
			slots[le.Binding] = resolvedBinding{tex: view}

		default:
			return gpu.InvalidID, fmt.Errorf("soft: bind group %q binding %d: unknown binding type %d", desc.Label, le.Binding, le.Type)
		}
	}

	id := gpu.BindGroupID(d.allocID())
	d.bindGroups[id] = &bindGroup{slots: slots}
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpu.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.bindGroups, id)
}

func findEntry(entries []gpu.BindGroupEntry, binding uint32) (gpu.BindGroupEntry, bool) {
	for _, e := range entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return gpu.BindGroupEntry{}, false
}

func bufferRange(b *buffer, offset, size uint64) ([]byte, error) {
	if size == 0 {
		size = uint64(len(b.data)) - offset
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("soft: binding range [%d, %d) out of range (buffer %d bytes)", offset, offset+size, len(b.data))
	}
	return b.data[offset : offset+size], nil
}

func textureView(t *texture, base, count uint32) (*gpu.TextureBinding, error) {
	total := uint32(len(t.mips))
	if base >= total {
		return nil, fmt.Errorf("soft: base mip %d out of range (%d levels)", base, total)
	}
	if count == 0 {
		count = total - base
	}
	if base+count > total {
		return nil, fmt.Errorf("soft: mip view [%d, %d) out of range (%d levels)", base, base+count, total)
	}

	view := &gpu.TextureBinding{Format: t.desc.Format}
	for m := base; m < base+count; m++ {
		lvl := t.mips[m]
		view.Mips = append(view.Mips, gpu.TextureData{
			Width:  lvl.width,
			Height: lvl.height,
			Format: t.desc.Format,
			Pixels: lvl.data,
		})
	}
	return view, nil
}
