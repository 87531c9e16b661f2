// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import "errors"

// Device errors shared by implementations.
var (
	// ErrInvalidResource is returned when an ID does not reference a
	// live resource of the expected kind.
	ErrInvalidResource = errors.New("gpu: invalid resource id")

	// ErrBindingMismatch is returned when a bind group entry does not
	// match its layout entry (wrong resource kind or missing binding).
	ErrBindingMismatch = errors.New("gpu: bind group entry does not match layout")

	// ErrMissingKernel is returned by software devices when a compute
	// pipeline is created without a Go kernel.
	ErrMissingKernel = errors.New("gpu: compute pipeline has no kernel")

	// ErrReadbackUnsupported is returned when a device cannot read a
	// resource back to the host.
	ErrReadbackUnsupported = errors.New("gpu: resource readback not supported")
)

// Device abstracts over compute device implementations.
//
// Implementations must be safe for concurrent resource creation, but
// pass recording and Submit are single-stream: the pipeline records one
// command stream per frame and submits it whole.
type Device interface {
	// SupportsCompute reports whether the device can execute compute
	// dispatches. A device that returns false is useless to the
	// pipeline and rejected at construction.
	SupportsCompute() bool

	// CreateShaderModule creates a shader module from WGSL source.
	// Hardware devices compile the source and fail on invalid WGSL.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateBuffer creates a buffer of the given size in bytes.
	CreateBuffer(size int, usage BufferUsage) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer copies data into a buffer at the given byte offset.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// ReadBuffer reads size bytes from a buffer at the given offset.
	// May stall until outstanding work completes.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// CreateTexture creates a texture with the described mip chain.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)

	// WriteTexture writes one full mip level of texel data.
	WriteTexture(id TextureID, mip uint32, data []byte)

	// ReadTexture reads one full mip level of texel data.
	// May stall until outstanding work completes.
	ReadTexture(id TextureID, mip uint32) ([]byte, error)

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from bind group
	// layouts, in group order.
	CreatePipelineLayout(layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup creates a bind group, validating each entry
	// against the layout. Bind groups are immutable and intended to be
	// created once and reused every frame.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// BeginComputePass begins recording a compute pass.
	BeginComputePass(label string) ComputePassEncoder

	// Submit executes all recorded passes in order.
	Submit()

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle()
}

// ComputePassEncoder records compute commands.
//
// The encoder is single-use: after End it must not be touched again.
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup binds a bind group at the given group index.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches x*y*z workgroups.
	Dispatch(x, y, z uint32)

	// DispatchIndirect dispatches workgroup counts read from a buffer
	// at execution time. The buffer holds three uint32 values (x, y, z)
	// at the given byte offset.
	DispatchIndirect(buffer BufferID, offset uint64)

	// End finishes the pass and hands it to the device.
	End()
}
