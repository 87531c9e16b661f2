// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

// Resource IDs
//
// These opaque IDs represent device resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// TextureID is an opaque handle to a device texture.
type TextureID uint64

// ShaderModuleID is an opaque handle to a shader module.
type ShaderModuleID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageCopySrc indicates the buffer can be read back.
	BufferUsageCopySrc BufferUsage = 1 << 0

	// BufferUsageCopyDst indicates the buffer can be written from the host.
	BufferUsageCopyDst BufferUsage = 1 << 1

	// BufferUsageUniform indicates the buffer can be bound as a uniform.
	BufferUsageUniform BufferUsage = 1 << 2

	// BufferUsageStorage indicates the buffer can be bound as storage.
	BufferUsageStorage BufferUsage = 1 << 3

	// BufferUsageIndirect indicates the buffer can drive an indirect dispatch.
	BufferUsageIndirect BufferUsage = 1 << 4
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats used by the pipeline.
const (
	// TextureFormatR32Float is a single 32-bit float channel (depth, Hi-Z).
	TextureFormatR32Float TextureFormat = iota + 1

	// TextureFormatR32Uint is a single 32-bit unsigned integer channel.
	TextureFormatR32Uint

	// TextureFormatRGBA32Float is four 32-bit float channels (resolve targets).
	TextureFormatRGBA32Float
)

// TexelSize returns the size of one texel in bytes, or 0 for an
// unknown format.
func (f TextureFormat) TexelSize() int {
	switch f {
	case TextureFormatR32Float, TextureFormatR32Uint:
		return 4
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be read back.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be written from the host.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageSampled indicates the texture can be bound read-only.
	TextureUsageSampled TextureUsage = 1 << 2

	// TextureUsageStorage indicates the texture can be bound read/write.
	TextureUsageStorage TextureUsage = 1 << 3
)

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a read-write storage buffer binding.
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampledTexture is a read-only texture binding.
	BindingTypeSampledTexture

	// BindingTypeStorageTexture is a read/write storage texture binding.
	BindingTypeStorageTexture
)

// ShaderModuleDesc describes a shader module.
type ShaderModuleDesc struct {
	// Label is an optional debug label.
	Label string

	// WGSL is the shader source. Hardware devices compile it; the
	// software device retains it for diagnostics only.
	WGSL string
}

// TextureDesc describes a texture.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the mip 0 dimensions in texels.
	Width  uint32
	Height uint32

	// MipLevelCount is the number of mip levels. Zero means one.
	MipLevelCount uint32

	// Format is the texel format.
	Format TextureFormat

	// Usage specifies how the texture will be bound.
	Usage TextureUsage
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Type is the type of resource bound at this index.
	Type BindingType

	// Format is the texel format of a storage texture binding. WebGPU
	// validates the bound view against it, so it must match the texture.
	// Ignored for buffer and sampled texture bindings.
	Format TextureFormat
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the bind group layout.
	Layout BindGroupLayoutID

	// Entries are the resource bindings.
	Entries []BindGroupEntry
}

// BindGroupEntry describes a single binding in a bind group.
// Exactly one of Buffer or Texture must be set.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind (for buffer bindings).
	Buffer BufferID

	// Offset is the byte offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from Offset.
	Size uint64

	// Texture is the texture to bind (for texture bindings).
	Texture TextureID

	// MipLevel is the base mip level of the bound view.
	MipLevel uint32

	// MipLevelCount is the number of mips in the bound view.
	// Use 0 to bind all levels from MipLevel. Storage texture
	// bindings must bind exactly one level.
	MipLevelCount uint32
}

// ComputePipelineDesc describes a compute pipeline.
//
// Module/EntryPoint and Kernel are two representations of the same
// program: hardware devices execute the compiled WGSL entry point, the
// software device executes the Go kernel. Pipelines used with the
// software device must set Kernel.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// Module contains the compute shader.
	Module ShaderModuleID

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string

	// Kernel is the Go implementation of the entry point.
	Kernel Kernel

	// WorkgroupSize is the workgroup size in each dimension.
	// Zero components default to 1.
	WorkgroupSize [3]uint32
}
