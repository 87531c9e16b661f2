// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

// Kernel is the Go implementation of a compute shader entry point.
//
// Software devices call the kernel once per invocation. Kernels must
// not retain the invocation or any slice obtained from it past the
// call, and may only coordinate with concurrent invocations through
// the Atomic* helpers in this package.
type Kernel func(inv *Invocation)

// Bindings resolves bound resources for a kernel invocation.
// Implemented by software devices; resolution is done when the bind
// group is created, so these lookups are slice indexing, not map
// lookups, on the hot path.
type Bindings interface {
	// Buffer returns the bound byte range for a buffer binding.
	// The returned slice aliases device memory and is 8-byte aligned
	// at offset zero.
	Buffer(group, binding uint32) []byte

	// Texture returns the bound texture view for a texture binding.
	Texture(group, binding uint32) *TextureBinding
}

// Invocation is the per-thread execution context passed to kernels.
// It corresponds to one global invocation of a WGSL compute shader.
type Invocation struct {
	// GlobalID is the global invocation ID (workgroup * size + local).
	GlobalID [3]uint32

	// Bindings resolves the resources bound for this dispatch.
	Bindings Bindings
}

// TextureBinding is a resolved texture view covering one or more
// consecutive mip levels. Mips[0] is the view's base level.
type TextureBinding struct {
	// Format is the texel format of every level.
	Format TextureFormat

	// Mips are the bound mip levels, finest first.
	Mips []TextureData
}

// TextureData is a software view of a single mip level. Pixels are
// tightly packed rows of Format-sized texels aliasing device memory.
type TextureData struct {
	Width  uint32
	Height uint32
	Format TextureFormat
	Pixels []byte
}

// F32 returns the level's texels as a float32 slice.
// Valid for R32Float and RGBA32Float levels.
func (t *TextureData) F32() []float32 { return F32(t.Pixels) }

// U32 returns the level's texels as a uint32 slice.
func (t *TextureData) U32() []uint32 { return U32(t.Pixels) }
