// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"errors"
	"fmt"
)

// Cluster budgets. Meshlet builders must stay within these; they bound
// the visibility-ID packing and the rasterizer's per-cluster dispatch.
const (
	// MaxMeshletVertices is the maximum vertices per meshlet.
	MaxMeshletVertices = 64

	// MaxMeshletTriangles is the maximum triangles per meshlet. It must
	// stay below triangleIDBits capacity (128).
	MaxMeshletTriangles = 124

	// MaxMeshlets is the maximum meshlet count per scene, bounded by
	// the meshlet-index bits of the packed visibility ID.
	MaxMeshlets = 1 << 25
)

// Visibility-ID packing: meshlet index in the high bits, triangle index
// in the low 7 bits. visIDNone marks background pixels.
const (
	triangleIDBits = 7
	triangleIDMask = (1 << triangleIDBits) - 1
	visIDNone      = ^uint32(0)
)

// Scene validation errors.
var (
	// ErrTooManyMeshlets is returned when a scene exceeds MaxMeshlets.
	ErrTooManyMeshlets = errors.New("meshlet: too many meshlets")

	// ErrMeshletRange is returned when a meshlet's vertex or index
	// window falls outside the packed buffers.
	ErrMeshletRange = errors.New("meshlet: vertex/index range out of bounds")

	// ErrMeshletBudget is returned when a meshlet exceeds the vertex or
	// triangle budget.
	ErrMeshletBudget = errors.New("meshlet: cluster exceeds size budget")

	// ErrMaterialRange is returned when a meshlet references a material
	// index outside the scene's material table.
	ErrMaterialRange = errors.New("meshlet: material index out of range")

	// ErrIndexRange is returned when a triangle index points outside
	// its meshlet's vertex window.
	ErrIndexRange = errors.New("meshlet: triangle index outside vertex window")
)

// Meshlet is one cluster descriptor in the GPU meshlet buffer.
// Layout matches the WGSL Meshlet struct: 64 bytes, std430.
//
// Meshlets are immutable after upload and live for the scene lifetime.
type Meshlet struct {
	// Center and Radius define the world-space bounding sphere used by
	// the frustum and occlusion tests.
	Center [3]float32
	Radius float32

	// ConeAxis and ConeCutoff define the backface cone: the cluster's
	// triangle normals all lie within acos(ConeCutoff) of ConeAxis.
	// ConeCutoff <= -1 disables the cone test for this cluster.
	ConeAxis   [3]float32
	ConeCutoff float32

	// VertexOffset/VertexCount locate the cluster's window in the
	// packed vertex buffer. Triangle indices are relative to it.
	VertexOffset uint32
	VertexCount  uint32

	// IndexOffset locates the first of TriangleCount*3 indices in the
	// packed index buffer.
	IndexOffset   uint32
	TriangleCount uint32

	// MaterialIndex references the scene material table.
	MaterialIndex uint32

	// LODError is the screen-space error metric of this cluster's LOD
	// level, scaled by the camera's LODScale. Selection policy lives
	// outside this pipeline.
	LODError float32

	Pad0 uint32
	Pad1 uint32
}

// Vertex is one entry of the packed vertex buffer: 32 bytes, std430.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// Material is one entry of the scene material table: 48 bytes, std430.
// Evaluation happens in the resolve pass; anything beyond these
// parameters (textures, full BRDFs) is downstream of this pipeline.
type Material struct {
	// BaseColor is linear RGBA.
	BaseColor [4]float32

	// Emissive is linear RGB plus an intensity multiplier in W.
	Emissive [4]float32

	Metallic  float32
	Roughness float32

	Pad0 float32
	Pad1 float32
}

// Scene is the externally produced geometry input: an ordered meshlet
// array over packed vertex/index buffers plus a material table.
// All referenced ranges are validated once by Validate; the per-frame
// pipeline trusts them afterwards.
type Scene struct {
	Meshlets  []Meshlet
	Vertices  []Vertex
	Indices   []uint32
	Materials []Material
}

// Validate checks every meshlet's ranges against the packed buffers.
// It returns the first violation found. A scene that passes Validate
// can be rendered without any per-frame bounds checking.
func (s *Scene) Validate() error {
	if len(s.Meshlets) > MaxMeshlets {
		return fmt.Errorf("%w: %d > %d", ErrTooManyMeshlets, len(s.Meshlets), MaxMeshlets)
	}

	for i := range s.Meshlets {
		m := &s.Meshlets[i]

		if m.VertexCount > MaxMeshletVertices || m.TriangleCount > MaxMeshletTriangles {
			return fmt.Errorf("%w: meshlet %d has %d vertices, %d triangles",
				ErrMeshletBudget, i, m.VertexCount, m.TriangleCount)
		}
		if uint64(m.VertexOffset)+uint64(m.VertexCount) > uint64(len(s.Vertices)) {
			return fmt.Errorf("%w: meshlet %d vertices [%d, %d)",
				ErrMeshletRange, i, m.VertexOffset, m.VertexOffset+m.VertexCount)
		}
		end := uint64(m.IndexOffset) + 3*uint64(m.TriangleCount)
		if end > uint64(len(s.Indices)) {
			return fmt.Errorf("%w: meshlet %d indices [%d, %d)",
				ErrMeshletRange, i, m.IndexOffset, end)
		}
		if int(m.MaterialIndex) >= len(s.Materials) {
			return fmt.Errorf("%w: meshlet %d references material %d of %d",
				ErrMaterialRange, i, m.MaterialIndex, len(s.Materials))
		}
		for j := uint32(0); j < 3*m.TriangleCount; j++ {
			if idx := s.Indices[m.IndexOffset+j]; idx >= m.VertexCount {
				return fmt.Errorf("%w: meshlet %d index %d = %d (window %d)",
					ErrIndexRange, i, j, idx, m.VertexCount)
			}
		}
	}
	return nil
}

// packVisID packs a meshlet index and triangle index into one
// visibility-buffer ID.
func packVisID(meshletIndex, triangle uint32) uint32 {
	return meshletIndex<<triangleIDBits | triangle
}

// unpackVisID splits a visibility-buffer ID.
func unpackVisID(id uint32) (meshletIndex, triangle uint32) {
	return id >> triangleIDBits, id & triangleIDMask
}
