// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Cluster building helpers. Meshlet stores are produced offline by an
// asset pipeline; these helpers cover tools and tests that need valid
// descriptors from raw triangle data.

// BuildBounds computes the bounding sphere and normal cone of one
// cluster. indices are local to vertices. A cluster with no usable
// triangle normals gets ConeCutoff -1, which disables its cone test.
func BuildBounds(vertices []Vertex, indices []uint32) (center [3]float32, radius float32, coneAxis [3]float32, coneCutoff float32) {
	if len(vertices) == 0 {
		return [3]float32{}, 0, [3]float32{}, -1
	}

	for _, v := range vertices {
		center = add3(center, v.Position)
	}
	center = scale3(center, 1/float32(len(vertices)))
	for _, v := range vertices {
		if d := len3(sub3(v.Position, center)); d > radius {
			radius = d
		}
	}

	var axis [3]float32
	normals := make([][3]float32, 0, len(indices)/3)
	for t := 0; t+2 < len(indices); t += 3 {
		a := vertices[indices[t]].Position
		b := vertices[indices[t+1]].Position
		c := vertices[indices[t+2]].Position
		n := cross3(sub3(b, a), sub3(c, a))
		if l := len3(n); l > 0 {
			n = scale3(n, 1/l)
			normals = append(normals, n)
			axis = add3(axis, n)
		}
	}
	if len(normals) == 0 || len3(axis) == 0 {
		return center, radius, [3]float32{}, -1
	}
	axis = normalize3(axis)

	// Cutoff is the cosine of the cone half-angle: the smallest
	// agreement between any triangle normal and the axis.
	cutoff := float32(1)
	for _, n := range normals {
		if d := dot3(n, axis); d < cutoff {
			cutoff = d
		}
	}
	cutoff = math32.Max(cutoff, -1)
	return center, radius, axis, cutoff
}

// AppendMeshlet appends one cluster to the scene: vertices and indices
// are copied into the packed buffers and a descriptor with computed
// bounds is added. indices are local to vertices. Returns the new
// meshlet's index.
func AppendMeshlet(scene *Scene, vertices []Vertex, indices []uint32, materialIndex uint32) (uint32, error) {
	if len(vertices) > MaxMeshletVertices || len(indices)/3 > MaxMeshletTriangles {
		return 0, fmt.Errorf("%w: %d vertices, %d triangles",
			ErrMeshletBudget, len(vertices), len(indices)/3)
	}
	if len(indices)%3 != 0 {
		return 0, fmt.Errorf("%w: %d indices is not a triangle list", ErrIndexRange, len(indices))
	}
	if len(scene.Meshlets) >= MaxMeshlets {
		return 0, ErrTooManyMeshlets
	}
	for _, idx := range indices {
		if idx >= uint32(len(vertices)) {
			return 0, fmt.Errorf("%w: index %d of %d vertices", ErrIndexRange, idx, len(vertices))
		}
	}

	center, radius, axis, cutoff := BuildBounds(vertices, indices)
	m := Meshlet{
		Center:        center,
		Radius:        radius,
		ConeAxis:      axis,
		ConeCutoff:    cutoff,
		VertexOffset:  uint32(len(scene.Vertices)),
		VertexCount:   uint32(len(vertices)),
		IndexOffset:   uint32(len(scene.Indices)),
		TriangleCount: uint32(len(indices) / 3),
		MaterialIndex: materialIndex,
	}
	scene.Vertices = append(scene.Vertices, vertices...)
	scene.Indices = append(scene.Indices, indices...)
	scene.Meshlets = append(scene.Meshlets, m)
	return uint32(len(scene.Meshlets) - 1), nil
}
