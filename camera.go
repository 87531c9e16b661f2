// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera mirrors the GPU camera uniform: 288 bytes, std140-compatible.
// Matrices are column-major, matching mgl32 and WGSL mat4x4<f32>.
//
// FrustumPlanes hold normalized (nx, ny, nz, d) with the normal
// pointing inside the frustum: a sphere is outside when
// dot(n, center)+d < -radius for any plane.
type Camera struct {
	ViewProj    [16]float32
	InvViewProj [16]float32

	Position [3]float32
	pad0     float32

	ViewDir [3]float32
	pad1    float32

	FrustumPlanes [6][4]float32

	HiZSize     [2]float32
	HiZMipCount uint32

	ScreenSize [2]float32

	// EnableOcclusion and EnableBackface gate the corresponding cull
	// tests; 0 disables, nonzero enables.
	EnableOcclusion uint32
	EnableBackface  uint32

	// LODScale multiplies each meshlet's LODError when clusters are
	// classified; selection policy itself lives upstream.
	LODScale float32
}

// cameraByteSize is the GPU uniform size of Camera.
const cameraByteSize = 288

// BuildCamera derives the full GPU camera from a combined
// view-projection matrix and the camera's world position. Frustum
// planes come from the matrix rows (Gribb-Hartmann), with the near
// plane taken at z=0 for the [0,1] clip depth convention.
func BuildCamera(viewProj mgl32.Mat4, position mgl32.Vec3) Camera {
	var c Camera
	inv := viewProj.Inv()
	c.ViewProj = [16]float32(viewProj)
	c.InvViewProj = [16]float32(inv)
	c.Position = [3]float32{position.X(), position.Y(), position.Z()}

	r0 := viewProj.Row(0)
	r1 := viewProj.Row(1)
	r2 := viewProj.Row(2)
	r3 := viewProj.Row(3)

	planes := [6]mgl32.Vec4{
		r3.Add(r0), // left
		r3.Sub(r0), // right
		r3.Add(r1), // bottom
		r3.Sub(r1), // top
		r2,         // near, clip z >= 0
		r3.Sub(r2), // far
	}
	for i, p := range planes {
		n := math32.Sqrt(p.X()*p.X() + p.Y()*p.Y() + p.Z()*p.Z())
		if n > 0 {
			p = p.Mul(1 / n)
		}
		c.FrustumPlanes[i] = [4]float32{p.X(), p.Y(), p.Z(), p.W()}
	}

	// View direction from unprojecting the screen center through the
	// depth range.
	near := unproject(inv, mgl32.Vec4{0, 0, 0, 1})
	far := unproject(inv, mgl32.Vec4{0, 0, 1, 1})
	dir := far.Sub(near)
	if l := dir.Len(); l > 0 {
		dir = dir.Mul(1 / l)
	}
	c.ViewDir = [3]float32{dir.X(), dir.Y(), dir.Z()}
	return c
}

// unproject transforms a clip-space point back to world space.
func unproject(inv mgl32.Mat4, clip mgl32.Vec4) mgl32.Vec3 {
	p := inv.Mul4x1(clip)
	w := p.W()
	if w == 0 {
		w = 1
	}
	return mgl32.Vec3{p.X() / w, p.Y() / w, p.Z() / w}
}

// hiZMipCount is the mip chain length for a w by h base level:
// ceil(log2(max(w, h))) + 1.
func hiZMipCount(w, h uint32) uint32 {
	m := w
	if h > m {
		m = h
	}
	count := uint32(1)
	for m > 1 {
		m = (m + 1) / 2
		count++
	}
	return count
}
