// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"github.com/gogpu/meshlet/gpu"
)

// Material resolve: one invocation per pixel. The visibility word names
// the triangle; everything else (barycentrics, attributes) is
// reconstructed here from the same transforms the rasterizer used, so
// no per-fragment attribute storage exists anywhere.

// Deferred target indices, in resolve bind group order.
const (
	targetAlbedo = iota
	targetNormal
	targetParams
	targetEmissive
	targetCount
)

// resolveKernel shades one pixel into the four deferred targets.
//
// Bindings: 0 camera uniform, 1 meshlets (read), 2 vertices (read),
// 3 indices (read), 4 materials (read), 5 visibility words (read),
// 6..9 albedo/normal/params/emissive storage views.
func resolveKernel(inv *gpu.Invocation) {
	cam := bytesToStruct[Camera](inv.Bindings.Buffer(0, 0))
	w := uint32(cam.ScreenSize[0])
	h := uint32(cam.ScreenSize[1])
	x, y := inv.GlobalID[0], inv.GlobalID[1]
	if x >= w || y >= h {
		return
	}

	var out [targetCount][4]float32
	word := gpu.U64(inv.Bindings.Buffer(0, 5))[y*w+x]
	if id := uint32(word); id != visIDNone {
		meshIdx, tri := unpackVisID(id)
		meshlets := bytesToSlice[Meshlet](inv.Bindings.Buffer(0, 1))
		verts := bytesToSlice[Vertex](inv.Bindings.Buffer(0, 2))
		indices := gpu.U32(inv.Bindings.Buffer(0, 3))
		materials := bytesToSlice[Material](inv.Bindings.Buffer(0, 4))
		m := &meshlets[meshIdx]

		base := m.IndexOffset + tri*3
		var v [3]Vertex
		var sx, sy, invW [3]float32
		for i := 0; i < 3; i++ {
			v[i] = verts[m.VertexOffset+indices[base+uint32(i)]]
			clip := mulPoint(&cam.ViewProj, v[i].Position)
			cw := clip[3]
			if cw <= minClipW {
				cw = minClipW
			}
			invW[i] = 1 / cw
			sx[i] = (clip[0]*invW[i]*0.5 + 0.5) * cam.ScreenSize[0]
			sy[i] = (0.5 - clip[1]*invW[i]*0.5) * cam.ScreenSize[1]
		}

		// Screen barycentrics at the pixel center, then 1/w weighting
		// for perspective-correct attribute interpolation.
		cx := float32(x) + 0.5
		cy := float32(y) + 0.5
		area2 := (sx[1]-sx[0])*(sy[2]-sy[0]) - (sy[1]-sy[0])*(sx[2]-sx[0])
		if area2 == 0 {
			area2 = 1
		}
		b0 := ((sx[2]-sx[1])*(cy-sy[1]) - (sy[2]-sy[1])*(cx-sx[1])) / area2
		b1 := ((sx[0]-sx[2])*(cy-sy[2]) - (sy[0]-sy[2])*(cx-sx[2])) / area2
		b2 := 1 - b0 - b1

		p0 := b0 * invW[0]
		p1 := b1 * invW[1]
		p2 := b2 * invW[2]
		sum := p0 + p1 + p2
		if sum != 0 {
			p0 /= sum
			p1 /= sum
			p2 /= sum
		}

		normal := normalize3(add3(add3(
			scale3(v[0].Normal, p0),
			scale3(v[1].Normal, p1)),
			scale3(v[2].Normal, p2)))
		uv := [2]float32{
			v[0].UV[0]*p0 + v[1].UV[0]*p1 + v[2].UV[0]*p2,
			v[0].UV[1]*p0 + v[1].UV[1]*p1 + v[2].UV[1]*p2,
		}

		mat := &materials[m.MaterialIndex]
		out[targetAlbedo] = mat.BaseColor
		out[targetNormal] = [4]float32{
			normal[0]*0.5 + 0.5,
			normal[1]*0.5 + 0.5,
			normal[2]*0.5 + 0.5,
			1,
		}
		out[targetParams] = [4]float32{
			mat.Metallic,
			mat.Roughness,
			uv[0],
			uv[1],
		}
		out[targetEmissive] = [4]float32{
			mat.Emissive[0] * mat.Emissive[3],
			mat.Emissive[1] * mat.Emissive[3],
			mat.Emissive[2] * mat.Emissive[3],
			1,
		}
	}

	idx := (y*w + x) * 4
	for t := 0; t < targetCount; t++ {
		px := inv.Bindings.Texture(0, uint32(6+t)).Mips[0].F32()
		copy(px[idx:idx+4], out[t][:])
	}
}
