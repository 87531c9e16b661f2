// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gogpu/meshlet/gpu"
)

// Software rasterizer: one invocation per (triangle, visible slot),
// driven by the indirect args the culling finalize kernel wrote.
// Coverage is an edge-function test at pixel centers; each covered
// pixel merges a packed (depth, id) word with a 64-bit atomic min, so
// the nearest fragment and its id land together regardless of
// scheduling order.

// DefaultMaxPixelsPerTriangle bounds the bbox area a single triangle
// may scan. Triangles past the guard are skipped: at that size they
// belong on a hardware raster path.
const DefaultMaxPixelsPerTriangle = 16384

// rasterKernel returns the rasterization kernel with the configured
// bbox guard baked in.
//
// Bindings: 0 camera uniform, 1 meshlets (read), 2 vertices (read),
// 3 indices (read), 4 visible list (read), 5 visibility words.
func rasterKernel(maxPixels uint32) gpu.Kernel {
	return func(inv *gpu.Invocation) {
		tri := inv.GlobalID[0]
		slot := inv.GlobalID[1]
		if tri >= MaxMeshletTriangles {
			return
		}

		meshIdx := gpu.U32(inv.Bindings.Buffer(0, 4))[slot]
		meshlets := bytesToSlice[Meshlet](inv.Bindings.Buffer(0, 1))
		m := &meshlets[meshIdx]
		if tri >= m.TriangleCount {
			return
		}
		cam := bytesToStruct[Camera](inv.Bindings.Buffer(0, 0))
		verts := bytesToSlice[Vertex](inv.Bindings.Buffer(0, 2))
		indices := gpu.U32(inv.Bindings.Buffer(0, 3))

		base := m.IndexOffset + tri*3
		var sx, sy, sz [3]float32
		for v := 0; v < 3; v++ {
			p := verts[m.VertexOffset+indices[base+uint32(v)]].Position
			clip := mulPoint(&cam.ViewProj, p)
			if clip[3] <= minClipW {
				return
			}
			invW := 1 / clip[3]
			sx[v] = (clip[0]*invW*0.5 + 0.5) * cam.ScreenSize[0]
			sy[v] = (0.5 - clip[1]*invW*0.5) * cam.ScreenSize[1]
			sz[v] = clip[2] * invW
		}

		// Front faces wind counter-clockwise in y-down framebuffer
		// coordinates: positive signed area. Degenerate and backfacing
		// triangles are dropped here.
		area2 := (sx[1]-sx[0])*(sy[2]-sy[0]) - (sy[1]-sy[0])*(sx[2]-sx[0])
		if area2 <= 0 {
			return
		}

		w := int32(cam.ScreenSize[0])
		h := int32(cam.ScreenSize[1])
		minX := clampI32(int32(math32.Floor(min(sx[0], sx[1], sx[2]))), 0, w-1)
		maxX := clampI32(int32(math32.Ceil(max(sx[0], sx[1], sx[2]))), 0, w-1)
		minY := clampI32(int32(math32.Floor(min(sy[0], sy[1], sy[2]))), 0, h-1)
		maxY := clampI32(int32(math32.Ceil(max(sy[0], sy[1], sy[2]))), 0, h-1)
		if uint32(maxX-minX+1)*uint32(maxY-minY+1) > maxPixels {
			return
		}

		words := gpu.U64(inv.Bindings.Buffer(0, 5))
		visID := packVisID(meshIdx, tri)
		for py := minY; py <= maxY; py++ {
			cy := float32(py) + 0.5
			for px := minX; px <= maxX; px++ {
				cx := float32(px) + 0.5
				w0 := (sx[2]-sx[1])*(cy-sy[1]) - (sy[2]-sy[1])*(cx-sx[1])
				w1 := (sx[0]-sx[2])*(cy-sy[2]) - (sy[0]-sy[2])*(cx-sx[2])
				w2 := (sx[1]-sx[0])*(cy-sy[0]) - (sy[1]-sy[0])*(cx-sx[0])
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				depth := (w0*sz[0] + w1*sz[1] + w2*sz[2]) / area2
				if depth < 0 || depth > 1 {
					continue
				}
				word := uint64(math.Float32bits(depth))<<32 | uint64(visID)
				gpu.AtomicMinU64(words, uint32(py)*uint32(w)+uint32(px), word)
			}
		}
	}
}
