// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"math"

	"github.com/gogpu/meshlet/gpu"
)

// Hi-Z pyramid builder.
//
// Mip 0 is seeded from the previous frame's visibility words, before the
// clear pass recycles them. Each further mip is a 2x2 max reduction, so
// every texel bounds the farthest depth of its screen footprint and the
// occlusion test stays conservative under the one-frame lag.

// hizSeedKernel unpacks last frame's depth into Hi-Z mip 0.
//
// Bindings: 0 camera uniform, 1 visibility words (read), 2 mip 0
// storage view.
func hizSeedKernel(inv *gpu.Invocation) {
	cam := bytesToStruct[Camera](inv.Bindings.Buffer(0, 0))
	w := uint32(cam.ScreenSize[0])
	h := uint32(cam.ScreenSize[1])
	x, y := inv.GlobalID[0], inv.GlobalID[1]
	if x >= w || y >= h {
		return
	}

	word := gpu.U64(inv.Bindings.Buffer(0, 1))[y*w+x]
	depth := float32(1)
	if uint32(word) != visIDNone {
		depth = math.Float32frombits(uint32(word >> 32))
	}
	dst := &inv.Bindings.Texture(0, 2).Mips[0]
	dst.F32()[y*dst.Width+x] = depth
}

// hizReduceKernel computes one destination texel as the max of its 2x2
// source footprint, clamping reads on odd-sized levels.
//
// Bindings: 0 source mip (read), 1 destination mip (storage view).
func hizReduceKernel(inv *gpu.Invocation) {
	src := &inv.Bindings.Texture(0, 0).Mips[0]
	dst := &inv.Bindings.Texture(0, 1).Mips[0]
	x, y := inv.GlobalID[0], inv.GlobalID[1]
	if x >= dst.Width || y >= dst.Height {
		return
	}

	sp := src.F32()
	sx := x * 2
	sy := y * 2
	sx1 := min(sx+1, src.Width-1)
	sy1 := min(sy+1, src.Height-1)

	d := sp[sy*src.Width+sx]
	if v := sp[sy*src.Width+sx1]; v > d {
		d = v
	}
	if v := sp[sy1*src.Width+sx]; v > d {
		d = v
	}
	if v := sp[sy1*src.Width+sx1]; v > d {
		d = v
	}
	dst.F32()[y*dst.Width+x] = d
}

// clearVisibilityKernel resets every visibility word to the background
// sentinel. Runs after the seed pass has consumed the old contents.
//
// Bindings: 0 camera uniform, 1 visibility words.
func clearVisibilityKernel(inv *gpu.Invocation) {
	cam := bytesToStruct[Camera](inv.Bindings.Buffer(0, 0))
	w := uint32(cam.ScreenSize[0])
	h := uint32(cam.ScreenSize[1])
	x, y := inv.GlobalID[0], inv.GlobalID[1]
	if x >= w || y >= h {
		return
	}
	gpu.U64(inv.Bindings.Buffer(0, 1))[y*w+x] = ^uint64(0)
}
