// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"github.com/chewxy/math32"
	"github.com/gogpu/meshlet/gpu"
)

// Cluster culling: one invocation per meshlet, classifying it against
// the frustum, the backface cone and the Hi-Z pyramid in that order.
// The first failing test claims the meshlet, so the stats counters
// partition the total. Survivors are compacted into the visible list
// with a fetch-add slot.

// Stats buffer word indices, matching CullStats field order.
const (
	statTotal = iota
	statFrustum
	statOcclusion
	statBackface
	statVisible
)

// minClipW is the smallest clip-space w treated as in front of the
// camera. Anything at or below it crosses the near plane.
const minClipW = 1e-6

// cullKernel classifies one meshlet.
//
// Bindings: 0 camera uniform, 1 meshlets (read), 2 visible list,
// 3 visible counter, 4 stats, 5 Hi-Z pyramid (read, all mips).
func cullKernel(inv *gpu.Invocation) {
	meshlets := bytesToSlice[Meshlet](inv.Bindings.Buffer(0, 1))
	i := inv.GlobalID[0]
	if i >= uint32(len(meshlets)) {
		return
	}
	cam := bytesToStruct[Camera](inv.Bindings.Buffer(0, 0))
	m := &meshlets[i]
	stats := gpu.U32(inv.Bindings.Buffer(0, 4))

	if sphereOutsideFrustum(cam, m.Center, m.Radius) {
		gpu.AtomicAddU32(stats, statFrustum, 1)
		return
	}
	if cam.EnableBackface != 0 && coneFacesAway(cam, m) {
		gpu.AtomicAddU32(stats, statBackface, 1)
		return
	}
	if cam.EnableOcclusion != 0 &&
		sphereOccluded(cam, inv.Bindings.Texture(0, 5), m.Center, m.Radius) {
		gpu.AtomicAddU32(stats, statOcclusion, 1)
		return
	}

	count := gpu.U32(inv.Bindings.Buffer(0, 3))
	slot := gpu.AtomicAddU32(count, 0, 1)
	gpu.U32(inv.Bindings.Buffer(0, 2))[slot] = i
	gpu.AtomicAddU32(stats, statVisible, 1)
}

// cullFinalizeKernel converts the visible count into rasterizer
// indirect dispatch args: x covers the 128-triangle capacity at
// workgroup size 64, y is one workgroup per visible slot.
//
// Bindings: 0 visible counter (read), 1 indirect args.
func cullFinalizeKernel(inv *gpu.Invocation) {
	if inv.GlobalID != [3]uint32{} {
		return
	}
	n := gpu.U32(inv.Bindings.Buffer(0, 0))[0]
	args := gpu.U32(inv.Bindings.Buffer(0, 1))
	args[0] = 2
	args[1] = n
	args[2] = 1
}

// sphereOutsideFrustum reports whether the sphere is fully behind any
// frustum plane. Plane normals point inward.
func sphereOutsideFrustum(cam *Camera, center [3]float32, radius float32) bool {
	for p := range cam.FrustumPlanes {
		pl := &cam.FrustumPlanes[p]
		d := pl[0]*center[0] + pl[1]*center[1] + pl[2]*center[2] + pl[3]
		if d < -radius {
			return true
		}
	}
	return false
}

// coneFacesAway reports whether every triangle in the cluster's normal
// cone faces away from the camera. The radius/dist slop accounts for
// geometry offset from the sphere center, keeping the test conservative.
func coneFacesAway(cam *Camera, m *Meshlet) bool {
	if m.ConeCutoff <= -1 {
		return false
	}
	dir := sub3(m.Center, cam.Position)
	dist := len3(dir)
	if dist <= m.Radius {
		return false
	}
	view := scale3(dir, 1/dist)
	sinHalf := math32.Sqrt(math32.Max(0, 1-m.ConeCutoff*m.ConeCutoff))
	return dot3(view, m.ConeAxis) > sinHalf+m.Radius/dist
}

// sphereOccluded tests the sphere's camera-nearest point against the
// depth pyramid. Spheres crossing the near plane are never culled.
func sphereOccluded(cam *Camera, hiz *gpu.TextureBinding, center [3]float32, radius float32) bool {
	dir := sub3(center, cam.Position)
	dist := len3(dir)
	if dist <= radius {
		return false
	}
	view := scale3(dir, 1/dist)

	nearest := sub3(center, scale3(view, radius))
	clip := mulPoint(&cam.ViewProj, nearest)
	if clip[3] <= minClipW {
		return false
	}
	ndcX := clip[0] / clip[3]
	ndcY := clip[1] / clip[3]
	depth := clip[2] / clip[3]
	if depth < 0 {
		return false
	}

	// Projected extent: push the center sideways by the radius and
	// measure the pixel distance.
	up := [3]float32{0, 1, 0}
	if math32.Abs(dot3(view, up)) > 0.99 {
		up = [3]float32{1, 0, 0}
	}
	perp := normalize3(cross3(view, up))
	edgeClip := mulPoint(&cam.ViewProj, add3(center, scale3(perp, radius)))
	if edgeClip[3] <= minClipW {
		return false
	}

	w := cam.HiZSize[0]
	h := cam.HiZSize[1]
	sx := (ndcX*0.5 + 0.5) * w
	sy := (0.5 - ndcY*0.5) * h
	ex := (edgeClip[0]/edgeClip[3]*0.5 + 0.5) * w
	ey := (0.5 - edgeClip[1]/edgeClip[3]*0.5) * h
	radiusPx := math32.Hypot(ex-sx, ey-sy)

	// Pick the mip whose texels cover the projected footprint, so the
	// 2x2 gather bounds the whole sphere.
	mip := uint32(0)
	if lg := math32.Ceil(math32.Log2(math32.Max(radiusPx*2, 1))); lg > 0 {
		mip = uint32(lg)
	}
	if mip > cam.HiZMipCount-1 {
		mip = cam.HiZMipCount - 1
	}

	lvl := &hiz.Mips[mip]
	tx := sx / w * float32(lvl.Width)
	ty := sy / h * float32(lvl.Height)
	x0 := clampI32(int32(tx-0.5), 0, int32(lvl.Width)-1)
	y0 := clampI32(int32(ty-0.5), 0, int32(lvl.Height)-1)
	x1 := min(x0+1, int32(lvl.Width)-1)
	y1 := min(y0+1, int32(lvl.Height)-1)

	px := lvl.F32()
	farthest := px[y0*int32(lvl.Width)+x0]
	for _, v := range [3]float32{
		px[y0*int32(lvl.Width)+x1],
		px[y1*int32(lvl.Width)+x0],
		px[y1*int32(lvl.Width)+x1],
	} {
		if v > farthest {
			farthest = v
		}
	}
	return depth > farthest
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
