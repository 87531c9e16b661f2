// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

// CullStats mirrors the GPU stats buffer: 32 bytes, std430. The culling
// pass accumulates the counters atomically; Total is written host-side
// when the frame is recorded.
//
// Rejection counters are mutually exclusive: a meshlet rejected by the
// frustum test is never tested against the cone or the depth pyramid,
// so Visible+FrustumCulled+OcclusionCulled+BackfaceCulled == Total.
type CullStats struct {
	Total           uint32
	FrustumCulled   uint32
	OcclusionCulled uint32
	BackfaceCulled  uint32
	Visible         uint32

	Pad0 uint32
	Pad1 uint32
	Pad2 uint32
}

// Consistent reports whether the counters partition Total.
func (s CullStats) Consistent() bool {
	return s.Visible+s.FrustumCulled+s.OcclusionCulled+s.BackfaceCulled == s.Total
}
