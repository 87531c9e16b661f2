// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"errors"
	"testing"
	"unsafe"
)

// ===== GPU layout =====

func TestGPULayoutSizes(t *testing.T) {
	// The WGSL struct declarations mirror these byte layouts exactly.
	tests := []struct {
		name string
		size uintptr
		want uintptr
	}{
		{"Meshlet", unsafe.Sizeof(Meshlet{}), 64},
		{"Vertex", unsafe.Sizeof(Vertex{}), 32},
		{"Material", unsafe.Sizeof(Material{}), 48},
		{"Camera", unsafe.Sizeof(Camera{}), cameraByteSize},
		{"CullStats", unsafe.Sizeof(CullStats{}), 32},
	}
	for _, tt := range tests {
		if tt.size != tt.want {
			t.Errorf("sizeof(%s) = %d, want %d", tt.name, tt.size, tt.want)
		}
	}
}

// ===== Scene validation =====

func TestScene_Validate(t *testing.T) {
	valid := func() *Scene {
		s := &Scene{Materials: []Material{{}}}
		if _, err := AppendMeshlet(s, frontTri(4), []uint32{0, 1, 2}, 0); err != nil {
			t.Fatalf("AppendMeshlet: %v", err)
		}
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Scene)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*Scene) {},
		},
		{
			name:    "vertex budget",
			mutate:  func(s *Scene) { s.Meshlets[0].VertexCount = MaxMeshletVertices + 1 },
			wantErr: ErrMeshletBudget,
		},
		{
			name:    "triangle budget",
			mutate:  func(s *Scene) { s.Meshlets[0].TriangleCount = MaxMeshletTriangles + 1 },
			wantErr: ErrMeshletBudget,
		},
		{
			name:    "vertex range",
			mutate:  func(s *Scene) { s.Meshlets[0].VertexOffset = 100 },
			wantErr: ErrMeshletRange,
		},
		{
			name:    "index range",
			mutate:  func(s *Scene) { s.Meshlets[0].IndexOffset = 100 },
			wantErr: ErrMeshletRange,
		},
		{
			name:    "material range",
			mutate:  func(s *Scene) { s.Meshlets[0].MaterialIndex = 3 },
			wantErr: ErrMaterialRange,
		},
		{
			name:    "local index outside window",
			mutate:  func(s *Scene) { s.Indices[1] = 9 },
			wantErr: ErrIndexRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ===== Visibility IDs =====

func TestVisIDPackRoundTrip(t *testing.T) {
	tests := []struct {
		meshlet, triangle uint32
	}{
		{0, 0},
		{0, MaxMeshletTriangles - 1},
		{1, 7},
		{MaxMeshlets - 1, MaxMeshletTriangles - 1},
	}
	for _, tt := range tests {
		id := packVisID(tt.meshlet, tt.triangle)
		if id == visIDNone {
			t.Errorf("packVisID(%d, %d) collides with the background sentinel", tt.meshlet, tt.triangle)
		}
		m, tri := unpackVisID(id)
		if m != tt.meshlet || tri != tt.triangle {
			t.Errorf("unpack(pack(%d, %d)) = (%d, %d)", tt.meshlet, tt.triangle, m, tri)
		}
	}
}

// ===== Cull stats =====

func TestCullStats_Consistent(t *testing.T) {
	tests := []struct {
		name  string
		stats CullStats
		want  bool
	}{
		{"zero", CullStats{}, true},
		{"partitioned", CullStats{Total: 10, FrustumCulled: 3, OcclusionCulled: 2, BackfaceCulled: 1, Visible: 4}, true},
		{"lost cluster", CullStats{Total: 10, FrustumCulled: 3, Visible: 4}, false},
		{"double counted", CullStats{Total: 4, FrustumCulled: 3, Visible: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.Consistent(); got != tt.want {
				t.Errorf("Consistent() = %v, want %v", got, tt.want)
			}
		})
	}
}
