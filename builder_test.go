// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"errors"
	"math"
	"testing"
)

func TestBuildBounds_SphereContainsVertices(t *testing.T) {
	verts := frontTri(4)
	verts = append(verts, backTri(7)...)
	indices := []uint32{0, 1, 2, 3, 4, 5}

	center, radius, _, _ := BuildBounds(verts, indices)
	for i, v := range verts {
		d := len3(sub3(v.Position, center))
		if d > radius+1e-5 {
			t.Errorf("vertex %d at distance %g outside sphere radius %g", i, d, radius)
		}
	}
}

func TestBuildBounds_ConeOfFlatCluster(t *testing.T) {
	// A single flat triangle has a degenerate cone: axis equals the
	// face normal and cutoff is 1.
	_, _, axis, cutoff := BuildBounds(frontTri(4), []uint32{0, 1, 2})

	if math.Abs(float64(cutoff-1)) > 1e-5 {
		t.Errorf("cutoff = %g, want 1", cutoff)
	}
	want := [3]float32{0, 0, -1}
	for i := range want {
		if math.Abs(float64(axis[i]-want[i])) > 1e-5 {
			t.Fatalf("axis = %v, want %v", axis, want)
		}
	}
}

func TestBuildBounds_ConeBoundsAllNormals(t *testing.T) {
	// A quad folded along y gives two distinct face normals; both must
	// lie inside the cone.
	verts := []Vertex{
		{Position: [3]float32{0, 0, 0}},
		{Position: [3]float32{0, 1, 0}},
		{Position: [3]float32{1, 0.5, 0.5}},
		{Position: [3]float32{-1, 0.5, 0.5}},
	}
	indices := []uint32{0, 2, 1, 0, 1, 3}

	_, _, axis, cutoff := BuildBounds(verts, indices)
	if cutoff >= 1 || cutoff <= -1 {
		t.Fatalf("cutoff = %g, want a proper cone", cutoff)
	}

	for t3 := 0; t3+2 < len(indices); t3 += 3 {
		a := verts[indices[t3]].Position
		b := verts[indices[t3+1]].Position
		c := verts[indices[t3+2]].Position
		n := normalize3(cross3(sub3(b, a), sub3(c, a)))
		if d := dot3(n, axis); d < cutoff-1e-5 {
			t.Errorf("triangle %d normal agreement %g below cutoff %g", t3/3, d, cutoff)
		}
	}
}

func TestBuildBounds_DegenerateGeometry(t *testing.T) {
	// All-collinear vertices produce no usable normals; the cone test
	// must be disabled rather than reject the cluster.
	verts := []Vertex{
		{Position: [3]float32{0, 0, 0}},
		{Position: [3]float32{1, 0, 0}},
		{Position: [3]float32{2, 0, 0}},
	}
	_, _, _, cutoff := BuildBounds(verts, []uint32{0, 1, 2})
	if cutoff != -1 {
		t.Errorf("cutoff = %g, want -1 for degenerate cluster", cutoff)
	}

	if _, _, _, empty := BuildBounds(nil, nil); empty != -1 {
		t.Errorf("cutoff = %g, want -1 for empty cluster", empty)
	}
}

func TestAppendMeshlet(t *testing.T) {
	scene := &Scene{Materials: []Material{{}, {}}}

	first, err := AppendMeshlet(scene, frontTri(4), []uint32{0, 1, 2}, 0)
	if err != nil {
		t.Fatalf("AppendMeshlet: %v", err)
	}
	second, err := AppendMeshlet(scene, frontTri(6), []uint32{0, 1, 2}, 1)
	if err != nil {
		t.Fatalf("AppendMeshlet: %v", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("meshlet indices = %d, %d, want 0, 1", first, second)
	}

	m := scene.Meshlets[1]
	if m.VertexOffset != 3 || m.IndexOffset != 3 || m.TriangleCount != 1 {
		t.Errorf("second meshlet windows = %+v", m)
	}
	if m.MaterialIndex != 1 {
		t.Errorf("MaterialIndex = %d, want 1", m.MaterialIndex)
	}
	if err := scene.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestAppendMeshlet_Errors(t *testing.T) {
	scene := &Scene{Materials: []Material{{}}}

	if _, err := AppendMeshlet(scene, frontTri(4), []uint32{0, 1}, 0); !errors.Is(err, ErrIndexRange) {
		t.Errorf("partial triangle: err = %v, want %v", err, ErrIndexRange)
	}
	if _, err := AppendMeshlet(scene, frontTri(4), []uint32{0, 1, 5}, 0); !errors.Is(err, ErrIndexRange) {
		t.Errorf("out-of-window index: err = %v, want %v", err, ErrIndexRange)
	}

	big := make([]Vertex, MaxMeshletVertices+1)
	if _, err := AppendMeshlet(scene, big, nil, 0); !errors.Is(err, ErrMeshletBudget) {
		t.Errorf("oversized cluster: err = %v, want %v", err, ErrMeshletBudget)
	}
}
