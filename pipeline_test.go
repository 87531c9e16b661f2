// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/meshlet/gpu"
	"github.com/gogpu/meshlet/gpu/soft"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const testSize = 64

// orthoVP builds an orthographic view-projection with NDC x/y equal to
// world x/y and depth (z-near)/(far-near), matching the [0,1] clip
// depth convention.
func orthoVP(near, far float32) mgl32.Mat4 {
	d := far - near
	return mgl32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1 / d, 0,
		0, 0, -near / d, 1,
	}
}

// testFrame looks down +z from in front of the near plane; depth of a
// point at world z is (z-1)/8.
func testFrame() Frame {
	return Frame{ViewProj: orthoVP(1, 9), Position: mgl32.Vec3{0, 0, -1}}
}

func testDepth(z float32) float32 { return (z - 1) / 8 }

// frontTri is a large camera-facing triangle at world depth z.
func frontTri(z float32) []Vertex {
	n := [3]float32{0, 0, -1}
	return []Vertex{
		{Position: [3]float32{0, 0.8, z}, Normal: n, UV: [2]float32{0.5, 1}},
		{Position: [3]float32{0.8, -0.8, z}, Normal: n, UV: [2]float32{1, 0}},
		{Position: [3]float32{-0.8, -0.8, z}, Normal: n, UV: [2]float32{0, 0}},
	}
}

// backTri is frontTri with reversed winding and normals.
func backTri(z float32) []Vertex {
	v := frontTri(z)
	v[1], v[2] = v[2], v[1]
	for i := range v {
		v[i].Normal = [3]float32{0, 0, 1}
	}
	return v
}

// fullQuad is a camera-facing quad overhanging the whole viewport, so
// every covered pixel (and thus every Hi-Z texel) carries its depth.
func fullQuad(z float32) ([]Vertex, []uint32) {
	n := [3]float32{0, 0, -1}
	verts := []Vertex{
		{Position: [3]float32{-1.2, 1.2, z}, Normal: n},
		{Position: [3]float32{1.2, 1.2, z}, Normal: n, UV: [2]float32{1, 0}},
		{Position: [3]float32{1.2, -1.2, z}, Normal: n, UV: [2]float32{1, 1}},
		{Position: [3]float32{-1.2, -1.2, z}, Normal: n, UV: [2]float32{0, 1}},
	}
	return verts, []uint32{0, 1, 2, 0, 2, 3}
}

func testScene(t *testing.T, clusters ...[]Vertex) *Scene {
	t.Helper()
	scene := &Scene{Materials: []Material{{
		BaseColor: [4]float32{1, 0, 0, 1},
		Emissive:  [4]float32{0, 1, 0, 2},
		Metallic:  0.25,
		Roughness: 0.5,
	}}}
	for _, verts := range clusters {
		if _, err := AppendMeshlet(scene, verts, []uint32{0, 1, 2}, 0); err != nil {
			t.Fatalf("AppendMeshlet: %v", err)
		}
	}
	return scene
}

func newTestPipeline(t *testing.T, cfg Config, scene *Scene) *Pipeline {
	t.Helper()
	dev := soft.NewDevice(0)
	t.Cleanup(dev.Close)

	if cfg.Width == 0 {
		cfg.Width = testSize
		cfg.Height = testSize
	}
	p, err := NewPipeline(dev, cfg, scene)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(p.Destroy)
	return p
}

// countCovered scans the visibility buffer for non-background pixels.
func countCovered(p *Pipeline) int {
	covered := 0
	for y := uint32(0); y < p.cfg.Height; y++ {
		for x := uint32(0); x < p.cfg.Width; x++ {
			if _, _, ok := p.VisibilityAt(x, y); ok {
				covered++
			}
		}
	}
	return covered
}

// =============================================================================
// End-To-End Render Tests
// =============================================================================

func TestPipeline_EmptyScene(t *testing.T) {
	scene := &Scene{Materials: []Material{{}}}
	p := newTestPipeline(t, Config{}, scene)

	if err := p.Render(testFrame()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	stats := p.Stats()
	if stats.Total != 0 || stats.Visible != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
	if !stats.Consistent() {
		t.Errorf("stats counters do not partition total: %+v", stats)
	}
	if got := countCovered(p); got != 0 {
		t.Errorf("covered pixels = %d, want 0", got)
	}
}

func TestPipeline_SingleMeshletVisible(t *testing.T) {
	p := newTestPipeline(t, Config{}, testScene(t, frontTri(4)))

	if err := p.Render(testFrame()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	stats := p.Stats()
	if stats.Visible != 1 {
		t.Fatalf("Visible = %d, want 1", stats.Visible)
	}
	if !stats.Consistent() {
		t.Errorf("stats counters do not partition total: %+v", stats)
	}
	if got := countCovered(p); got == 0 {
		t.Error("expected at least one covered pixel")
	}

	mi, tri, ok := p.VisibilityAt(testSize/2, testSize/2)
	if !ok {
		t.Fatal("center pixel should be covered")
	}
	if mi != 0 || tri != 0 {
		t.Errorf("VisibilityAt(center) = (%d, %d), want (0, 0)", mi, tri)
	}
}

func TestPipeline_DepthMatchesAnalytic(t *testing.T) {
	p := newTestPipeline(t, Config{}, testScene(t, frontTri(4)))

	if err := p.Render(testFrame()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	// The triangle lies in a constant-z plane, so every covered pixel
	// carries the same NDC depth.
	want := testDepth(4)
	got := p.DepthAt(testSize/2, testSize/2)
	if math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("DepthAt(center) = %g, want %g", got, want)
	}
	if bg := p.DepthAt(0, 0); bg != 1 {
		t.Errorf("DepthAt(background) = %g, want 1", bg)
	}
}

func TestPipeline_CoverageMatchesEdgeFunctions(t *testing.T) {
	p := newTestPipeline(t, Config{}, testScene(t, frontTri(4)))

	if err := p.Render(testFrame()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	// Recompute the triangle's screen-space edge functions and check
	// them against the rasterized coverage. Pixels within a small band
	// of an edge are skipped to stay clear of float ordering effects.
	var sx, sy [3]float32
	for i, v := range frontTri(4) {
		sx[i] = (v.Position[0]*0.5 + 0.5) * testSize
		sy[i] = (0.5 - v.Position[1]*0.5) * testSize
	}
	area2 := (sx[1]-sx[0])*(sy[2]-sy[0]) - (sy[1]-sy[0])*(sx[2]-sx[0])
	band := area2 * 1e-4
	wantDepth := testDepth(4)

	for y := uint32(0); y < testSize; y++ {
		for x := uint32(0); x < testSize; x++ {
			cx := float32(x) + 0.5
			cy := float32(y) + 0.5
			w0 := (sx[2]-sx[1])*(cy-sy[1]) - (sy[2]-sy[1])*(cx-sx[1])
			w1 := (sx[0]-sx[2])*(cy-sy[2]) - (sy[0]-sy[2])*(cx-sx[2])
			w2 := (sx[1]-sx[0])*(cy-sy[0]) - (sy[1]-sy[0])*(cx-sx[0])
			minW := w0
			if w1 < minW {
				minW = w1
			}
			if w2 < minW {
				minW = w2
			}

			_, _, covered := p.VisibilityAt(x, y)
			switch {
			case minW > band && !covered:
				t.Fatalf("interior pixel (%d,%d) not written", x, y)
			case minW < -band && covered:
				t.Fatalf("pixel (%d,%d) outside the edge boundary was written", x, y)
			}
			if covered {
				if got := p.DepthAt(x, y); math.Abs(float64(got-wantDepth)) > 1e-5 {
					t.Fatalf("depth at (%d,%d) = %g, want %g", x, y, got, wantDepth)
				}
			}
		}
	}
}

func TestPipeline_NearestWinsBothOrders(t *testing.T) {
	// Two identical footprints at different depths, inserted in both
	// orders. The nearer one must own the overlapped pixels either way.
	for name, order := range map[string][2]float32{
		"near first": {4, 8},
		"far first":  {8, 4},
	} {
		t.Run(name, func(t *testing.T) {
			scene := testScene(t, frontTri(order[0]), frontTri(order[1]))
			p := newTestPipeline(t, Config{}, scene)

			if err := p.Render(testFrame()); err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got := p.Stats().Visible; got != 2 {
				t.Fatalf("Visible = %d, want 2", got)
			}

			wantMeshlet := uint32(0)
			if order[1] < order[0] {
				wantMeshlet = 1
			}
			mi, _, ok := p.VisibilityAt(testSize/2, testSize/2)
			if !ok {
				t.Fatal("center pixel should be covered")
			}
			if mi != wantMeshlet {
				t.Errorf("winner meshlet = %d, want %d", mi, wantMeshlet)
			}
			want := testDepth(4)
			if got := p.DepthAt(testSize/2, testSize/2); math.Abs(float64(got-want)) > 1e-5 {
				t.Errorf("winner depth = %g, want %g", got, want)
			}
		})
	}
}

func TestPipeline_DeterministicAcrossRenders(t *testing.T) {
	scene := testScene(t, frontTri(3), frontTri(5), frontTri(7))
	p := newTestPipeline(t, Config{}, scene)

	frame := testFrame()
	if err := p.Render(frame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	first, err := p.visibilityWords()
	if err != nil {
		t.Fatalf("visibilityWords: %v", err)
	}
	firstStats := p.Stats()

	if err := p.Render(frame); err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := p.visibilityWords()
	if err != nil {
		t.Fatalf("visibilityWords: %v", err)
	}

	if p.Stats() != firstStats {
		t.Errorf("stats changed across identical frames: %+v vs %+v", firstStats, p.Stats())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("visibility word %d changed across identical frames", i)
		}
	}
}

func TestPipeline_BboxGuardSkipsHugeTriangles(t *testing.T) {
	p := newTestPipeline(t, Config{MaxPixelsPerTriangle: 4}, testScene(t, frontTri(4)))

	if err := p.Render(testFrame()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	// The cluster survives culling but its triangle exceeds the guard.
	if got := p.Stats().Visible; got != 1 {
		t.Errorf("Visible = %d, want 1", got)
	}
	if got := countCovered(p); got != 0 {
		t.Errorf("covered pixels = %d, want 0", got)
	}
}

func TestPipeline_PartiallyOffscreenClamps(t *testing.T) {
	// Large enough that the whole viewport is interior, so clamping the
	// bbox to the screen is what keeps writes in bounds.
	n := [3]float32{0, 0, -1}
	huge := []Vertex{
		{Position: [3]float32{0, 4, 4}, Normal: n},
		{Position: [3]float32{5, -2.5, 4}, Normal: n},
		{Position: [3]float32{-5, -2.5, 4}, Normal: n},
	}
	p := newTestPipeline(t, Config{}, testScene(t, huge))

	if err := p.Render(testFrame()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := countCovered(p); got != testSize*testSize {
		t.Errorf("covered pixels = %d, want full viewport %d", got, testSize*testSize)
	}
}

// =============================================================================
// Resolve Target Tests
// =============================================================================

func TestPipeline_ResolveTargets(t *testing.T) {
	p := newTestPipeline(t, Config{}, testScene(t, frontTri(4)))

	if err := p.Render(testFrame()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	albedo, err := p.ReadTarget(TargetAlbedo)
	if err != nil {
		t.Fatalf("ReadTarget(albedo): %v", err)
	}
	normal, err := p.ReadTarget(TargetNormal)
	if err != nil {
		t.Fatalf("ReadTarget(normal): %v", err)
	}
	params, err := p.ReadTarget(TargetParams)
	if err != nil {
		t.Fatalf("ReadTarget(params): %v", err)
	}
	emissive, err := p.ReadTarget(TargetEmissive)
	if err != nil {
		t.Fatalf("ReadTarget(emissive): %v", err)
	}

	center := (testSize/2*testSize + testSize/2) * 4
	if got := albedo[center : center+4]; got[0] != 1 || got[1] != 0 || got[2] != 0 || got[3] != 1 {
		t.Errorf("albedo(center) = %v, want [1 0 0 1]", got)
	}
	// Normal (0,0,-1) encodes to (0.5, 0.5, 0).
	if got := normal[center : center+3]; math.Abs(float64(got[0]-0.5)) > 1e-5 ||
		math.Abs(float64(got[1]-0.5)) > 1e-5 || math.Abs(float64(got[2])) > 1e-5 {
		t.Errorf("normal(center) = %v, want [0.5 0.5 0]", got)
	}
	// UV at the center pixel from the screen barycentrics of the
	// projected triangle (ortho view, so the 1/w weighting is a no-op).
	tri := frontTri(4)
	var sx, sy [3]float32
	for i, vert := range tri {
		sx[i] = (vert.Position[0]*0.5 + 0.5) * testSize
		sy[i] = (0.5 - vert.Position[1]*0.5) * testSize
	}
	cx, cy := float32(testSize)/2+0.5, float32(testSize)/2+0.5
	area2 := (sx[1]-sx[0])*(sy[2]-sy[0]) - (sy[1]-sy[0])*(sx[2]-sx[0])
	b0 := ((sx[2]-sx[1])*(cy-sy[1]) - (sy[2]-sy[1])*(cx-sx[1])) / area2
	b1 := ((sx[0]-sx[2])*(cy-sy[2]) - (sy[0]-sy[2])*(cx-sx[2])) / area2
	b2 := 1 - b0 - b1
	wantU := tri[0].UV[0]*b0 + tri[1].UV[0]*b1 + tri[2].UV[0]*b2
	wantV := tri[0].UV[1]*b0 + tri[1].UV[1]*b1 + tri[2].UV[1]*b2
	got := params[center : center+4]
	if got[0] != 0.25 || got[1] != 0.5 {
		t.Errorf("params(center) = %v, want metallic 0.25, roughness 0.5", got)
	}
	if math.Abs(float64(got[2]-wantU)) > 1e-5 || math.Abs(float64(got[3]-wantV)) > 1e-5 {
		t.Errorf("params(center) uv = (%g, %g), want (%g, %g)", got[2], got[3], wantU, wantV)
	}
	// Emissive (0,1,0) at intensity 2.
	if got := emissive[center : center+3]; got[0] != 0 || got[1] != 2 || got[2] != 0 {
		t.Errorf("emissive(center) = %v, want [0 2 0]", got)
	}

	// Background pixels carry zeroed targets.
	for name, target := range map[string][]float32{
		"albedo": albedo, "normal": normal, "params": params, "emissive": emissive,
	} {
		for c, v := range target[0:4] {
			if v != 0 {
				t.Errorf("%s(0,0)[%d] = %g, want 0", name, c, v)
			}
		}
	}
}

func TestPipeline_DebugVisibilityImage(t *testing.T) {
	p := newTestPipeline(t, Config{}, testScene(t, frontTri(4)))
	if err := p.Render(testFrame()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	img, err := p.DebugVisibilityImage()
	if err != nil {
		t.Fatalf("DebugVisibilityImage: %v", err)
	}
	if img.Bounds().Dx() != testSize || img.Bounds().Dy() != testSize {
		t.Fatalf("image bounds = %v, want %dx%d", img.Bounds(), testSize, testSize)
	}

	bg := img.NRGBAAt(0, 0)
	if bg.R != 0 || bg.G != 0 || bg.B != 0 {
		t.Errorf("background color = %v, want black", bg)
	}
	hit := img.NRGBAAt(testSize/2, testSize/2)
	if hit.R == 0 && hit.G == 0 && hit.B == 0 {
		t.Error("covered pixel should have a non-black id color")
	}
}

// submitOnlyDevice mimics hardware adapters that can record and submit
// but not read back (the hal texture/buffer mapping path).
type submitOnlyDevice struct {
	gpu.Device
}

func (d submitOnlyDevice) ReadBuffer(gpu.BufferID, uint64, uint64) ([]byte, error) {
	return nil, gpu.ErrReadbackUnsupported
}

func TestPipeline_RenderSucceedsWithoutReadback(t *testing.T) {
	dev := soft.NewDevice(0)
	t.Cleanup(dev.Close)

	p, err := NewPipeline(submitOnlyDevice{dev}, Config{Width: testSize, Height: testSize}, testScene(t, frontTri(4)))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(p.Destroy)

	var logBuf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&logBuf, nil)))
	defer SetLogger(nil)

	// Frames must complete despite the stats buffer being unreadable;
	// counters degrade to zero and the condition is warned exactly once.
	for i := 0; i < 3; i++ {
		if err := p.Render(testFrame()); err != nil {
			t.Fatalf("Render(%d): %v", i, err)
		}
	}
	if got := p.Stats(); got != (CullStats{}) {
		t.Errorf("stats without readback = %+v, want zero", got)
	}
	if got := strings.Count(logBuf.String(), "stats readback unsupported"); got != 1 {
		t.Errorf("warning logged %d times, want 1", got)
	}
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewPipeline_Validation(t *testing.T) {
	dev := soft.NewDevice(1)
	defer dev.Close()

	scene := testScene(t, frontTri(4))
	if _, err := NewPipeline(dev, Config{}, scene); err == nil {
		t.Error("zero viewport should be rejected")
	}

	bad := testScene(t, frontTri(4))
	bad.Meshlets[0].MaterialIndex = 7
	if _, err := NewPipeline(dev, Config{Width: 8, Height: 8}, bad); err == nil {
		t.Error("invalid scene should be rejected")
	}
}
