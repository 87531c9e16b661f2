// Command meshletdemo renders a procedural cluster field through the
// visibility pipeline on the software device and writes the visibility
// buffer as a false-color PNG.
package main

import (
	"flag"
	"image/png"
	"log"
	"os"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/meshlet"
	"github.com/gogpu/meshlet/gpu/soft"
)

func main() {
	var (
		width     = flag.Int("width", 800, "viewport width")
		height    = flag.Int("height", 600, "viewport height")
		rings     = flag.Int("rings", 6, "rings of clusters in the scene")
		frames    = flag.Int("frames", 2, "frames to render (2+ exercises occlusion)")
		occlusion = flag.Bool("occlusion", true, "enable two-pass occlusion culling")
		backface  = flag.Bool("backface", true, "enable cluster cone culling")
		output    = flag.String("output", "visibility.png", "output file")
	)
	flag.Parse()

	scene := buildScene(*rings)

	dev := soft.NewDevice(0)
	defer dev.Close()

	pipe, err := meshlet.NewPipeline(dev, meshlet.Config{
		Width:           uint32(*width),
		Height:          uint32(*height),
		EnableOcclusion: *occlusion,
		EnableBackface:  *backface,
	}, scene)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer pipe.Destroy()

	aspect := float32(*width) / float32(*height)
	frame := meshlet.Frame{
		ViewProj: mgl32.Perspective(mgl32.DegToRad(55), aspect, 0.1, 100).
			Mul4(mgl32.LookAtV(mgl32.Vec3{0, 1.5, -6}, mgl32.Vec3{0, 0, 2}, mgl32.Vec3{0, 1, 0})),
		Position: mgl32.Vec3{0, 1.5, -6},
	}
	for i := 0; i < *frames; i++ {
		if err := pipe.Render(frame); err != nil {
			log.Fatalf("Render failed: %v", err)
		}
	}

	stats := pipe.Stats()
	log.Printf("clusters: %d total, %d visible, %d frustum, %d occluded, %d backface",
		stats.Total, stats.Visible, stats.FrustumCulled, stats.OcclusionCulled, stats.BackfaceCulled)

	img, err := pipe.DebugVisibilityImage()
	if err != nil {
		log.Fatalf("Failed to read visibility buffer: %v", err)
	}
	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *output, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		log.Fatalf("Failed to encode PNG: %v", err)
	}
	log.Printf("Visibility image saved to %s (%dx%d)", *output, *width, *height)
}

// buildScene lays camera-facing quad clusters in concentric rings at
// increasing depth, so near rings occlude parts of far ones.
func buildScene(rings int) *meshlet.Scene {
	scene := &meshlet.Scene{Materials: []meshlet.Material{
		{BaseColor: [4]float32{0.8, 0.2, 0.2, 1}, Roughness: 0.4},
		{BaseColor: [4]float32{0.2, 0.8, 0.3, 1}, Roughness: 0.7},
		{BaseColor: [4]float32{0.3, 0.4, 0.9, 1}, Metallic: 0.9, Roughness: 0.2},
	}}

	for r := 0; r < rings; r++ {
		count := 6 + 4*r
		radius := 1.2 * float32(r)
		z := 2 + 2.5*float32(r)
		for i := 0; i < count; i++ {
			angle := 2 * math32.Pi * float32(i) / float32(count)
			cx := radius * math32.Cos(angle)
			cy := radius * math32.Sin(angle) * 0.5
			verts, indices := quadCluster(cx, cy, z, 1.0)
			mat := uint32((r + i) % 3)
			if _, err := meshlet.AppendMeshlet(scene, verts, indices, mat); err != nil {
				log.Fatalf("Failed to append cluster: %v", err)
			}
		}
	}
	return scene
}

// quadCluster builds one camera-facing square cluster of side s
// centered at (cx, cy, z).
func quadCluster(cx, cy, z, s float32) ([]meshlet.Vertex, []uint32) {
	h := s / 2
	n := [3]float32{0, 0, -1}
	verts := []meshlet.Vertex{
		{Position: [3]float32{cx - h, cy + h, z}, Normal: n},
		{Position: [3]float32{cx + h, cy + h, z}, Normal: n, UV: [2]float32{1, 0}},
		{Position: [3]float32{cx + h, cy - h, z}, Normal: n, UV: [2]float32{1, 1}},
		{Position: [3]float32{cx - h, cy - h, z}, Normal: n, UV: [2]float32{0, 1}},
	}
	return verts, []uint32{0, 1, 2, 0, 2, 3}
}
