// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/meshlet/gpu"
)

// Pipeline construction errors.
var (
	// ErrNoCompute is returned when the device cannot run compute work.
	ErrNoCompute = errors.New("meshlet: device does not support compute")

	// ErrBadConfig is returned for a zero-sized viewport.
	ErrBadConfig = errors.New("meshlet: invalid config")
)

// Config fixes the per-pipeline parameters. The viewport size is
// immutable; resize by rebuilding the pipeline.
type Config struct {
	Width  uint32
	Height uint32

	// EnableOcclusion turns on Hi-Z occlusion culling. Regardless of
	// this flag, the first frame after construction or a depth-history
	// reset renders without occlusion.
	EnableOcclusion bool

	// EnableBackface turns on the cluster backface-cone test.
	EnableBackface bool

	// MaxPixelsPerTriangle bounds the screen bbox one triangle may
	// scan. Zero selects DefaultMaxPixelsPerTriangle.
	MaxPixelsPerTriangle uint32

	// LODScale multiplies meshlet LOD errors in the camera uniform.
	// Zero selects 1.
	LODScale float32
}

// Frame is the per-frame input to Render.
type Frame struct {
	ViewProj mgl32.Mat4
	Position mgl32.Vec3

	// ResetDepthHistory discards the previous frame's depth (camera
	// cut); occlusion culling is disabled for this frame only.
	ResetDepthHistory bool
}

// TargetKind names one of the deferred resolve targets.
type TargetKind int

// Resolve targets.
const (
	TargetAlbedo TargetKind = iota
	TargetNormal
	TargetParams
	TargetEmissive
)

// Pipeline owns every device resource of the visibility pipeline and
// replays the same recorded structure each frame. It is not safe for
// concurrent use.
type Pipeline struct {
	dev gpu.Device
	cfg Config

	meshletCount uint32
	mips         uint32

	meshletBuf    gpu.BufferID
	vertexBuf     gpu.BufferID
	indexBuf      gpu.BufferID
	materialBuf   gpu.BufferID
	cameraBuf     gpu.BufferID
	visibleBuf    gpu.BufferID
	countBuf      gpu.BufferID
	statsBuf      gpu.BufferID
	indirectBuf   gpu.BufferID
	visibilityBuf gpu.BufferID

	hiz     gpu.TextureID
	targets [targetCount]gpu.TextureID

	modules []gpu.ShaderModuleID
	layouts []gpu.BindGroupLayoutID
	pipeLts []gpu.PipelineLayoutID

	seedPipe     gpu.ComputePipelineID
	reducePipe   gpu.ComputePipelineID
	clearPipe    gpu.ComputePipelineID
	cullPipe     gpu.ComputePipelineID
	finalizePipe gpu.ComputePipelineID
	rasterPipe   gpu.ComputePipelineID
	resolvePipe  gpu.ComputePipelineID

	seedBG     gpu.BindGroupID
	reduceBGs  []gpu.BindGroupID
	clearBG    gpu.BindGroupID
	cullBG     gpu.BindGroupID
	finalizeBG gpu.BindGroupID
	rasterBG   gpu.BindGroupID
	resolveBG  gpu.BindGroupID

	bindGroups []gpu.BindGroupID

	haveDepth   bool
	stats       CullStats
	statsWarned bool
	visCache    []uint64
}

// NewPipeline validates the scene, uploads the persistent buffers,
// compiles every stage and caches every bind group. All failures are
// fatal: a returned pipeline is fully usable.
func NewPipeline(dev gpu.Device, cfg Config, scene *Scene) (*Pipeline, error) {
	if !dev.SupportsCompute() {
		return nil, ErrNoCompute
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("%w: viewport %dx%d", ErrBadConfig, cfg.Width, cfg.Height)
	}
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPixelsPerTriangle == 0 {
		cfg.MaxPixelsPerTriangle = DefaultMaxPixelsPerTriangle
	}
	if cfg.LODScale == 0 {
		cfg.LODScale = 1
	}

	p := &Pipeline{
		dev:          dev,
		cfg:          cfg,
		meshletCount: uint32(len(scene.Meshlets)),
		mips:         hiZMipCount(cfg.Width, cfg.Height),
	}
	if err := p.createResources(scene); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createPipelines(); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createBindGroups(); err != nil {
		p.Destroy()
		return nil, err
	}

	slogger().Info("meshlet: pipeline ready",
		slog.Uint64("meshlets", uint64(p.meshletCount)),
		slog.Uint64("width", uint64(cfg.Width)),
		slog.Uint64("height", uint64(cfg.Height)),
		slog.Uint64("hiz_mips", uint64(p.mips)))
	return p, nil
}

func (p *Pipeline) createResources(scene *Scene) error {
	pixels := int(p.cfg.Width) * int(p.cfg.Height)
	storage := gpu.BufferUsageStorage | gpu.BufferUsageCopyDst
	readable := storage | gpu.BufferUsageCopySrc

	type bufSpec struct {
		id    *gpu.BufferID
		size  int
		usage gpu.BufferUsage
		init  []byte
	}
	specs := []bufSpec{
		{&p.meshletBuf, len(scene.Meshlets) * 64, storage, sliceToBytes(scene.Meshlets)},
		{&p.vertexBuf, len(scene.Vertices) * 32, storage, sliceToBytes(scene.Vertices)},
		{&p.indexBuf, len(scene.Indices) * 4, storage, sliceToBytes(scene.Indices)},
		{&p.materialBuf, len(scene.Materials) * 48, storage, sliceToBytes(scene.Materials)},
		{&p.cameraBuf, cameraByteSize, gpu.BufferUsageUniform | gpu.BufferUsageCopyDst, nil},
		{&p.visibleBuf, len(scene.Meshlets) * 4, readable, nil},
		{&p.countBuf, 4, readable, nil},
		{&p.statsBuf, 32, readable, nil},
		{&p.indirectBuf, 16, storage | gpu.BufferUsageIndirect, nil},
		{&p.visibilityBuf, pixels * 8, readable, nil},
	}
	for _, s := range specs {
		size := s.size
		if size == 0 {
			size = 4
		}
		id, err := p.dev.CreateBuffer(size, s.usage)
		if err != nil {
			return err
		}
		*s.id = id
		if len(s.init) > 0 {
			p.dev.WriteBuffer(id, 0, s.init)
		}
	}

	hiz, err := p.dev.CreateTexture(&gpu.TextureDesc{
		Label:         "hiz pyramid",
		Width:         p.cfg.Width,
		Height:        p.cfg.Height,
		MipLevelCount: p.mips,
		Format:        gpu.TextureFormatR32Float,
		Usage:         gpu.TextureUsageSampled | gpu.TextureUsageStorage,
	})
	if err != nil {
		return err
	}
	p.hiz = hiz

	names := [targetCount]string{"albedo", "normal", "params", "emissive"}
	for t := range p.targets {
		id, err := p.dev.CreateTexture(&gpu.TextureDesc{
			Label:  "target " + names[t],
			Width:  p.cfg.Width,
			Height: p.cfg.Height,
			Format: gpu.TextureFormatRGBA32Float,
			Usage:  gpu.TextureUsageStorage | gpu.TextureUsageCopySrc,
		})
		if err != nil {
			return err
		}
		p.targets[t] = id
	}
	return nil
}

// stage bundles one pipeline's source, entry point, kernel and layout.
type stage struct {
	pipe   *gpu.ComputePipelineID
	label  string
	wgsl   string
	entry  string
	kernel gpu.Kernel
	wgSize [3]uint32
	binds  []gpu.BindGroupLayoutEntry
}

func (p *Pipeline) stages() []*stage {
	uni := gpu.BindGroupLayoutEntry{Type: gpu.BindingTypeUniformBuffer}
	ro := gpu.BindGroupLayoutEntry{Type: gpu.BindingTypeReadOnlyStorageBuffer}
	rw := gpu.BindGroupLayoutEntry{Type: gpu.BindingTypeStorageBuffer}
	tex := gpu.BindGroupLayoutEntry{Type: gpu.BindingTypeSampledTexture}
	// Storage texture layouts carry the view format; WebGPU validates
	// the bound view against it.
	sdepth := gpu.BindGroupLayoutEntry{Type: gpu.BindingTypeStorageTexture, Format: gpu.TextureFormatR32Float}
	starget := gpu.BindGroupLayoutEntry{Type: gpu.BindingTypeStorageTexture, Format: gpu.TextureFormatRGBA32Float}

	return []*stage{
		{pipe: &p.seedPipe, label: "hiz seed", wgsl: hizWGSL, entry: "seed",
			kernel: hizSeedKernel, wgSize: [3]uint32{8, 8, 1},
			binds: []gpu.BindGroupLayoutEntry{uni, ro, sdepth}},
		{pipe: &p.reducePipe, label: "hiz reduce", wgsl: hizWGSL, entry: "reduce",
			kernel: hizReduceKernel, wgSize: [3]uint32{8, 8, 1},
			binds: []gpu.BindGroupLayoutEntry{tex, sdepth}},
		{pipe: &p.clearPipe, label: "visibility clear", wgsl: rasterWGSL, entry: "clear_visibility",
			kernel: clearVisibilityKernel, wgSize: [3]uint32{8, 8, 1},
			binds: []gpu.BindGroupLayoutEntry{uni, rw}},
		{pipe: &p.cullPipe, label: "cluster cull", wgsl: cullWGSL, entry: "cull",
			kernel: cullKernel, wgSize: [3]uint32{64, 1, 1},
			binds: []gpu.BindGroupLayoutEntry{uni, ro, rw, rw, rw, tex}},
		{pipe: &p.finalizePipe, label: "cull finalize", wgsl: cullWGSL, entry: "finalize",
			kernel: cullFinalizeKernel, wgSize: [3]uint32{1, 1, 1},
			binds: []gpu.BindGroupLayoutEntry{ro, rw}},
		{pipe: &p.rasterPipe, label: "sw raster", wgsl: rasterWGSL, entry: "raster",
			kernel: rasterKernel(p.cfg.MaxPixelsPerTriangle), wgSize: [3]uint32{64, 1, 1},
			binds: []gpu.BindGroupLayoutEntry{uni, ro, ro, ro, ro, rw}},
		{pipe: &p.resolvePipe, label: "material resolve", wgsl: resolveWGSL, entry: "resolve",
			kernel: resolveKernel, wgSize: [3]uint32{8, 8, 1},
			binds: []gpu.BindGroupLayoutEntry{uni, ro, ro, ro, ro, ro, starget, starget, starget, starget}},
	}
}

func (p *Pipeline) createPipelines() error {
	for _, s := range p.stages() {
		mod, err := p.dev.CreateShaderModule(&gpu.ShaderModuleDesc{Label: s.label, WGSL: s.wgsl})
		if err != nil {
			return fmt.Errorf("meshlet: %s module: %w", s.label, err)
		}
		p.modules = append(p.modules, mod)

		entries := make([]gpu.BindGroupLayoutEntry, len(s.binds))
		for i, e := range s.binds {
			e.Binding = uint32(i)
			entries[i] = e
		}
		bgl, err := p.dev.CreateBindGroupLayout(&gpu.BindGroupLayoutDesc{Label: s.label, Entries: entries})
		if err != nil {
			return fmt.Errorf("meshlet: %s layout: %w", s.label, err)
		}
		p.layouts = append(p.layouts, bgl)

		pl, err := p.dev.CreatePipelineLayout([]gpu.BindGroupLayoutID{bgl})
		if err != nil {
			return fmt.Errorf("meshlet: %s pipeline layout: %w", s.label, err)
		}
		p.pipeLts = append(p.pipeLts, pl)

		pipe, err := p.dev.CreateComputePipeline(&gpu.ComputePipelineDesc{
			Label:         s.label,
			Layout:        pl,
			Module:        mod,
			EntryPoint:    s.entry,
			Kernel:        s.kernel,
			WorkgroupSize: s.wgSize,
		})
		if err != nil {
			return fmt.Errorf("meshlet: %s pipeline: %w", s.label, err)
		}
		*s.pipe = pipe
	}
	return nil
}

func (p *Pipeline) createBindGroups() error {
	buf := func(binding uint32, id gpu.BufferID) gpu.BindGroupEntry {
		return gpu.BindGroupEntry{Binding: binding, Buffer: id}
	}
	texMip := func(binding uint32, id gpu.TextureID, mip uint32) gpu.BindGroupEntry {
		return gpu.BindGroupEntry{Binding: binding, Texture: id, MipLevel: mip, MipLevelCount: 1}
	}
	texAll := func(binding uint32, id gpu.TextureID) gpu.BindGroupEntry {
		return gpu.BindGroupEntry{Binding: binding, Texture: id}
	}

	create := func(dst *gpu.BindGroupID, label string, layout gpu.BindGroupLayoutID, entries ...gpu.BindGroupEntry) error {
		bg, err := p.dev.CreateBindGroup(&gpu.BindGroupDesc{Label: label, Layout: layout, Entries: entries})
		if err != nil {
			return fmt.Errorf("meshlet: %s bind group: %w", label, err)
		}
		*dst = bg
		p.bindGroups = append(p.bindGroups, bg)
		return nil
	}

	// Layouts were created in stage order by createPipelines.
	lt := p.layouts
	if err := create(&p.seedBG, "hiz seed", lt[0],
		buf(0, p.cameraBuf), buf(1, p.visibilityBuf), texMip(2, p.hiz, 0)); err != nil {
		return err
	}
	for mip := uint32(0); mip+1 < p.mips; mip++ {
		var bg gpu.BindGroupID
		if err := create(&bg, "hiz reduce", lt[1],
			texMip(0, p.hiz, mip), texMip(1, p.hiz, mip+1)); err != nil {
			return err
		}
		p.reduceBGs = append(p.reduceBGs, bg)
	}
	if err := create(&p.clearBG, "visibility clear", lt[2],
		buf(0, p.cameraBuf), buf(1, p.visibilityBuf)); err != nil {
		return err
	}
	if err := create(&p.cullBG, "cluster cull", lt[3],
		buf(0, p.cameraBuf), buf(1, p.meshletBuf), buf(2, p.visibleBuf),
		buf(3, p.countBuf), buf(4, p.statsBuf), texAll(5, p.hiz)); err != nil {
		return err
	}
	if err := create(&p.finalizeBG, "cull finalize", lt[4],
		buf(0, p.countBuf), buf(1, p.indirectBuf)); err != nil {
		return err
	}
	if err := create(&p.rasterBG, "sw raster", lt[5],
		buf(0, p.cameraBuf), buf(1, p.meshletBuf), buf(2, p.vertexBuf),
		buf(3, p.indexBuf), buf(4, p.visibleBuf), buf(5, p.visibilityBuf)); err != nil {
		return err
	}
	return create(&p.resolveBG, "material resolve", lt[6],
		buf(0, p.cameraBuf), buf(1, p.meshletBuf), buf(2, p.vertexBuf),
		buf(3, p.indexBuf), buf(4, p.materialBuf), buf(5, p.visibilityBuf),
		texMip(6, p.targets[TargetAlbedo], 0), texMip(7, p.targets[TargetNormal], 0),
		texMip(8, p.targets[TargetParams], 0), texMip(9, p.targets[TargetEmissive], 0))
}

// Render records, submits and completes one frame, then latches its
// stats. The Hi-Z build is skipped (and occlusion disabled) while no
// depth history exists.
func (p *Pipeline) Render(frame Frame) error {
	reset := frame.ResetDepthHistory || !p.haveDepth

	cam := BuildCamera(frame.ViewProj, frame.Position)
	cam.ScreenSize = [2]float32{float32(p.cfg.Width), float32(p.cfg.Height)}
	cam.HiZSize = cam.ScreenSize
	cam.HiZMipCount = p.mips
	cam.LODScale = p.cfg.LODScale
	if p.cfg.EnableOcclusion && !reset {
		cam.EnableOcclusion = 1
	}
	if p.cfg.EnableBackface {
		cam.EnableBackface = 1
	}
	p.dev.WriteBuffer(p.cameraBuf, 0, structToBytes(&cam))

	stats := CullStats{Total: p.meshletCount}
	p.dev.WriteBuffer(p.statsBuf, 0, structToBytes(&stats))
	p.dev.WriteBuffer(p.countBuf, 0, []byte{0, 0, 0, 0})

	gx := (p.cfg.Width + 7) / 8
	gy := (p.cfg.Height + 7) / 8

	if !reset {
		pass := p.dev.BeginComputePass("hiz build")
		pass.SetPipeline(p.seedPipe)
		pass.SetBindGroup(0, p.seedBG)
		pass.Dispatch(gx, gy, 1)
		w, h := p.cfg.Width, p.cfg.Height
		for _, bg := range p.reduceBGs {
			w = max(w/2, 1)
			h = max(h/2, 1)
			pass.SetPipeline(p.reducePipe)
			pass.SetBindGroup(0, bg)
			pass.Dispatch((w+7)/8, (h+7)/8, 1)
		}
		pass.End()
	}

	pass := p.dev.BeginComputePass("visibility")
	pass.SetPipeline(p.clearPipe)
	pass.SetBindGroup(0, p.clearBG)
	pass.Dispatch(gx, gy, 1)

	pass.SetPipeline(p.cullPipe)
	pass.SetBindGroup(0, p.cullBG)
	pass.Dispatch((p.meshletCount+63)/64, 1, 1)

	pass.SetPipeline(p.finalizePipe)
	pass.SetBindGroup(0, p.finalizeBG)
	pass.Dispatch(1, 1, 1)

	pass.SetPipeline(p.rasterPipe)
	pass.SetBindGroup(0, p.rasterBG)
	pass.DispatchIndirect(p.indirectBuf, 0)

	pass.SetPipeline(p.resolvePipe)
	pass.SetBindGroup(0, p.resolveBG)
	pass.Dispatch(gx, gy, 1)
	pass.End()

	p.dev.Submit()
	p.dev.WaitIdle()
	p.haveDepth = true
	p.visCache = nil

	// Submit-only devices cannot read the stats back; the frame itself
	// is still valid, so degrade to zero stats instead of failing.
	raw, err := p.dev.ReadBuffer(p.statsBuf, 0, 32)
	switch {
	case errors.Is(err, gpu.ErrReadbackUnsupported):
		if !p.statsWarned {
			p.statsWarned = true
			slogger().Warn("meshlet: stats readback unsupported on this device, counters stay zero")
		}
	case err != nil:
		return fmt.Errorf("meshlet: stats readback: %w", err)
	default:
		p.stats = *bytesToStruct[CullStats](raw)
	}

	slogger().Debug("meshlet: frame",
		slog.Uint64("visible", uint64(p.stats.Visible)),
		slog.Uint64("frustum_culled", uint64(p.stats.FrustumCulled)),
		slog.Uint64("occlusion_culled", uint64(p.stats.OcclusionCulled)),
		slog.Uint64("backface_culled", uint64(p.stats.BackfaceCulled)))
	return nil
}

// Stats returns the most recently completed frame's culling counters.
func (p *Pipeline) Stats() CullStats { return p.stats }

func (p *Pipeline) visibilityWords() ([]uint64, error) {
	if p.visCache != nil {
		return p.visCache, nil
	}
	raw, err := p.dev.ReadBuffer(p.visibilityBuf, 0, uint64(p.cfg.Width)*uint64(p.cfg.Height)*8)
	if err != nil {
		return nil, fmt.Errorf("meshlet: visibility readback: %w", err)
	}
	words := make([]uint64, p.cfg.Width*p.cfg.Height)
	copy(words, bytesToSlice[uint64](raw))
	p.visCache = words
	return words, nil
}

// VisibilityAt returns the meshlet and triangle index rasterized at the
// given pixel. ok is false for background pixels and out-of-range
// coordinates.
func (p *Pipeline) VisibilityAt(x, y uint32) (meshletIndex, triangle uint32, ok bool) {
	if x >= p.cfg.Width || y >= p.cfg.Height {
		return 0, 0, false
	}
	words, err := p.visibilityWords()
	if err != nil {
		return 0, 0, false
	}
	id := uint32(words[y*p.cfg.Width+x])
	if id == visIDNone {
		return 0, 0, false
	}
	meshletIndex, triangle = unpackVisID(id)
	return meshletIndex, triangle, true
}

// DepthAt returns the NDC depth at the given pixel, or 1 for
// background and out-of-range pixels.
func (p *Pipeline) DepthAt(x, y uint32) float32 {
	if x >= p.cfg.Width || y >= p.cfg.Height {
		return 1
	}
	words, err := p.visibilityWords()
	if err != nil {
		return 1
	}
	word := words[y*p.cfg.Width+x]
	if uint32(word) == visIDNone {
		return 1
	}
	return math.Float32frombits(uint32(word >> 32))
}

// ReadTarget reads back one resolve target as tightly packed RGBA
// float rows.
func (p *Pipeline) ReadTarget(kind TargetKind) ([]float32, error) {
	if kind < TargetAlbedo || kind > TargetEmissive {
		return nil, fmt.Errorf("%w: target %d", ErrBadConfig, kind)
	}
	raw, err := p.dev.ReadTexture(p.targets[kind], 0)
	if err != nil {
		return nil, fmt.Errorf("meshlet: target readback: %w", err)
	}
	out := make([]float32, len(raw)/4)
	copy(out, bytesToSlice[float32](raw))
	return out, nil
}

// Destroy releases every device resource. The pipeline must not be
// used afterwards.
func (p *Pipeline) Destroy() {
	for _, bg := range p.bindGroups {
		p.dev.DestroyBindGroup(bg)
	}
	for _, pipe := range []gpu.ComputePipelineID{
		p.seedPipe, p.reducePipe, p.clearPipe, p.cullPipe,
		p.finalizePipe, p.rasterPipe, p.resolvePipe,
	} {
		if pipe != gpu.InvalidID {
			p.dev.DestroyComputePipeline(pipe)
		}
	}
	for _, pl := range p.pipeLts {
		p.dev.DestroyPipelineLayout(pl)
	}
	for _, l := range p.layouts {
		p.dev.DestroyBindGroupLayout(l)
	}
	for _, m := range p.modules {
		p.dev.DestroyShaderModule(m)
	}
	for _, t := range p.targets {
		if t != gpu.InvalidID {
			p.dev.DestroyTexture(t)
		}
	}
	if p.hiz != gpu.InvalidID {
		p.dev.DestroyTexture(p.hiz)
	}
	for _, b := range []gpu.BufferID{
		p.meshletBuf, p.vertexBuf, p.indexBuf, p.materialBuf,
		p.cameraBuf, p.visibleBuf, p.countBuf, p.statsBuf,
		p.indirectBuf, p.visibilityBuf,
	} {
		if b != gpu.InvalidID {
			p.dev.DestroyBuffer(b)
		}
	}
}
