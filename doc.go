// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package meshlet implements a GPU-driven visibility pipeline for
// virtualized geometry.
//
// Geometry arrives pre-clustered into meshlets (small fixed-budget
// triangle clusters with a bounding sphere and a normal cone). Each
// frame runs four compute stages over one command stream:
//
//  1. Hi-Z pyramid: the previous frame's depth is reduced into a
//     conservative max-depth mip chain. Reading last frame's occluders
//     is deliberate: it breaks the circular culling/rasterization
//     dependency at the cost of one frame of latency.
//  2. Cluster culling: every meshlet is tested against the view
//     frustum, its backface cone, and the Hi-Z pyramid; survivors are
//     compacted into a visible list with a single atomic counter.
//  3. Software rasterization: one thread per visible triangle writes
//     packed (depth, id) words into the visibility buffer with an
//     atomic 64-bit min, so depth and id can never tear.
//  4. Material resolve: a full-screen pass reconstructs per-pixel
//     attributes from the visibility buffer (barycentrics are
//     recomputed, not stored) and evaluates materials into four
//     deferred targets.
//
// The pipeline is expressed against the abstract [gpu.Device]; the
// gpu/soft device executes it on the CPU and the gpu/wgpu adapter maps
// it onto WebGPU hardware through github.com/gogpu/wgpu.
//
// # Usage
//
//	dev := soft.NewDevice(0)
//	defer dev.Close()
//
//	p, err := meshlet.NewPipeline(dev, meshlet.Config{Width: 1920, Height: 1080}, scene)
//	if err != nil {
//	    return err
//	}
//	defer p.Destroy()
//
//	p.Render(meshlet.Frame{ViewProj: viewProj, Position: eye})
//	stats := p.Stats()
//
// Scene data is validated once at construction; the per-frame path
// assumes valid input and performs no defensive re-checking.
package meshlet
