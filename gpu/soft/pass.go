// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"github.com/gogpu/meshlet/gpu"
)

// maxBindGroups is the number of bind group slots per dispatch,
// matching WebGPU's guaranteed minimum.
const maxBindGroups = 4

// dispatchCmd is one recorded dispatch with its bindings resolved.
type dispatchCmd struct {
	label    string
	pipeline *computePipeline
	groups   [maxBindGroups]*bindGroup

	x, y, z uint32

	indirect    *buffer
	indirectOff uint64
}

// passEncoder records dispatches for a single compute pass.
type passEncoder struct {
	device *Device
	label  string

	pipeline *computePipeline
	groups   [maxBindGroups]*bindGroup

	cmds  []dispatchCmd
	ended bool
}

// BeginComputePass begins recording a compute pass.
func (d *Device) BeginComputePass(label string) gpu.ComputePassEncoder {
	return &passEncoder{device: d, label: label}
}

// SetPipeline sets the active compute pipeline.
func (p *passEncoder) SetPipeline(id gpu.ComputePipelineID) {
	p.device.mu.Lock()
	p.pipeline = p.device.pipelines[id]
	p.device.mu.Unlock()
}

// SetBindGroup binds a bind group at the given group index.
func (p *passEncoder) SetBindGroup(index uint32, id gpu.BindGroupID) {
	if index >= maxBindGroups {
		return
	}
	p.device.mu.Lock()
	p.groups[index] = p.device.bindGroups[id]
	p.device.mu.Unlock()
}

// Dispatch records a direct dispatch of x*y*z workgroups.
func (p *passEncoder) Dispatch(x, y, z uint32) {
	if p.ended || p.pipeline == nil {
		return
	}
	p.cmds = append(p.cmds, dispatchCmd{
		label:    p.label,
		pipeline: p.pipeline,
		groups:   p.groups,
		x:        x, y: y, z: z,
	})
}

// DispatchIndirect records a dispatch whose workgroup counts are read
// from the buffer at execution time.
func (p *passEncoder) DispatchIndirect(buf gpu.BufferID, offset uint64) {
	if p.ended || p.pipeline == nil {
		return
	}
	p.device.mu.Lock()
	b := p.device.buffers[buf]
	p.device.mu.Unlock()
	if b == nil {
		return
	}
	p.cmds = append(p.cmds, dispatchCmd{
		label:       p.label,
		pipeline:    p.pipeline,
		groups:      p.groups,
		indirect:    b,
		indirectOff: offset,
	})
}

// End finishes the pass and queues its dispatches on the device.
func (p *passEncoder) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.device.mu.Lock()
	p.device.pending = append(p.device.pending, p.cmds...)
	p.device.mu.Unlock()
}

// Submit executes all recorded passes in order. Each dispatch runs its
// workgroups in parallel on the worker pool; dispatches themselves are
// strictly sequential, matching the single per-frame command stream the
// pipeline relies on.
func (d *Device) Submit() {
	d.mu.Lock()
	cmds := d.pending
	d.pending = nil
	d.mu.Unlock()

	for i := range cmds {
		d.execute(&cmds[i])
	}
}

// WaitIdle is a no-op: Submit executes synchronously.
func (d *Device) WaitIdle() {}

// dispatchBindings adapts a dispatch's bind groups to gpu.Bindings.
type dispatchBindings struct {
	groups *[maxBindGroups]*bindGroup
}

func (b dispatchBindings) Buffer(group, binding uint32) []byte {
	g := b.groups[group]
	if g == nil || binding >= uint32(len(g.slots)) {
		return nil
	}
	return g.slots[binding].buf
}

func (b dispatchBindings) Texture(group, binding uint32) *gpu.TextureBinding {
	g := b.groups[group]
	if g == nil || binding >= uint32(len(g.slots)) {
		return nil
	}
	return g.slots[binding].tex
}

func (d *Device) execute(cmd *dispatchCmd) {
	x, y, z := cmd.x, cmd.y, cmd.z
	if cmd.indirect != nil {
		// Indirect args were written by a previous dispatch in this
		// same stream; no concurrent writers remain by now.
		args := gpu.U32(cmd.indirect.data[cmd.indirectOff:])
		if len(args) < 3 {
			return
		}
		x, y, z = args[0], args[1], args[2]
	}
	if x == 0 || y == 0 || z == 0 {
		return
	}

	wg := cmd.pipeline.wgSize
	kernel := cmd.pipeline.kernel
	bindings := dispatchBindings{groups: &cmd.groups}

	total := int(x) * int(y) * int(z)
	d.pool.forEach(total, func(i int) {
		gx := uint32(i) % x
		gy := (uint32(i) / x) % y
		gz := uint32(i) / (x * y)

		inv := gpu.Invocation{Bindings: bindings}
		for lz := uint32(0); lz < wg[2]; lz++ {
			for ly := uint32(0); ly < wg[1]; ly++ {
				for lx := uint32(0); lx < wg[0]; lx++ {
					inv.GlobalID = [3]uint32{
						gx*wg[0] + lx,
						gy*wg[1] + ly,
						gz*wg[2] + lz,
					}
					kernel(&inv)
				}
			}
		}
	})
}
