// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu defines the abstract compute device the meshlet pipeline
// runs on.
//
// The interface mirrors WebGPU's resource model: buffers, mip-chained
// textures, shader modules, bind group layouts, bind groups, compute
// pipelines, and compute pass encoders, all referenced through opaque
// uint64 IDs. Each stage of the pipeline describes its resource needs as
// "N read-only bindings + M read/write bindings" and never touches a
// concrete graphics API.
//
// Two implementations ship with the module:
//
//   - gpu/soft: a complete software device. Compute pipelines carry a Go
//     [Kernel] alongside the WGSL entry point, and dispatches execute the
//     kernel data-parallel across workgroups on a worker pool. Buffers
//     are 8-byte aligned so kernels can use real atomic operations.
//   - gpu/wgpu: a hardware adapter over github.com/gogpu/wgpu/hal that
//     compiles the WGSL source and ignores the Go kernel.
//
// # Resource lifecycle
//
// Resources are created via Create* methods and released via Destroy*
// methods. IDs become invalid after destruction. Destroying a resource
// that is referenced by a live bind group is undefined behavior.
//
// # Execution model
//
// Work is recorded into compute passes and executed at [Device.Submit].
// Passes run in submission order; within a dispatch, invocations are
// unordered and may only coordinate through atomics. There is no error
// channel for submitted work: construction-time failures are returned
// eagerly, submitted frames are fire-and-forget.
package gpu
