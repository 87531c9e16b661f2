// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"sync/atomic"
	"unsafe"
)

// Typed views over device memory.
//
// Software device buffers are backed by 8-byte-aligned allocations, so
// reinterpreting them as word slices is safe. These helpers are the
// software analog of WGSL's typed storage buffer declarations.

// U32 reinterprets b as a uint32 slice. b must be 4-byte aligned.
func U32(b []byte) []uint32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4) //nolint:gosec // aligned device memory
}

// F32 reinterprets b as a float32 slice. b must be 4-byte aligned.
func F32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4) //nolint:gosec // aligned device memory
}

// U64 reinterprets b as a uint64 slice. b must be 8-byte aligned.
func U64(b []byte) []uint64 {
	if len(b) < 8 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8) //nolint:gosec // aligned device memory
}

// Atomic operations for kernels.
//
// These are the software analogs of WGSL atomicAdd/atomicMin. They are
// the only legal way for concurrent invocations to touch shared words.

// AtomicAddU32 atomically adds delta to words[idx] and returns the
// previous value. Matches WGSL atomicAdd.
func AtomicAddU32(words []uint32, idx uint32, delta uint32) uint32 {
	return atomic.AddUint32(&words[idx], delta) - delta
}

// AtomicMinU64 atomically lowers words[idx] to val if val is smaller.
// Matches a 64-bit WGSL atomicMin. The CAS loop makes the compare and
// the write one unit: no interleaving can leave a word mixing two
// writers' halves.
func AtomicMinU64(words []uint64, idx uint32, val uint64) {
	for {
		cur := atomic.LoadUint64(&words[idx])
		if val >= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&words[idx], cur, val) {
			return
		}
	}
}

// AtomicLoadU32 atomically loads words[idx]. Matches WGSL atomicLoad.
func AtomicLoadU32(words []uint32, idx uint32) uint32 {
	return atomic.LoadUint32(&words[idx])
}

// AtomicStoreU32 atomically stores val to words[idx]. Matches WGSL
// atomicStore.
func AtomicStoreU32(words []uint32, idx uint32, val uint32) {
	atomic.StoreUint32(&words[idx], val)
}
