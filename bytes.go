// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import "unsafe"

// structToBytes reinterprets a struct as its raw GPU-buffer bytes.
// T must contain only fixed-size scalar fields.
func structToBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v)) //nolint:gosec // fixed-layout GPU struct
}

// sliceToBytes reinterprets a slice of fixed-layout structs.
func sliceToBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), uintptr(len(s))*unsafe.Sizeof(s[0])) //nolint:gosec // fixed-layout GPU structs
}

// bytesToStruct views device memory as a fixed-layout struct. The
// returned pointer aliases b; it stays valid while b does.
func bytesToStruct[T any](b []byte) *T {
	var zero T
	_ = b[unsafe.Sizeof(zero)-1]
	return (*T)(unsafe.Pointer(&b[0])) //nolint:gosec // aligned device memory
}

// bytesToSlice views device memory as a slice of fixed-layout structs.
func bytesToSlice[T any](b []byte) []T {
	var zero T
	n := uintptr(len(b)) / unsafe.Sizeof(zero)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n) //nolint:gosec // aligned device memory
}
