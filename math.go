// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import "github.com/chewxy/math32"

// Small float32 vector helpers shared by the stage kernels. Kernels run
// once per invocation on the hot path, so these stay allocation-free
// over fixed arrays instead of going through mgl32 values.

func dot3(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func sub3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func add3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func scale3(a [3]float32, s float32) [3]float32 {
	return [3]float32{a[0] * s, a[1] * s, a[2] * s}
}

func cross3(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func len3(a [3]float32) float32 {
	return math32.Sqrt(dot3(a, a))
}

func normalize3(a [3]float32) [3]float32 {
	l := len3(a)
	if l == 0 {
		return a
	}
	return scale3(a, 1/l)
}

// mulPoint transforms a point by a column-major 4x4 matrix, returning
// homogeneous clip coordinates.
func mulPoint(m *[16]float32, p [3]float32) [4]float32 {
	var out [4]float32
	for i := 0; i < 4; i++ {
		out[i] = m[i]*p[0] + m[4+i]*p[1] + m[8+i]*p[2] + m[12+i]
	}
	return out
}
