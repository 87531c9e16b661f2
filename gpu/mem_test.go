// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"math"
	"sync"
	"testing"
)

func TestTypedViews(t *testing.T) {
	b := make([]byte, 16)

	u := U32(b)
	if len(u) != 4 {
		t.Fatalf("len(U32) = %d, want 4", len(u))
	}
	u[1] = 0xDEADBEEF
	if b[4] != 0xEF || b[7] != 0xDE {
		t.Error("U32 view does not alias the backing bytes")
	}

	f := F32(b)
	f[2] = 1.5
	if got := math.Float32frombits(U32(b)[2]); got != 1.5 {
		t.Errorf("F32 aliasing readback = %g, want 1.5", got)
	}

	w := U64(b)
	if len(w) != 2 {
		t.Fatalf("len(U64) = %d, want 2", len(w))
	}

	if U32(nil) != nil || F32([]byte{1, 2}) != nil || U64(make([]byte, 4)) != nil {
		t.Error("short slices should yield nil views")
	}
}

func TestAtomicAddU32_ReturnsPrevious(t *testing.T) {
	words := []uint32{10}
	if got := AtomicAddU32(words, 0, 5); got != 10 {
		t.Errorf("AtomicAddU32 returned %d, want previous value 10", got)
	}
	if words[0] != 15 {
		t.Errorf("words[0] = %d, want 15", words[0])
	}
}

func TestAtomicAddU32_UniqueSlots(t *testing.T) {
	// Concurrent adders must receive distinct slot values.
	const n = 512
	words := []uint32{0}
	seen := make([]uint32, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = AtomicAddU32(words, 0, 1)
		}(i)
	}
	wg.Wait()

	if words[0] != n {
		t.Fatalf("final count = %d, want %d", words[0], n)
	}
	got := make(map[uint32]bool, n)
	for _, s := range seen {
		if s >= n || got[s] {
			t.Fatalf("slot %d duplicated or out of range", s)
		}
		got[s] = true
	}
}

func TestAtomicMinU64(t *testing.T) {
	words := []uint64{100}

	AtomicMinU64(words, 0, 200)
	if words[0] != 100 {
		t.Errorf("min with larger value changed word to %d", words[0])
	}
	AtomicMinU64(words, 0, 42)
	if words[0] != 42 {
		t.Errorf("min with smaller value left word at %d", words[0])
	}
}

func TestAtomicMinU64_Contention(t *testing.T) {
	const n = 256
	words := []uint64{^uint64(0)}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			AtomicMinU64(words, 0, uint64(1000+i))
		}(i)
	}
	wg.Wait()

	if words[0] != 1000 {
		t.Errorf("contended min = %d, want 1000", words[0])
	}
}
