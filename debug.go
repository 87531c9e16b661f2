// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"image"
	"image/color"
)

// DebugVisibilityImage renders the visibility buffer as an image:
// each (meshlet, triangle) id hashed to a stable color, background
// black. Intended for dumping to disk while debugging culling or
// rasterization.
func (p *Pipeline) DebugVisibilityImage() (*image.NRGBA, error) {
	words, err := p.visibilityWords()
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, int(p.cfg.Width), int(p.cfg.Height)))
	for y := uint32(0); y < p.cfg.Height; y++ {
		for x := uint32(0); x < p.cfg.Width; x++ {
			id := uint32(words[y*p.cfg.Width+x])
			c := color.NRGBA{A: 0xff}
			if id != visIDNone {
				h := hashID(id)
				c.R = uint8(h)
				c.G = uint8(h >> 8)
				c.B = uint8(h >> 16)
			}
			img.SetNRGBA(int(x), int(y), c)
		}
	}
	return img, nil
}

// hashID spreads ids so adjacent triangles get distinct colors.
// fmix32 finalizer from MurmurHash3.
func hashID(id uint32) uint32 {
	h := id
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
