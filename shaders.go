// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import _ "embed"

// Stage shader sources. Hardware devices compile these; the software
// device executes the matching Go kernels and keeps the sources for
// diagnostics.

//go:embed shaders/hiz_pyramid.wgsl
var hizWGSL string

//go:embed shaders/cluster_cull.wgsl
var cullWGSL string

//go:embed shaders/sw_raster.wgsl
var rasterWGSL string

//go:embed shaders/material_resolve.wgsl
var resolveWGSL string
