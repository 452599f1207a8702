// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements gpucore.Device on top of gogpu/wgpu/hal.
//
// The device opens the first discrete or integrated Vulkan adapter, or
// borrows a device from a gpucontext.DeviceProvider. WGSL sources are
// compiled to SPIR-V with gogpu/naga before pipeline creation, so a bad
// shader fails in CreateProgram rather than at submit time.
//
// Importing the package registers the "native" backend:
//
//	import _ "github.com/gogpu/pipecheck/backend/native"
//
// Build with -tags nogpu to leave it out.
package native
