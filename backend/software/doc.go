// Package software implements gpucore.Device on the CPU.
//
// Every program kind runs the same per-pixel kernels the WGSL shaders
// implement (package colorsci), and block compression uses the reference
// encoders in package bc. RGBA16Float targets round every texel through
// IEEE half precision, so outputs match what a GPU stores.
//
// The device registers itself as the "software" backend on import:
//
//	import _ "github.com/gogpu/pipecheck/backend/software"
package software
