// Package colorsci holds the color math shared by every pipeline stage:
// gamut matrices, transfer functions, tonemap operators and the per-stage
// pixel kernels.
//
// The kernels here are the CPU reference for the WGSL programs in
// internal/shaders. Both must stay numerically in step: the software
// backend runs these functions directly and the verification CLI checks
// them against golden values.
package colorsci
