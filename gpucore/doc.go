// Package gpucore defines the device contract the pipeline renders through.
//
// A [Device] hands out opaque IDs ([TextureID], [BufferID], [ProgramID])
// and records work through an [Encoder]. Programs are identified by a
// [ProgramKind]: full-screen transform passes are recorded with
// [Encoder.Draw], block-compression kernels with [Encoder.Dispatch].
//
//	+-----------------+
//	|    pipecheck    |
//	| (stages, chain) |
//	+--------+--------+
//	         |
//	+--------v--------+
//	|     gpucore     |
//	|  Device/Encoder |
//	+--------+--------+
//	         |
//	+--------+-----------------+
//	|                          |
//	+--------v--------+  +-----v-----------+
//	| backend/native  |  | backend/software|
//	| (wgpu hal)      |  | (CPU kernels)   |
//	+-----------------+  +-----------------+
//
// # Resource Management
//
// Devices are responsible for tracking the mapping between IDs and actual
// resources. Destroying an unknown or already destroyed ID is a no-op.
//
// # Submission
//
// All passes recorded on one encoder are submitted as a single unit by
// [Encoder.Submit]. Devices must accept encoders from several goroutines;
// submissions are serialized on the device queue.
package gpucore
