// Package pipecheck is a GPU pipeline checker for HDR images.
//
// # Overview
//
// An Instance takes a decoded floating-point RGBA image and renders it
// through a fixed chain of stages, keeping every intermediate result
// available for inspection:
//
//	0 Source         the image as uploaded
//	1 BC Compress    block compression (BC1-BC7, BC6H) on the GPU
//	2 BC Decompress  hardware decode of the compressed texture, plus delta
//	3 Input Convert  input space to linear Rec.709
//	4 Color Grade    exposure, white balance, lift/gamma/gain, saturation
//	5 RRT            tonemap
//	6 ODT            output primaries
//	7 Output Encode  output transfer function
//	8 Display Remap  black and white level
//	9 Final Display  view exposure and sRGB for the screen
//
// A disabled stage forwards its input: its output is the previous stage's
// texture, with no pass recorded. Stages 0 and 9 cannot be disabled;
// stages 1 and 2 toggle together.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/pipecheck"
//	    "github.com/gogpu/pipecheck/backend"
//	    _ "github.com/gogpu/pipecheck/backend/native"
//	    _ "github.com/gogpu/pipecheck/backend/software"
//	)
//
//	dev, err := backend.Default()
//	inst, err := pipecheck.NewInstance(dev)
//	err = inst.SetSource(pixels, w, h, pipecheck.SpaceSRGB)
//	_, err = inst.RefreshBC(ctx) // compress and upload, off the render path
//	err = inst.Render(ctx)
//	px, status, err := inst.ReadPixel(ctx, 9, x, y)
//
// # Block compression
//
// BCCompressStage.RunEncode is cached on (format, quality, size, input
// space). Concurrent requests never dispatch twice: a request arriving
// while an encode is in flight waits for it and re-checks the cache. HDR
// formats encode perceptually encoded input through a linearization pass
// first; the delta view then compares against that linear intermediate.
//
// # Multiple pipelines
//
// A Manager runs several instances on one device. In linked mode settings
// and toggles apply to all instances at once.
//
// # Logging
//
// pipecheck logs through [log/slog] and is silent by default. See
// [SetLogger].
package pipecheck
