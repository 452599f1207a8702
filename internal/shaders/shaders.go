// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shaders holds the WGSL sources for every pipeline pass.
package shaders

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
)

//go:embed prelude.wgsl
var prelude string

//go:embed input_convert.wgsl
var inputConvert string

//go:embed color_grade.wgsl
var colorGrade string

//go:embed rrt.wgsl
var rrt string

//go:embed odt.wgsl
var odt string

//go:embed output_encode.wgsl
var outputEncode string

//go:embed display_remap.wgsl
var displayRemap string

//go:embed final_display.wgsl
var finalDisplay string

//go:embed linearize.wgsl
var linearize string

//go:embed bc_sample.wgsl
var bcSample string

//go:embed delta.wgsl
var delta string

//go:embed bc_encode.wgsl
var bcEncode string

var bodies = map[gpucore.ProgramKind]string{
	gpucore.ProgramInputConvert: inputConvert,
	gpucore.ProgramColorGrade:   colorGrade,
	gpucore.ProgramRRT:          rrt,
	gpucore.ProgramODT:          odt,
	gpucore.ProgramOutputEncode: outputEncode,
	gpucore.ProgramDisplayRemap: displayRemap,
	gpucore.ProgramFinalDisplay: finalDisplay,
	gpucore.ProgramLinearize:    linearize,
	gpucore.ProgramBCSample:     bcSample,
	gpucore.ProgramDelta:        delta,
}

// Source returns the complete WGSL module for a render program kind.
// f is only consulted for ProgramBCSample, where single-channel formats
// replicate red into green and blue.
func Source(kind gpucore.ProgramKind, f bc.Format) (string, error) {
	if kind == gpucore.ProgramBCEncode {
		src, _, err := EncodeSource(f)
		return src, err
	}
	body, ok := bodies[kind]
	if !ok {
		return "", fmt.Errorf("shaders: no source for %s", kind)
	}
	var b strings.Builder
	if kind == gpucore.ProgramBCSample {
		fmt.Fprintf(&b, "const REPLICATE_RED: bool = %t;\n\n", f.Channels() == 1)
	}
	b.WriteString(prelude)
	b.WriteString("\n")
	b.WriteString(body)
	return b.String(), nil
}

// EncodeSource returns the compute module for block format f and the
// entry point that encodes it.
func EncodeSource(f bc.Format) (src, entryPoint string, err error) {
	if !f.Valid() {
		return "", "", fmt.Errorf("shaders: invalid block format %s", f)
	}
	return bcEncode, EntryPoint(f), nil
}

// EntryPoint returns the compute entry point for f, such as "encode_bc6h".
func EntryPoint(f bc.Format) string {
	return "encode_" + strings.ToLower(f.String())
}

// WordsPerBlock is the number of u32 words one encoded block of f occupies.
func WordsPerBlock(f bc.Format) int {
	return f.BlockSize() / 4
}
