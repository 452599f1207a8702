package gpucore

import (
	"fmt"

	"github.com/gogpu/pipecheck/internal/bc"
)

// ProgramKind identifies what a program computes.
type ProgramKind uint32

// Program kinds.
const (
	ProgramInputConvert ProgramKind = iota + 1
	ProgramColorGrade
	ProgramRRT
	ProgramODT
	ProgramOutputEncode
	ProgramDisplayRemap
	ProgramFinalDisplay

	// ProgramLinearize removes the input transfer function, keeping the
	// primaries. It feeds the BC6H encoder.
	ProgramLinearize

	// ProgramBCSample decodes a compressed texture.
	ProgramBCSample

	// ProgramDelta renders |reference - decoded| * amplification.
	ProgramDelta

	// ProgramBCEncode compresses one 4x4 block per workgroup into a
	// storage buffer.
	ProgramBCEncode
)

var programKindNames = [...]string{
	ProgramInputConvert: "input_convert",
	ProgramColorGrade:   "color_grade",
	ProgramRRT:          "rrt",
	ProgramODT:          "odt",
	ProgramOutputEncode: "output_encode",
	ProgramDisplayRemap: "display_remap",
	ProgramFinalDisplay: "final_display",
	ProgramLinearize:    "linearize",
	ProgramBCSample:     "bc_sample",
	ProgramDelta:        "delta",
	ProgramBCEncode:     "bc_encode",
}

func (k ProgramKind) String() string {
	if int(k) < len(programKindNames) && programKindNames[k] != "" {
		return programKindNames[k]
	}
	return fmt.Sprintf("ProgramKind(%d)", uint32(k))
}

// Layout describes the bindings a program kind expects.
type Layout struct {
	// Textures is the number of texture bindings after the uniform.
	Textures int

	// Compute is set for kinds recorded with Dispatch; they also bind a
	// storage buffer after the textures.
	Compute bool

	// UniformSize is the size of the uniform block at binding 0.
	UniformSize uint64
}

// Layout returns the binding layout of k.
func (k ProgramKind) Layout() Layout {
	switch k {
	case ProgramDelta:
		return Layout{Textures: 2, UniformSize: 16}
	case ProgramBCSample:
		return Layout{Textures: 1, UniformSize: 16}
	case ProgramBCEncode:
		return Layout{Textures: 1, Compute: true, UniformSize: 16}
	}
	return Layout{Textures: 1, UniformSize: ParamsUniformSize}
}

// ParamsUniformSize is the size of the shared parameter block.
const ParamsUniformSize = 192

// ProgramDescriptor describes a program to compile.
type ProgramDescriptor struct {
	// Label is an optional debug label.
	Label string

	Kind ProgramKind

	// Source is the WGSL module. The software device ignores it.
	Source string

	// EntryPoint of a compute program. Render programs always use
	// vs_main/fs_main.
	EntryPoint string

	// Format selects the block format of ProgramBCEncode and
	// ProgramBCSample.
	Format bc.Format

	// TargetFormat is the color target of render programs.
	TargetFormat TextureFormat
}

// Validate checks that d names a known kind with the fields it needs.
func (d *ProgramDescriptor) Validate() error {
	if d.Kind < ProgramInputConvert || d.Kind > ProgramBCEncode {
		return fmt.Errorf("gpucore: unknown program kind %d", d.Kind)
	}
	if d.Kind == ProgramBCEncode || d.Kind == ProgramBCSample {
		if !d.Format.Valid() {
			return fmt.Errorf("gpucore: %s program needs a block format", d.Kind)
		}
	}
	return nil
}
