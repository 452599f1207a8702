package pipecheck

import (
	"fmt"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
	"github.com/gogpu/pipecheck/internal/shaders"
)

// ColorTargetFormat is the render target format of the color stages.
const ColorTargetFormat = gpucore.TextureFormatRGBA32Float

var transformPrograms = map[StageKind]gpucore.ProgramKind{
	StageInputConvert: gpucore.ProgramInputConvert,
	StageColorGrade:   gpucore.ProgramColorGrade,
	StageRRT:          gpucore.ProgramRRT,
	StageODT:          gpucore.ProgramODT,
	StageOutputEncode: gpucore.ProgramOutputEncode,
	StageDisplayRemap: gpucore.ProgramDisplayRemap,
	StageFinalDisplay: gpucore.ProgramFinalDisplay,
}

// TransformStage is one full-screen pass over the shared uniform block.
type TransformStage struct {
	baseStage
	program gpucore.ProgramKind

	prog    gpucore.ProgramID
	progErr error
	target  gpucore.TextureID
}

// NewTransformStage returns the transform stage of kind k. It panics if k
// is not a transform kind.
func NewTransformStage(k StageKind) *TransformStage {
	pk, ok := transformPrograms[k]
	if !ok {
		panic(fmt.Sprintf("pipecheck: %v is not a transform stage", k))
	}
	return &TransformStage{baseStage: newBase(k), program: pk}
}

// ProgramError returns why the stage's program failed to build, or nil.
func (s *TransformStage) ProgramError() error { return s.progErr }

func (s *TransformStage) initialize(env *stageEnv) error {
	s.env = env
	src, err := shaders.Source(s.program, bc.FormatNone)
	if err == nil {
		s.prog, err = env.dev.CreateProgram(&gpucore.ProgramDescriptor{
			Label:        s.Name(),
			Kind:         s.program,
			Source:       src,
			TargetFormat: ColorTargetFormat,
		})
	}
	if err != nil {
		// The stage still exists; encode reports the failure every frame.
		s.progErr = err
		s.logger().Warn("pipecheck: stage program failed", "stage", s.Name(), "err", err)
	}
	return s.resize(env.width, env.height)
}

func (s *TransformStage) resize(width, height uint32) error {
	s.destroyTarget()
	if width == 0 || height == 0 {
		return nil
	}
	id, err := s.env.dev.CreateTexture(&gpucore.TextureDescriptor{
		Label:  s.Name(),
		Width:  width,
		Height: height,
		Format: ColorTargetFormat,
		Usage: gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageTextureBinding |
			gpucore.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("pipecheck: %s target: %w", s.Name(), err)
	}
	s.target = id
	return nil
}

func (s *TransformStage) encode(enc gpucore.Encoder, input gpucore.TextureID) (gpucore.TextureID, error) {
	if s.prog == gpucore.InvalidID {
		if s.progErr != nil {
			return input, fmt.Errorf("%w: %w", ErrNoProgram, s.progErr)
		}
		return input, ErrNoProgram
	}
	if s.target == gpucore.InvalidID {
		return input, ErrInvalidSize
	}
	err := enc.Draw(s.prog, s.target, gpucore.Bindings{
		Uniform:  s.env.uniform,
		Textures: []gpucore.TextureID{input},
	})
	if err != nil {
		return input, err
	}
	return s.target, nil
}

func (s *TransformStage) destroyTarget() {
	if s.target != gpucore.InvalidID {
		s.env.dev.DestroyTexture(s.target)
		s.target = gpucore.InvalidID
	}
	s.output = gpucore.InvalidID
}

func (s *TransformStage) destroy() {
	if s.env == nil {
		return
	}
	s.destroyTarget()
	if s.prog != gpucore.InvalidID {
		s.env.dev.DestroyProgram(s.prog)
		s.prog = gpucore.InvalidID
	}
}
