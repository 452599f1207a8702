package pipecheck

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/pipecheck/gpucore"
)

// StageKind is the closed set of stage variants.
type StageKind int

// Stage kinds in pipeline order. The values are the stage indices of an
// Instance.
const (
	StageSource StageKind = iota
	StageBCCompress
	StageBCDecompress
	StageInputConvert
	StageColorGrade
	StageRRT
	StageODT
	StageOutputEncode
	StageDisplayRemap
	StageFinalDisplay

	// NumStages is the length of an Instance's stage list.
	NumStages = int(StageFinalDisplay) + 1
)

var stageNames = [...]string{
	StageSource:       "Source",
	StageBCCompress:   "BC Compress",
	StageBCDecompress: "BC Decompress",
	StageInputConvert: "Input Convert",
	StageColorGrade:   "Color Grade",
	StageRRT:          "RRT",
	StageODT:          "ODT",
	StageOutputEncode: "Output Encode",
	StageDisplayRemap: "Display Remap",
	StageFinalDisplay: "Final Display",
}

func (k StageKind) String() string {
	if k >= 0 && int(k) < len(stageNames) {
		return stageNames[k]
	}
	return fmt.Sprintf("StageKind(%d)", int(k))
}

// OutputRef is a stage output: either a texture the stage owns, an alias
// of another stage's output, or the pipeline source.
type OutputRef struct {
	kind    refKind
	texture gpucore.TextureID
	stage   int
}

type refKind uint8

const (
	refNone refKind = iota
	refOwned
	refAlias
	refSource
)

// Owned refers to a texture owned by the stage itself.
func Owned(t gpucore.TextureID) OutputRef { return OutputRef{kind: refOwned, texture: t} }

// AliasOf refers to the output of stage i.
func AliasOf(i int) OutputRef { return OutputRef{kind: refAlias, stage: i} }

// SourceRef refers to the pipeline source texture.
func SourceRef() OutputRef { return OutputRef{kind: refSource} }

// IsOwned reports whether r names a texture of its own stage.
func (r OutputRef) IsOwned() bool { return r.kind == refOwned }

// IsAlias reports whether r forwards another stage's output, and which.
func (r OutputRef) IsAlias() (int, bool) { return r.stage, r.kind == refAlias }

// IsSource reports whether r is the pipeline source.
func (r OutputRef) IsSource() bool { return r.kind == refSource }

func (r OutputRef) String() string {
	switch r.kind {
	case refOwned:
		return fmt.Sprintf("Owned(%d)", r.texture)
	case refAlias:
		return fmt.Sprintf("AliasOf(%d)", r.stage)
	case refSource:
		return "Source"
	}
	return "None"
}

// stageEnv is what a stage needs from its renderer.
type stageEnv struct {
	dev     gpucore.Device
	width   uint32
	height  uint32
	uniform gpucore.BufferID
	log     *slog.Logger
}

// Stage is one step of the pipeline. The set of implementations is
// closed: SourceStage, TransformStage, BCCompressStage and
// BCDecompressStage. Stages are not safe for concurrent use; an Instance
// serializes access to its own.
type Stage interface {
	Kind() StageKind
	Name() string

	// Enabled reports the user toggle.
	Enabled() bool
	SetEnabled(on bool)

	// Available is false when the stage cannot run on this device or
	// source. An unavailable stage is always bypassed.
	Available() bool
	SetAvailable(ok bool)

	// Output is the texture committed by the last render, or
	// gpucore.InvalidID before one.
	Output() gpucore.TextureID

	initialize(env *stageEnv) error
	resize(width, height uint32) error
	// encode records the stage's passes and returns its output texture.
	// Returning input means the stage passes its input through.
	encode(enc gpucore.Encoder, input gpucore.TextureID) (gpucore.TextureID, error)
	commit(out gpucore.TextureID)
	destroy()
}

// baseStage carries the toggle state shared by every variant.
type baseStage struct {
	kind      StageKind
	enabled   bool
	available bool
	output    gpucore.TextureID
	env       *stageEnv
}

func newBase(kind StageKind) baseStage {
	return baseStage{kind: kind, enabled: true, available: true}
}

func (b *baseStage) Kind() StageKind           { return b.kind }
func (b *baseStage) Name() string              { return b.kind.String() }
func (b *baseStage) Enabled() bool             { return b.enabled }
func (b *baseStage) SetEnabled(on bool)        { b.enabled = on }
func (b *baseStage) Available() bool           { return b.available }
func (b *baseStage) SetAvailable(ok bool)      { b.available = ok }
func (b *baseStage) Output() gpucore.TextureID { return b.output }

func (b *baseStage) commit(out gpucore.TextureID) { b.output = out }

func (b *baseStage) initialize(env *stageEnv) error {
	b.env = env
	return nil
}

func (b *baseStage) logger() *slog.Logger {
	if b.env != nil && b.env.log != nil {
		return b.env.log
	}
	return Logger()
}

// SourceStage exposes the pipeline source. It never renders.
type SourceStage struct {
	baseStage
}

// NewSourceStage returns the source stage.
func NewSourceStage() *SourceStage {
	return &SourceStage{baseStage: newBase(StageSource)}
}

func (s *SourceStage) resize(uint32, uint32) error { return nil }

func (s *SourceStage) encode(_ gpucore.Encoder, input gpucore.TextureID) (gpucore.TextureID, error) {
	return input, nil
}

func (s *SourceStage) destroy() {}
