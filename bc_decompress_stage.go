package pipecheck

import (
	"fmt"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
	"github.com/gogpu/pipecheck/internal/shaders"
)

// BCDecompressStage samples the uploaded compressed texture, letting the
// hardware decode it, and optionally renders the amplified difference
// against the uncompressed reference.
type BCDecompressStage struct {
	baseStage

	lastUploaded *BCEncodeResult
	bcTex        gpucore.TextureID
	bcFormat     BCFormat
	bcW, bcH     uint32

	samplers  map[BCFormat]gpucore.ProgramID
	deltaProg gpucore.ProgramID
	outTex    gpucore.TextureID
	deltaTex  gpucore.TextureID

	sampleUniform *uniformBuffer
	deltaUniform  *uniformBuffer

	delta         bool
	amplification float32
	perceptual    bool
}

// NewBCDecompressStage returns a decompress stage with nothing uploaded.
func NewBCDecompressStage() *BCDecompressStage {
	return &BCDecompressStage{
		baseStage:     newBase(StageBCDecompress),
		samplers:      make(map[BCFormat]gpucore.ProgramID),
		amplification: 10,
	}
}

// SetDelta configures the delta pass. perceptual selects the
// tonemap-then-gamma comparison and should be set when the compared data
// is physically linear.
func (s *BCDecompressStage) SetDelta(enabled bool, amplification float32, perceptual bool) {
	s.delta = enabled
	s.amplification = amplification
	s.perceptual = perceptual
}

// DeltaEnabled reports whether the delta pass runs.
func (s *BCDecompressStage) DeltaEnabled() bool { return s.delta }

// Perceptual reports whether the delta compares perceptually mapped values.
func (s *BCDecompressStage) Perceptual() bool { return s.perceptual }

// DeltaOutput returns the delta target, or gpucore.InvalidID when delta
// is off or nothing has been decoded.
func (s *BCDecompressStage) DeltaOutput() gpucore.TextureID {
	if !s.delta || s.lastUploaded == nil {
		return gpucore.InvalidID
	}
	return s.deltaTex
}

// DecodedTexture returns the decode target, valid once a render ran with
// uploaded data.
func (s *BCDecompressStage) DecodedTexture() gpucore.TextureID { return s.outTex }

// Uploaded returns the result currently held by the compressed texture.
func (s *BCDecompressStage) Uploaded() *BCEncodeResult { return s.lastUploaded }

// UploadBCData uploads res as a compressed texture. It reports false and
// does nothing when res is nil or is the result already uploaded, so a
// texture a previous frame sampled is never replaced for the same data.
func (s *BCDecompressStage) UploadBCData(res *BCEncodeResult) (bool, error) {
	if res == nil || res == s.lastUploaded {
		return false, nil
	}
	if s.env == nil {
		return false, ErrNoDevice
	}
	dev := s.env.dev
	if s.bcTex == gpucore.InvalidID || s.bcFormat != res.Format ||
		s.bcW != res.OriginalWidth || s.bcH != res.OriginalHeight {
		s.destroyBC()
		id, err := dev.CreateTexture(&gpucore.TextureDescriptor{
			Label:  "bc " + res.Format.String(),
			Width:  res.OriginalWidth,
			Height: res.OriginalHeight,
			Format: gpucore.CompressedFormat(res.Format),
			Usage:  gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
		})
		if err != nil {
			return false, fmt.Errorf("pipecheck: create %s texture: %w", res.Format, err)
		}
		s.bcTex, s.bcFormat = id, res.Format
		s.bcW, s.bcH = res.OriginalWidth, res.OriginalHeight
	}
	if err := dev.WriteTexture(s.bcTex, res.Data); err != nil {
		s.destroyBC()
		return false, fmt.Errorf("pipecheck: upload %s blocks: %w", res.Format, err)
	}
	s.lastUploaded = res
	s.logger().Debug("pipecheck: BC data uploaded", "format", res.Format, "bytes", len(res.Data))
	return true, nil
}

func (s *BCDecompressStage) sampler(f BCFormat) (gpucore.ProgramID, error) {
	if id, ok := s.samplers[f]; ok {
		return id, nil
	}
	src, err := shaders.Source(gpucore.ProgramBCSample, f)
	if err != nil {
		return gpucore.InvalidID, err
	}
	id, err := s.env.dev.CreateProgram(&gpucore.ProgramDescriptor{
		Label:        "bc sample " + f.String(),
		Kind:         gpucore.ProgramBCSample,
		Source:       src,
		Format:       f,
		TargetFormat: LinearTargetFormat,
	})
	if err != nil {
		return gpucore.InvalidID, err
	}
	s.samplers[f] = id
	return id, nil
}

func (s *BCDecompressStage) ensureDelta() error {
	dev := s.env.dev
	if s.deltaProg == gpucore.InvalidID {
		src, err := shaders.Source(gpucore.ProgramDelta, bc.FormatNone)
		if err != nil {
			return err
		}
		s.deltaProg, err = dev.CreateProgram(&gpucore.ProgramDescriptor{
			Label:        "delta",
			Kind:         gpucore.ProgramDelta,
			Source:       src,
			TargetFormat: LinearTargetFormat,
		})
		if err != nil {
			return err
		}
	}
	if s.deltaTex == gpucore.InvalidID {
		id, err := s.newTarget("bc delta")
		if err != nil {
			return err
		}
		s.deltaTex = id
	}
	if s.deltaUniform == nil {
		u, err := newUniformBuffer(dev, "delta", 16)
		if err != nil {
			return err
		}
		s.deltaUniform = u
	}
	return nil
}

func (s *BCDecompressStage) newTarget(label string) (gpucore.TextureID, error) {
	return s.env.dev.CreateTexture(&gpucore.TextureDescriptor{
		Label:  label,
		Width:  s.env.width,
		Height: s.env.height,
		Format: LinearTargetFormat,
		Usage: gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageTextureBinding |
			gpucore.TextureUsageCopySrc,
	})
}

func (s *BCDecompressStage) initialize(env *stageEnv) error {
	s.env = env
	return s.resize(env.width, env.height)
}

func (s *BCDecompressStage) resize(width, height uint32) error {
	s.destroyTargets()
	s.destroyBC()
	if width == 0 || height == 0 {
		return nil
	}
	id, err := s.newTarget("bc decoded")
	if err != nil {
		return fmt.Errorf("pipecheck: %s target: %w", s.Name(), err)
	}
	s.outTex = id
	return nil
}

func (s *BCDecompressStage) encode(enc gpucore.Encoder, input gpucore.TextureID) (gpucore.TextureID, error) {
	res := s.lastUploaded
	if res == nil || s.bcTex == gpucore.InvalidID || s.outTex == gpucore.InvalidID {
		return input, nil
	}
	prog, err := s.sampler(res.Format)
	if err != nil {
		return input, err
	}
	if s.sampleUniform == nil {
		if s.sampleUniform, err = newUniformBuffer(s.env.dev, "bc sample", 16); err != nil {
			return input, err
		}
	}
	su := gpucore.SampleUniforms{Width: float32(res.OriginalWidth), Height: float32(res.OriginalHeight)}
	if err := s.sampleUniform.write(su.Bytes()); err != nil {
		return input, err
	}
	err = enc.Draw(prog, s.outTex, gpucore.Bindings{
		Uniform:  s.sampleUniform.id,
		Textures: []gpucore.TextureID{s.bcTex},
	})
	if err != nil {
		return input, err
	}
	if s.delta {
		if err := s.encodeDelta(enc, input, res); err != nil {
			// The decode itself succeeded; only the visualization is lost.
			s.logger().Warn("pipecheck: delta pass failed", "err", err)
		}
	}
	return s.outTex, nil
}

func (s *BCDecompressStage) encodeDelta(enc gpucore.Encoder, input gpucore.TextureID, res *BCEncodeResult) error {
	if err := s.ensureDelta(); err != nil {
		return err
	}
	ref := input
	if res.Linearized && res.reference != gpucore.InvalidID {
		ref = res.reference
	}
	u := gpucore.DeltaUniforms{Amplification: s.amplification}
	if s.perceptual {
		u.Perceptual = 1
	}
	if err := s.deltaUniform.write(u.Bytes()); err != nil {
		return err
	}
	return enc.Draw(s.deltaProg, s.deltaTex, gpucore.Bindings{
		Uniform:  s.deltaUniform.id,
		Textures: []gpucore.TextureID{ref, s.outTex},
	})
}

func (s *BCDecompressStage) destroyBC() {
	if s.bcTex != gpucore.InvalidID {
		s.env.dev.DestroyTexture(s.bcTex)
		s.bcTex = gpucore.InvalidID
	}
	s.lastUploaded = nil
}

func (s *BCDecompressStage) destroyTargets() {
	dev := s.env.dev
	for _, t := range []*gpucore.TextureID{&s.outTex, &s.deltaTex} {
		if *t != gpucore.InvalidID {
			dev.DestroyTexture(*t)
			*t = gpucore.InvalidID
		}
	}
	s.output = gpucore.InvalidID
}

func (s *BCDecompressStage) destroy() {
	if s.env == nil {
		return
	}
	s.destroyTargets()
	s.destroyBC()
	for f, id := range s.samplers {
		s.env.dev.DestroyProgram(id)
		delete(s.samplers, f)
	}
	if s.deltaProg != gpucore.InvalidID {
		s.env.dev.DestroyProgram(s.deltaProg)
		s.deltaProg = gpucore.InvalidID
	}
	s.sampleUniform.destroy()
	s.deltaUniform.destroy()
	s.sampleUniform, s.deltaUniform = nil, nil
}
