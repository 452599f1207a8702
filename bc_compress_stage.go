package pipecheck

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
	"github.com/gogpu/pipecheck/internal/colorsci"
	"github.com/gogpu/pipecheck/internal/shaders"
)

// LinearTargetFormat is the format of the BC-adjacent render targets.
const LinearTargetFormat = gpucore.TextureFormatRGBA16Float

// EncodeKey identifies a compressed result. Space only matters for HDR
// formats, whose encoder may linearize the input first.
type EncodeKey struct {
	Format  BCFormat
	Quality float32
	Width   uint32
	Height  uint32
	Space   ColorSpace
}

func (k EncodeKey) normalized() EncodeKey {
	if !k.Format.IsHDR() {
		k.Space = colorsci.LinearRec709
	}
	return k
}

// BCEncodeResult is one packed compressed image.
type BCEncodeResult struct {
	Data   []byte
	Format BCFormat

	// Width and Height are padded to a multiple of 4.
	Width          uint32
	Height         uint32
	OriginalWidth  uint32
	OriginalHeight uint32
	BlocksPerRow   uint32
	BlockSize      uint32

	// Linearized is set when the input went through the linearization
	// pre-pass. Space is then the linear space the blocks hold. For other
	// HDR results it is the declared input space; LDR formats ignore the
	// input space and leave it at LinearRec709.
	Linearized bool
	Space      ColorSpace

	key       EncodeKey
	reference gpucore.TextureID
}

// Key returns the cache key the result was produced for.
func (r *BCEncodeResult) Key() EncodeKey { return r.key }

type encodeState uint8

const (
	encodeIdle encodeState = iota
	encodePending
	encodeReady
)

func (s encodeState) String() string {
	switch s {
	case encodePending:
		return "pending"
	case encodeReady:
		return "ready"
	}
	return "idle"
}

// BCCompressStage compresses its input on demand. Inside the chain it
// is a passthrough: compressed blocks are not displayable, so its
// inspected output is its input.
//
// RunEncode moves the stage through Idle, Pending(key) and
// Ready(key, result). At most one encode is in flight; a caller arriving
// while one is pending waits for it and then re-checks the cache.
type BCCompressStage struct {
	baseStage

	mu         sync.Mutex
	state      encodeState
	pending    chan struct{}
	pendingKey EncodeKey
	readyKey   EncodeKey
	result     *BCEncodeResult
	generation uint64

	// gpu guards the resources below; it is held for the whole encode.
	gpu        sync.Mutex
	programs   map[BCFormat]gpucore.ProgramID
	linearProg gpucore.ProgramID
	linear     linearTarget // referenced by result
	scratch    linearTarget // linearized by the encode in flight
	encUniform *uniformBuffer
	linUniform *uniformBuffer
	storage    gpucore.BufferID
	storageLen uint64

	dispatches atomic.Int64
}

// linearTarget is a linearized copy of the input at one size.
type linearTarget struct {
	id   gpucore.TextureID
	w, h uint32
}

func (t *linearTarget) destroy(dev gpucore.Device) {
	if t.id != gpucore.InvalidID {
		dev.DestroyTexture(t.id)
	}
	*t = linearTarget{}
}

// NewBCCompressStage returns an idle compress stage.
func NewBCCompressStage() *BCCompressStage {
	return &BCCompressStage{
		baseStage: newBase(StageBCCompress),
		programs:  make(map[BCFormat]gpucore.ProgramID),
	}
}

// Dispatches returns the number of encode dispatches issued so far.
func (s *BCCompressStage) Dispatches() int64 { return s.dispatches.Load() }

// Result returns the last successful result, which may be stale after
// Invalidate, or nil.
func (s *BCCompressStage) Result() *BCEncodeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Cached returns the result for key if it is current.
func (s *BCCompressStage) Cached(key EncodeKey) (*BCEncodeResult, bool) {
	key = key.normalized()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == encodeReady && s.readyKey == key {
		return s.result, true
	}
	return nil, false
}

// Pending reports whether an encode is in flight.
func (s *BCCompressStage) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == encodePending
}

// Invalidate marks the cached result stale, for example after the source
// pixels changed. An encode in flight completes but is not cached.
func (s *BCCompressStage) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.state == encodeReady {
		s.state = encodeIdle
	}
}

// Generation counts Invalidate calls. A result encoded while it changed
// describes pixels that are gone.
func (s *BCCompressStage) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// LinearTexture returns the linearized intermediate of the last result,
// or gpucore.InvalidID when it was encoded from the input directly.
func (s *BCCompressStage) LinearTexture() gpucore.TextureID {
	if r := s.Result(); r != nil {
		return r.reference
	}
	return gpucore.InvalidID
}

// RunEncode returns the compressed form of input under key. A cache hit
// issues no GPU work. On failure the previous result is kept and nil is
// returned with the error.
func (s *BCCompressStage) RunEncode(ctx context.Context, input gpucore.TextureID, key EncodeKey) (*BCEncodeResult, error) {
	key = key.normalized()
	if !key.Format.Valid() {
		return nil, fmt.Errorf("pipecheck: invalid BC format %d", key.Format)
	}
	if key.Width == 0 || key.Height == 0 {
		return nil, ErrInvalidSize
	}
	for {
		s.mu.Lock()
		if s.state == encodeReady && s.readyKey == key {
			r := s.result
			s.mu.Unlock()
			return r, nil
		}
		if s.state == encodePending {
			ch := s.pending
			s.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		prev := s.state
		done := make(chan struct{})
		s.state = encodePending
		s.pending = done
		s.pendingKey = key
		gen := s.generation
		s.mu.Unlock()

		res, err := s.encodeBlocks(ctx, input, key)

		s.mu.Lock()
		switch {
		case err != nil:
			s.state = prev
		case gen != s.generation:
			s.result = res
			s.state = encodeIdle
		default:
			s.result = res
			s.readyKey = key
			s.state = encodeReady
		}
		s.pending = nil
		close(done)
		s.mu.Unlock()

		if err != nil {
			s.logger().Warn("pipecheck: BC encode failed", "format", key.Format, "err", err)
			return nil, err
		}
		s.logger().Debug("pipecheck: BC encode done",
			"format", key.Format, "quality", key.Quality,
			"width", key.Width, "height", key.Height, "linearized", res.Linearized)
		return res, nil
	}
}

func (s *BCCompressStage) encodeBlocks(ctx context.Context, input gpucore.TextureID, key EncodeKey) (*BCEncodeResult, error) {
	if s.env == nil {
		return nil, ErrNoDevice
	}
	s.gpu.Lock()
	defer s.gpu.Unlock()

	dev := s.env.dev
	if err := s.ensureUniforms(); err != nil {
		return nil, err
	}
	enc, err := dev.NewEncoder("bc encode")
	if err != nil {
		return nil, err
	}

	src := input
	space := key.Space
	linearized := false
	if key.Format.IsHDR() && key.Space.IsEncoded() {
		if err := s.recordLinearize(enc, input, key); err != nil {
			enc.Discard()
			return nil, fmt.Errorf("linearize: %w", err)
		}
		src = s.scratch.id
		space = key.Space.Linearized()
		linearized = true
	}

	prog, err := s.program(key.Format)
	if err != nil {
		enc.Discard()
		return nil, err
	}
	bpr := uint32(bc.BlockCount(int(key.Width)))
	rows := uint32(bc.BlockCount(int(key.Height)))
	size := uint64(bpr) * uint64(rows) * uint64(key.Format.BlockSize())
	if err := s.ensureStorage(size); err != nil {
		enc.Discard()
		return nil, err
	}
	u := gpucore.EncodeUniforms{
		Width:        key.Width,
		Height:       key.Height,
		BlocksPerRow: bpr,
		Iterations:   uint32(bc.Iterations(key.Quality)),
	}
	if err := s.encUniform.write(u.Bytes()); err != nil {
		enc.Discard()
		return nil, err
	}
	err = enc.Dispatch(prog, bpr, rows, gpucore.Bindings{
		Uniform:  s.encUniform.id,
		Textures: []gpucore.TextureID{src},
		Storage:  s.storage,
	})
	if err != nil {
		enc.Discard()
		return nil, err
	}
	s.dispatches.Add(1)
	if err := enc.Submit(ctx); err != nil {
		return nil, err
	}
	data, err := dev.ReadBuffer(ctx, s.storage, 0, size)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}

	// Only a finished encode replaces the intermediate the current
	// result points at.
	ref := gpucore.TextureID(gpucore.InvalidID)
	if linearized {
		s.linear, s.scratch = s.scratch, s.linear
		ref = s.linear.id
	}

	return &BCEncodeResult{
		Data:           data,
		Format:         key.Format,
		Width:          uint32(bc.PaddedSize(int(key.Width))),
		Height:         uint32(bc.PaddedSize(int(key.Height))),
		OriginalWidth:  key.Width,
		OriginalHeight: key.Height,
		BlocksPerRow:   bpr,
		BlockSize:      uint32(key.Format.BlockSize()),
		Linearized:     linearized,
		Space:          space,
		key:            key,
		reference:      ref,
	}, nil
}

func (s *BCCompressStage) recordLinearize(enc gpucore.Encoder, input gpucore.TextureID, key EncodeKey) error {
	dev := s.env.dev
	if s.linearProg == gpucore.InvalidID {
		src, err := shaders.Source(gpucore.ProgramLinearize, bc.FormatNone)
		if err != nil {
			return err
		}
		s.linearProg, err = dev.CreateProgram(&gpucore.ProgramDescriptor{
			Label:        "linearize",
			Kind:         gpucore.ProgramLinearize,
			Source:       src,
			TargetFormat: LinearTargetFormat,
		})
		if err != nil {
			return err
		}
	}
	if s.scratch.id == gpucore.InvalidID || s.scratch.w != key.Width || s.scratch.h != key.Height {
		s.scratch.destroy(dev)
		id, err := dev.CreateTexture(&gpucore.TextureDescriptor{
			Label:  "bc linear",
			Width:  key.Width,
			Height: key.Height,
			Format: LinearTargetFormat,
			Usage: gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageTextureBinding |
				gpucore.TextureUsageCopySrc,
		})
		if err != nil {
			return err
		}
		s.scratch = linearTarget{id: id, w: key.Width, h: key.Height}
	}
	p := colorsci.NeutralParams()
	p.InputSpace = key.Space
	if err := s.linUniform.write(paramsBytes(&p)); err != nil {
		return err
	}
	return enc.Draw(s.linearProg, s.scratch.id, gpucore.Bindings{
		Uniform:  s.linUniform.id,
		Textures: []gpucore.TextureID{input},
	})
}

// program returns the cached encode program for f, compiling it once.
func (s *BCCompressStage) program(f BCFormat) (gpucore.ProgramID, error) {
	if id, ok := s.programs[f]; ok {
		return id, nil
	}
	src, entry, err := shaders.EncodeSource(f)
	if err != nil {
		return gpucore.InvalidID, err
	}
	id, err := s.env.dev.CreateProgram(&gpucore.ProgramDescriptor{
		Label:      entry,
		Kind:       gpucore.ProgramBCEncode,
		Source:     src,
		EntryPoint: entry,
		Format:     f,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("compile %s encoder: %w", f, err)
	}
	s.programs[f] = id
	return id, nil
}

func (s *BCCompressStage) ensureUniforms() error {
	var err error
	if s.encUniform == nil {
		if s.encUniform, err = newUniformBuffer(s.env.dev, "bc encode", 16); err != nil {
			return err
		}
	}
	if s.linUniform == nil {
		if s.linUniform, err = newUniformBuffer(s.env.dev, "linearize", UniformBlockSize); err != nil {
			return err
		}
	}
	return nil
}

func (s *BCCompressStage) ensureStorage(size uint64) error {
	if s.storage != gpucore.InvalidID && s.storageLen >= size {
		return nil
	}
	if s.storage != gpucore.InvalidID {
		s.env.dev.DestroyBuffer(s.storage)
		s.storage = gpucore.InvalidID
	}
	id, err := s.env.dev.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "bc blocks",
		Size:  size,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc,
	})
	if err != nil {
		return err
	}
	s.storage, s.storageLen = id, size
	return nil
}

func (s *BCCompressStage) destroyLinear() {
	s.linear.destroy(s.env.dev)
	s.scratch.destroy(s.env.dev)
}

// resize waits for an encode in flight; the intermediates are rebuilt
// at the next HDR encode.
func (s *BCCompressStage) resize(uint32, uint32) error {
	s.gpu.Lock()
	s.destroyLinear()
	s.gpu.Unlock()
	s.Invalidate()
	return nil
}

func (s *BCCompressStage) encode(_ gpucore.Encoder, input gpucore.TextureID) (gpucore.TextureID, error) {
	return input, nil
}

func (s *BCCompressStage) destroy() {
	if s.env == nil {
		return
	}
	s.gpu.Lock()
	defer s.gpu.Unlock()
	dev := s.env.dev
	s.destroyLinear()
	for f, id := range s.programs {
		dev.DestroyProgram(id)
		delete(s.programs, f)
	}
	if s.linearProg != gpucore.InvalidID {
		dev.DestroyProgram(s.linearProg)
		s.linearProg = gpucore.InvalidID
	}
	if s.storage != gpucore.InvalidID {
		dev.DestroyBuffer(s.storage)
		s.storage = gpucore.InvalidID
	}
	s.encUniform.destroy()
	s.linUniform.destroy()
	s.encUniform, s.linUniform = nil, nil
}
