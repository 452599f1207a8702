package pipecheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/pipecheck/gpucore"
)

// Renderer chains stages over one source texture. Every transform stage
// reads the previous stage's committed output and binds the same shared
// uniform buffer. A Renderer is not safe for concurrent use.
type Renderer struct {
	dev     gpucore.Device
	env     stageEnv
	uniform *uniformBuffer
	stages  []Stage
	refs    []OutputRef
	source  gpucore.TextureID
	label   string
	frames  uint64
}

// NewRenderer creates a renderer with no stages and a zero size.
func NewRenderer(dev gpucore.Device) (*Renderer, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	u, err := newUniformBuffer(dev, "pipeline uniforms", UniformBlockSize)
	if err != nil {
		return nil, err
	}
	r := &Renderer{dev: dev, uniform: u, label: "pipeline"}
	r.env = stageEnv{dev: dev, uniform: u.id}
	return r, nil
}

// SetLogger routes the renderer's and its stages' logging to l. A nil
// logger uses the package logger.
func (r *Renderer) SetLogger(l *slog.Logger) { r.env.log = l }

// SetStages replaces the stage list. Previous stages are destroyed; the
// new ones are initialized at the current size. A stage that fails to
// initialize stays in the list and is reported in the returned error.
func (r *Renderer) SetStages(stages ...Stage) error {
	r.destroyStages()
	r.stages = stages
	r.refs = make([]OutputRef, len(stages))
	var errs []error
	for i, st := range stages {
		r.refs[i] = passthroughRef(i)
		if err := st.initialize(&r.env); err != nil {
			errs = append(errs, &StageError{Index: i, Name: st.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// Stages returns the stage list.
func (r *Renderer) Stages() []Stage { return r.stages }

// Size returns the current target size.
func (r *Renderer) Size() (width, height uint32) { return r.env.width, r.env.height }

// SetSize recreates every stage target at width x height. Targets are
// destroyed before any new one is created.
func (r *Renderer) SetSize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if limit := r.dev.Capabilities().MaxTextureDimension; limit > 0 && (width > limit || height > limit) {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrInvalidSize, width, height, limit)
	}
	if width == r.env.width && height == r.env.height {
		return nil
	}
	r.env.width, r.env.height = width, height
	var errs []error
	for i, st := range r.stages {
		r.refs[i] = passthroughRef(i)
		if err := st.resize(width, height); err != nil {
			errs = append(errs, &StageError{Index: i, Name: st.Name(), Err: err})
		}
	}
	r.log().Debug("pipecheck: renderer resized", "width", width, "height", height)
	return errors.Join(errs...)
}

// UpdateUniforms uploads the shared parameter block.
func (r *Renderer) UpdateUniforms(b []byte) error {
	if len(b) != UniformBlockSize {
		return fmt.Errorf("pipecheck: uniform block is %d bytes, want %d", len(b), UniformBlockSize)
	}
	return r.uniform.write(b)
}

// Render records every stage into one command buffer and submits it.
// Disabled and unavailable stages forward their input without recording
// anything. A failing stage is bypassed the same way; its error is
// returned with all others once the chain has been submitted.
func (r *Renderer) Render(ctx context.Context, source gpucore.TextureID) error {
	if source == gpucore.InvalidID {
		return ErrNoSource
	}
	enc, err := r.dev.NewEncoder(r.label)
	if err != nil {
		return err
	}
	r.source = source

	var errs []error
	prev := source
	for i, st := range r.stages {
		if !st.Enabled() || !st.Available() {
			r.refs[i] = passthroughRef(i)
			st.commit(prev)
			continue
		}
		out, err := st.encode(enc, prev)
		if err != nil {
			se := &StageError{Index: i, Name: st.Name(), Err: err}
			r.log().Warn("pipecheck: stage bypassed", "stage", i, "name", st.Name(), "err", err)
			errs = append(errs, se)
			out = prev
		}
		if out == prev {
			r.refs[i] = passthroughRef(i)
		} else {
			r.refs[i] = Owned(out)
		}
		st.commit(out)
		prev = out
	}

	if err := enc.Submit(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pipecheck: submit: %w", err))
	}
	r.frames++
	return errors.Join(errs...)
}

// Frames returns the number of submitted renders.
func (r *Renderer) Frames() uint64 { return r.frames }

// Source returns the source texture of the last render.
func (r *Renderer) Source() gpucore.TextureID { return r.source }

// StageOutput returns the texture stage i exposed in the last render.
func (r *Renderer) StageOutput(i int) (gpucore.TextureID, error) {
	if i < 0 || i >= len(r.stages) {
		return gpucore.InvalidID, fmt.Errorf("%w: %d", ErrStageIndex, i)
	}
	return r.stages[i].Output(), nil
}

// Output returns how stage i's output was produced in the last render.
func (r *Renderer) Output(i int) (OutputRef, error) {
	if i < 0 || i >= len(r.refs) {
		return OutputRef{}, fmt.Errorf("%w: %d", ErrStageIndex, i)
	}
	return r.refs[i], nil
}

// Resolve follows aliases in ref to the texture they name.
func (r *Renderer) Resolve(ref OutputRef) gpucore.TextureID {
	for range len(r.refs) + 1 {
		switch ref.kind {
		case refOwned:
			return ref.texture
		case refSource:
			return r.source
		case refAlias:
			ref = r.refs[ref.stage]
		default:
			return gpucore.InvalidID
		}
	}
	return gpucore.InvalidID
}

// Destroy releases the stages and the uniform buffer.
func (r *Renderer) Destroy() {
	r.destroyStages()
	r.stages, r.refs = nil, nil
	r.uniform.destroy()
}

func (r *Renderer) destroyStages() {
	for _, st := range r.stages {
		st.destroy()
	}
}

func (r *Renderer) log() *slog.Logger {
	if r.env.log != nil {
		return r.env.log
	}
	return Logger()
}

func passthroughRef(i int) OutputRef {
	if i == 0 {
		return SourceRef()
	}
	return AliasOf(i - 1)
}
