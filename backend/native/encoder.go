//go:build !nogpu

package native

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipecheck/gpucore"
)

var errEncoderDone = errors.New("native: encoder already submitted or discarded")

// encoder wraps a hal command encoder. Bind groups created while
// recording live until the work completes.
type encoder struct {
	d      *Device
	enc    hal.CommandEncoder
	label  string
	groups []hal.BindGroup
	passes int
	done   bool
}

func (e *encoder) bind(p *program, b gpucore.Bindings) ([]*texture, hal.BindGroup, error) {
	if got, want := len(b.Textures), p.layout.Textures; got != want {
		return nil, nil, fmt.Errorf("native: %s binds %d textures, want %d", p.desc.Kind, got, want)
	}
	ub, err := e.d.buffer(b.Uniform)
	if err != nil {
		return nil, nil, fmt.Errorf("native: %s uniform: %w", p.desc.Kind, err)
	}
	if ub.size < p.layout.UniformSize {
		return nil, nil, fmt.Errorf("native: %s uniform is %d bytes, want %d", p.desc.Kind, ub.size, p.layout.UniformSize)
	}
	entries := []gputypes.BindGroupEntry{{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: ub.buf.NativeHandle(), Offset: 0, Size: p.layout.UniformSize},
	}}
	textures := make([]*texture, len(b.Textures))
	for i, id := range b.Textures {
		t, err := e.d.texture(id)
		if err != nil {
			return nil, nil, fmt.Errorf("native: %s input %d: %w", p.desc.Kind, i, err)
		}
		textures[i] = t
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1), //nolint:gosec // at most two textures
			Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
		})
	}
	if p.layout.Compute {
		sb, err := e.d.buffer(b.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("native: %s storage: %w", p.desc.Kind, err)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(len(b.Textures) + 1), //nolint:gosec // small
			Resource: gputypes.BufferBinding{Buffer: sb.buf.NativeHandle(), Offset: 0, Size: (sb.size + 3) &^ 3},
		})
	}

	bg, err := e.d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.desc.Kind.String() + "_bind",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("native: create bind group: %w", err)
	}
	e.groups = append(e.groups, bg)
	return textures, bg, nil
}

// Draw records a full-screen triangle into target.
func (e *encoder) Draw(id gpucore.ProgramID, target gpucore.TextureID, b gpucore.Bindings) error {
	if e.done {
		return errEncoderDone
	}
	p, err := e.d.program(id)
	if err != nil {
		return err
	}
	if p.layout.Compute {
		return fmt.Errorf("native: %s is a compute program", p.desc.Kind)
	}
	if slices.Contains(b.Textures, target) {
		return fmt.Errorf("native: %s reads its own target", p.desc.Kind)
	}
	dst, err := e.d.texture(target)
	if err != nil {
		return fmt.Errorf("native: %s target: %w", p.desc.Kind, err)
	}
	if dst.desc.Format.IsCompressed() {
		return fmt.Errorf("%w: render into %v", ErrUnsupported, dst.desc.Format)
	}
	inputs, bg, err := e.bind(p, b)
	if err != nil {
		return err
	}

	for _, t := range inputs {
		t.transition(e.enc, gputypes.TextureUsageTextureBinding)
	}
	dst.transition(e.enc, gputypes.TextureUsageRenderAttachment)
	rp := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: p.desc.Kind.String(),
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       dst.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	})
	rp.SetPipeline(p.render)
	rp.SetBindGroup(0, bg, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	dst.transition(e.enc, gputypes.TextureUsageTextureBinding)
	e.passes++
	return nil
}

// Dispatch records a compute pass of groupsX x groupsY workgroups.
func (e *encoder) Dispatch(id gpucore.ProgramID, groupsX, groupsY uint32, b gpucore.Bindings) error {
	if e.done {
		return errEncoderDone
	}
	p, err := e.d.program(id)
	if err != nil {
		return err
	}
	if !p.layout.Compute {
		return fmt.Errorf("native: %s is a render program", p.desc.Kind)
	}
	if groupsX == 0 || groupsY == 0 {
		return fmt.Errorf("native: empty dispatch %dx%d", groupsX, groupsY)
	}
	inputs, bg, err := e.bind(p, b)
	if err != nil {
		return err
	}

	for _, t := range inputs {
		t.transition(e.enc, gputypes.TextureUsageTextureBinding)
	}
	cp := e.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: p.desc.Kind.String()})
	cp.SetPipeline(p.compute)
	cp.SetBindGroup(0, bg, nil)
	cp.Dispatch(groupsX, groupsY, 1)
	cp.End()
	e.passes++
	return nil
}

// Submit ends encoding, submits, and waits for the fence.
func (e *encoder) Submit(ctx context.Context) error {
	if e.done {
		return errEncoderDone
	}
	e.done = true
	defer e.release()
	if err := ctx.Err(); err != nil {
		e.enc.DiscardEncoding()
		return err
	}
	start := time.Now()
	if err := e.d.submit(ctx, e.enc); err != nil {
		return fmt.Errorf("native: submit %q: %w", e.label, err)
	}
	e.d.log().Debug("native: submitted", "label", e.label, "passes", e.passes, "elapsed", time.Since(start))
	return nil
}

// Discard drops the recorded work.
func (e *encoder) Discard() {
	if e.done {
		return
	}
	e.done = true
	e.enc.DiscardEncoding()
	e.release()
}

func (e *encoder) release() {
	for _, bg := range e.groups {
		e.d.device.DestroyBindGroup(bg)
	}
	e.groups = nil
}

// submit finishes enc and waits for it on the queue. The wait is bounded
// by the context deadline, or DefaultTimeout without one.
func (d *Device) submit(ctx context.Context, enc hal.CommandEncoder) error {
	cmdBuf, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = max(time.Until(deadline), time.Millisecond)
	}
	fenceOK, err := d.device.Wait(fence, 1, timeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("wait for GPU: timed out after %v", timeout)
	}
	return nil
}
