package software

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/pipecheck/gpucore"
)

var errEncoderFinished = errors.New("software: encoder already submitted or discarded")

// encoder records passes as closures run in order on Submit.
type encoder struct {
	dev      *Device
	label    string
	ops      []func() error
	finished bool
}

func (e *encoder) Draw(p gpucore.ProgramID, target gpucore.TextureID, b gpucore.Bindings) error {
	if e.finished {
		return errEncoderFinished
	}
	prog, err := e.dev.program(p)
	if err != nil {
		return err
	}
	layout := prog.desc.Kind.Layout()
	if layout.Compute {
		return fmt.Errorf("software: %s is a compute program", prog.desc.Kind)
	}
	if len(b.Textures) != layout.Textures {
		return fmt.Errorf("software: %s binds %d textures, want %d", prog.desc.Kind, len(b.Textures), layout.Textures)
	}
	e.ops = append(e.ops, func() error { return e.dev.draw(prog, target, b) })
	return nil
}

func (e *encoder) Dispatch(p gpucore.ProgramID, groupsX, groupsY uint32, b gpucore.Bindings) error {
	if e.finished {
		return errEncoderFinished
	}
	prog, err := e.dev.program(p)
	if err != nil {
		return err
	}
	if !prog.desc.Kind.Layout().Compute {
		return fmt.Errorf("software: %s is a render program", prog.desc.Kind)
	}
	e.ops = append(e.ops, func() error { return e.dev.dispatch(prog, groupsX, groupsY, b) })
	return nil
}

func (e *encoder) Submit(ctx context.Context) error {
	if e.finished {
		return errEncoderFinished
	}
	e.finished = true
	ops := e.ops
	e.ops = nil

	e.dev.queue.Lock()
	defer e.dev.queue.Unlock()
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := op(); err != nil {
			return fmt.Errorf("software: %s pass %d: %w", e.label, i, err)
		}
	}
	e.dev.log().Debug("software: submitted", "label", e.label, "passes", len(ops))
	return nil
}

func (e *encoder) Discard() {
	e.finished = true
	e.ops = nil
}
