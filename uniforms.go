package pipecheck

import (
	"bytes"
	"fmt"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/colorsci"
)

// UniformBlockSize is the size of the shared parameter block.
const UniformBlockSize = gpucore.ParamsUniformSize

// uniformBuffer is a device buffer holding one uniform block. Writes
// with unchanged contents skip the upload.
type uniformBuffer struct {
	dev  gpucore.Device
	id   gpucore.BufferID
	last []byte
}

func newUniformBuffer(dev gpucore.Device, label string, size uint64) (*uniformBuffer, error) {
	id, err := dev.CreateBuffer(&gpucore.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("pipecheck: create %s buffer: %w", label, err)
	}
	return &uniformBuffer{dev: dev, id: id}, nil
}

func (u *uniformBuffer) write(b []byte) error {
	if u.last != nil && bytes.Equal(u.last, b) {
		return nil
	}
	if err := u.dev.WriteBuffer(u.id, 0, b); err != nil {
		return err
	}
	u.last = append(u.last[:0], b...)
	return nil
}

func (u *uniformBuffer) destroy() {
	if u == nil || u.id == gpucore.InvalidID {
		return
	}
	u.dev.DestroyBuffer(u.id)
	u.id = gpucore.InvalidID
	u.last = nil
}

// paramsBytes serializes p, checking the block size the shaders expect.
func paramsBytes(p *colorsci.Params) []byte {
	b := p.Bytes()
	if len(b) != UniformBlockSize {
		panic(fmt.Sprintf("pipecheck: uniform block is %d bytes, shaders expect %d", len(b), UniformBlockSize))
	}
	return b
}
