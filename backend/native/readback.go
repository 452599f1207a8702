//go:build !nogpu

package native

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/x448/float16"
	"honnef.co/go/safeish"

	"github.com/gogpu/pipecheck/gpucore"
)

// copyPitchAlignment is the required BytesPerRow alignment of
// texture-to-buffer copies.
const copyPitchAlignment = 256

// ReadTexture copies a region of a float texture back as RGBA float32.
func (d *Device) ReadTexture(ctx context.Context, id gpucore.TextureID, x, y, w, h uint32) ([]float32, error) {
	t, err := d.texture(id)
	if err != nil {
		return nil, err
	}
	tw, th := t.desc.Width, t.desc.Height
	if w == 0 || h == 0 || x >= tw || y >= th || w > tw-x || h > th-y {
		return nil, fmt.Errorf("native: read region %dx%d+%d+%d outside %dx%d texture", w, h, x, y, tw, th)
	}
	bpp := uint32(t.desc.Format.BytesPerPixel()) //nolint:gosec // 8 or 16
	if bpp == 0 {
		return nil, fmt.Errorf("%w: read back %v", ErrUnsupported, t.desc.Format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bytesPerRow := w * bpp
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "texture_readback",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "texture_readback"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("texture_readback"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	t.transition(enc, gputypes.TextureUsageCopySrc)
	enc.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Origin: hal.Origin3D{X: x, Y: y, Z: 0}},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	t.transition(enc, gputypes.TextureUsageTextureBinding)
	if err := d.submit(ctx, enc); err != nil {
		return nil, fmt.Errorf("native: read texture %d: %w", id, err)
	}

	raw := make([]byte, stagingSize)
	if err := d.readStaging(staging, raw); err != nil {
		return nil, err
	}
	out := make([]float32, 0, int(w)*int(h)*4)
	for row := uint32(0); row < h; row++ {
		line := raw[row*alignedBytesPerRow : row*alignedBytesPerRow+bytesPerRow]
		out = appendTexels(out, t.desc.Format, line)
	}
	return out, nil
}

func appendTexels(out []float32, f gpucore.TextureFormat, line []byte) []float32 {
	if f == gpucore.TextureFormatRGBA32Float {
		vals := make([]float32, len(line)/4)
		copy(safeish.SliceCast[[]byte](vals), line)
		return append(out, vals...)
	}
	halves := make([]uint16, len(line)/2)
	copy(safeish.SliceCast[[]byte](halves), line)
	for _, h := range halves {
		out = append(out, float16.Frombits(h).Float32())
	}
	return out
}

// ReadBuffer copies size bytes at offset back to the host.
func (d *Device) ReadBuffer(ctx context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	b, err := d.buffer(id)
	if err != nil {
		return nil, err
	}
	if offset > b.size || size > b.size-offset {
		return nil, fmt.Errorf("native: read of %d bytes at %d overflows %d byte buffer", size, offset, b.size)
	}
	if size == 0 {
		return []byte{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Buffer copies work on four-byte units.
	start := offset &^ 3
	end := (offset + size + 3) &^ 3
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "buffer_readback",
		Size:  end - start,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "buffer_readback"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("buffer_readback"); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	enc.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
		{SrcOffset: start, DstOffset: 0, Size: end - start},
	})
	if err := d.submit(ctx, enc); err != nil {
		return nil, fmt.Errorf("native: read buffer %d: %w", id, err)
	}

	raw := make([]byte, end-start)
	if err := d.readStaging(staging, raw); err != nil {
		return nil, err
	}
	return raw[offset-start : offset-start+size], nil
}

func (d *Device) readStaging(staging hal.Buffer, dst []byte) error {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	if err := d.queue.ReadBuffer(staging, 0, dst); err != nil {
		return fmt.Errorf("native: readback: %w", err)
	}
	return nil
}
