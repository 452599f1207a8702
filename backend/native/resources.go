//go:build !nogpu

package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
)

// texture is a hal texture with its default view. Block textures are
// allocated at the padded size; desc keeps the requested one.
type texture struct {
	desc   gpucore.TextureDescriptor
	width  uint32
	height uint32
	tex    hal.Texture
	view   hal.TextureView

	// usage is the last usage recorded for the texture; 0 before the
	// first use.
	mu    sync.Mutex
	usage gputypes.TextureUsage
}

// transition records a barrier from the last recorded usage to to.
func (t *texture) transition(enc hal.CommandEncoder, to gputypes.TextureUsage) {
	t.mu.Lock()
	from := t.usage
	t.usage = to
	t.mu.Unlock()
	if from == to {
		return
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage:   hal.TextureUsageTransition{OldUsage: from, NewUsage: to},
	}})
}

func (d *Device) newTexture(desc *gpucore.TextureDescriptor) (*texture, error) {
	format, ok := convertTextureFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: texture format %v", ErrUnsupported, desc.Format)
	}
	t := &texture{desc: *desc, width: desc.Width, height: desc.Height}
	usage := gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	if desc.Format.IsCompressed() {
		t.width = uint32(bc.PaddedSize(int(desc.Width)))   //nolint:gosec // bounded by the texture limit
		t.height = uint32(bc.PaddedSize(int(desc.Height))) //nolint:gosec // bounded by the texture limit
	} else {
		usage |= gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("native: create texture view %q: %w", desc.Label, err)
	}
	t.tex, t.view = tex, view
	return t, nil
}

func (t *texture) destroy(dev hal.Device) {
	if t.view != nil {
		dev.DestroyTextureView(t.view)
	}
	if t.tex != nil {
		dev.DestroyTexture(t.tex)
	}
}

// bytesPerRow is the tight row pitch of upload data: texel rows for
// float formats, block rows for compressed ones.
func (t *texture) bytesPerRow() uint32 {
	f := t.desc.Format
	if f.IsCompressed() {
		return uint32(bc.BlockCount(int(t.desc.Width)) * f.BlockFormat().BlockSize()) //nolint:gosec // small
	}
	return t.width * uint32(f.BytesPerPixel()) //nolint:gosec // 8 or 16
}

func (t *texture) rows() uint32 {
	if t.desc.Format.IsCompressed() {
		return t.height / 4
	}
	return t.height
}

func (t *texture) byteSize() int {
	return int(t.bytesPerRow()) * int(t.rows())
}

type buffer struct {
	desc gpucore.BufferDescriptor
	buf  hal.Buffer
	size uint64
}

func convertTextureFormat(f gpucore.TextureFormat) (gputypes.TextureFormat, bool) {
	switch f {
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float, true
	case gpucore.TextureFormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float, true
	case gpucore.TextureFormatBC1RGBAUnorm:
		return gputypes.TextureFormatBC1RGBAUnorm, true
	case gpucore.TextureFormatBC2RGBAUnorm:
		return gputypes.TextureFormatBC2RGBAUnorm, true
	case gpucore.TextureFormatBC3RGBAUnorm:
		return gputypes.TextureFormatBC3RGBAUnorm, true
	case gpucore.TextureFormatBC4RUnorm:
		return gputypes.TextureFormatBC4RUnorm, true
	case gpucore.TextureFormatBC5RGUnorm:
		return gputypes.TextureFormatBC5RGUnorm, true
	case gpucore.TextureFormatBC6HRGBUfloat:
		return gputypes.TextureFormatBC6HRGBUfloat, true
	case gpucore.TextureFormatBC7RGBAUnorm:
		return gputypes.TextureFormatBC7RGBAUnorm, true
	}
	return 0, false
}

// convertBufferUsage drops MapRead: host reads go through a staging
// buffer, and mappable buffers cannot carry the other usages.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	return result
}
