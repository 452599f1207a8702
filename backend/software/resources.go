package software

import (
	"fmt"
	"sync"

	"github.com/x448/float16"
	"honnef.co/go/safeish"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
)

// texture holds RGBA float texels. Compressed textures also keep their
// block bytes; pix is then the hardware-decoded view of them. Slices are
// replaced, never modified in place, so a reader may keep a snapshot.
type texture struct {
	desc gpucore.TextureDescriptor

	mu     sync.RWMutex
	pix    []float32
	blocks []byte
}

func newTexture(desc *gpucore.TextureDescriptor) (*texture, error) {
	f := desc.Format
	if f.BytesPerPixel() == 0 && !f.IsCompressed() {
		return nil, fmt.Errorf("%w: texture format %v", ErrUnsupported, f)
	}
	t := &texture{desc: *desc}
	t.pix = make([]float32, int(desc.Width)*int(desc.Height)*4)
	if f.IsCompressed() {
		bf := f.BlockFormat()
		t.blocks = make([]byte, blockBytes(bf, desc.Width, desc.Height))
	}
	return t, nil
}

func blockBytes(f bc.Format, w, h uint32) int {
	return bc.BlockCount(int(w)) * bc.BlockCount(int(h)) * f.BlockSize()
}

func (t *texture) texels() int { return int(t.desc.Width) * int(t.desc.Height) }

func (t *texture) write(data []byte) error {
	f := t.desc.Format
	switch {
	case f == gpucore.TextureFormatRGBA32Float:
		if len(data) != t.texels()*16 {
			return fmt.Errorf("software: %v write of %d bytes, want %d", f, len(data), t.texels()*16)
		}
		pix := make([]float32, t.texels()*4)
		copy(safeish.SliceCast[[]byte](pix), data)
		t.replace(pix, nil)

	case f == gpucore.TextureFormatRGBA16Float:
		if len(data) != t.texels()*8 {
			return fmt.Errorf("software: %v write of %d bytes, want %d", f, len(data), t.texels()*8)
		}
		halves := make([]uint16, t.texels()*4)
		copy(safeish.SliceCast[[]byte](halves), data)
		pix := make([]float32, len(halves))
		for i, h := range halves {
			pix[i] = float16.Frombits(h).Float32()
		}
		t.replace(pix, nil)

	case f.IsCompressed():
		bf := f.BlockFormat()
		want := blockBytes(bf, t.desc.Width, t.desc.Height)
		if len(data) != want {
			return fmt.Errorf("software: %v write of %d bytes, want %d", f, len(data), want)
		}
		blocks := append([]byte(nil), data...)
		pix, err := bc.Decode(&bc.Image{
			Format:         bf,
			Width:          bc.PaddedSize(int(t.desc.Width)),
			Height:         bc.PaddedSize(int(t.desc.Height)),
			OriginalWidth:  int(t.desc.Width),
			OriginalHeight: int(t.desc.Height),
			BlocksPerRow:   bc.BlockCount(int(t.desc.Width)),
			Data:           blocks,
		})
		if err != nil {
			return fmt.Errorf("software: decode %v: %w", f, err)
		}
		t.replace(pix, blocks)

	default:
		return fmt.Errorf("%w: write to %v", ErrUnsupported, f)
	}
	return nil
}

func (t *texture) replace(pix []float32, blocks []byte) {
	t.mu.Lock()
	t.pix = pix
	if blocks != nil {
		t.blocks = blocks
	}
	t.mu.Unlock()
}

// store replaces the texels with a render result, rounding to the
// storage precision.
func (t *texture) store(pix []float32) {
	if t.desc.Format == gpucore.TextureFormatRGBA16Float {
		for i, v := range pix {
			pix[i] = float16.Fromfloat32(v).Float32()
		}
	}
	t.replace(pix, nil)
}

func (t *texture) snapshot() []float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pix
}

func (t *texture) read(x, y, w, h uint32) ([]float32, error) {
	tw, th := t.desc.Width, t.desc.Height
	if w == 0 || h == 0 || x >= tw || y >= th || w > tw-x || h > th-y {
		return nil, fmt.Errorf("software: read region %dx%d+%d+%d outside %dx%d texture", w, h, x, y, tw, th)
	}
	pix := t.snapshot()
	out := make([]float32, 0, int(w)*int(h)*4)
	for row := y; row < y+h; row++ {
		o := (int(row)*int(tw) + int(x)) * 4
		out = append(out, pix[o:o+int(w)*4]...)
	}
	return out, nil
}

type buffer struct {
	desc gpucore.BufferDescriptor

	mu   sync.RWMutex
	data []byte
}

func (b *buffer) write(offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset > uint64(len(b.data)) || uint64(len(data)) > uint64(len(b.data))-offset {
		return fmt.Errorf("software: write of %d bytes at %d overflows %d byte buffer", len(data), offset, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *buffer) read(offset, size uint64) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if offset > uint64(len(b.data)) || size > uint64(len(b.data))-offset {
		return nil, fmt.Errorf("software: read of %d bytes at %d overflows %d byte buffer", size, offset, len(b.data))
	}
	return append([]byte(nil), b.data[offset:offset+size]...), nil
}

type program struct {
	desc gpucore.ProgramDescriptor
}
