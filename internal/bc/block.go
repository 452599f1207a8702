package bc

import "fmt"

// Block is one 4x4 tile of RGBA pixels in row-major order.
type Block [16][4]float32

// LoadBlock copies the block at block coordinates (bx, by) out of an RGBA
// float image. Pixels past the right or bottom edge repeat the last
// row/column.
func LoadBlock(pix []float32, width, height, bx, by int, b *Block) {
	for y := range 4 {
		sy := min(by*4+y, height-1)
		for x := range 4 {
			sx := min(bx*4+x, width-1)
			o := (sy*width + sx) * 4
			copy(b[y*4+x][:], pix[o:o+4])
		}
	}
}

// StoreBlock writes b into an RGBA float image, skipping pixels outside it.
func StoreBlock(pix []float32, width, height, bx, by int, b *Block) {
	for y := range 4 {
		py := by*4 + y
		if py >= height {
			break
		}
		for x := range 4 {
			px := bx*4 + x
			if px >= width {
				break
			}
			o := (py*width + px) * 4
			copy(pix[o:o+4], b[y*4+x][:])
		}
	}
}

// EncodeBlock compresses b into dst, which must hold f.BlockSize() bytes.
func EncodeBlock(f Format, b *Block, iterations int, dst []byte) error {
	if len(dst) < f.BlockSize() || !f.Valid() {
		return fmt.Errorf("bc: cannot encode %v into %d bytes", f, len(dst))
	}
	switch f {
	case BC1:
		encodeColor(b, iterations, dst[:8])
	case BC2:
		encodeExplicitAlpha(b, dst[:8])
		encodeColor(b, iterations, dst[8:16])
	case BC3:
		encodeChannel(b, 3, iterations, dst[:8])
		encodeColor(b, iterations, dst[8:16])
	case BC4:
		encodeChannel(b, 0, iterations, dst[:8])
	case BC5:
		encodeChannel(b, 0, iterations, dst[:8])
		encodeChannel(b, 1, iterations, dst[8:16])
	case BC6H:
		encodeBC6H(b, iterations, dst[:16])
	case BC7:
		encodeBC7(b, iterations, dst[:16])
	}
	return nil
}

// DecodeBlock expands one compressed block into b. Channels a format
// does not store decode as 0, alpha as 1.
func DecodeBlock(f Format, src []byte, b *Block) error {
	if len(src) < f.BlockSize() || !f.Valid() {
		return fmt.Errorf("bc: cannot decode %v from %d bytes", f, len(src))
	}
	switch f {
	case BC1:
		decodeColor(src[:8], false, b)
	case BC2:
		decodeColor(src[8:16], true, b)
		decodeExplicitAlpha(src[:8], b)
	case BC3:
		decodeColor(src[8:16], true, b)
		decodeChannel(src[:8], 3, b)
	case BC4:
		clearBlock(b)
		decodeChannel(src[:8], 0, b)
	case BC5:
		clearBlock(b)
		decodeChannel(src[:8], 0, b)
		decodeChannel(src[8:16], 1, b)
	case BC6H:
		decodeBC6H(src[:16], b)
	case BC7:
		decodeBC7(src[:16], b)
	}
	return nil
}

func clearBlock(b *Block) {
	for i := range b {
		b[i] = [4]float32{0, 0, 0, 1}
	}
}
