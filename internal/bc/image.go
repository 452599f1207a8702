package bc

import (
	"fmt"

	"github.com/gogpu/pipecheck/internal/parallel"
)

// Image is an encoded texture: whole blocks in row-major order.
type Image struct {
	Format Format
	// Width and Height are padded to a multiple of 4.
	Width, Height int
	// OriginalWidth and OriginalHeight are the source dimensions.
	OriginalWidth, OriginalHeight int
	BlocksPerRow                  int
	Data                          []byte
}

// Options configure Encode.
type Options struct {
	// Quality in [0, 1] trades speed for endpoint refinement.
	Quality float32
	// Pool runs block rows in parallel. Nil encodes on the caller's
	// goroutine.
	Pool *parallel.Pool
}

// Encode compresses an RGBA float image (4 floats per pixel).
func Encode(f Format, pix []float32, width, height int, opts Options) (*Image, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("bc: invalid format %v", f)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bc: invalid size %dx%d", width, height)
	}
	if len(pix) < width*height*4 {
		return nil, fmt.Errorf("bc: pixel buffer holds %d floats, need %d", len(pix), width*height*4)
	}
	bw, bh := BlockCount(width), BlockCount(height)
	size := f.BlockSize()
	img := &Image{
		Format:         f,
		Width:          bw * 4,
		Height:         bh * 4,
		OriginalWidth:  width,
		OriginalHeight: height,
		BlocksPerRow:   bw,
		Data:           make([]byte, bw*bh*size),
	}
	iters := Iterations(opts.Quality)
	row := func(by int) {
		var blk Block
		for bx := range bw {
			LoadBlock(pix, width, height, bx, by, &blk)
			off := (by*bw + bx) * size
			_ = EncodeBlock(f, &blk, iters, img.Data[off:off+size])
		}
	}
	if opts.Pool == nil {
		for by := range bh {
			row(by)
		}
		return img, nil
	}
	opts.Pool.Dispatch(bh, row)
	return img, nil
}

// Decode expands an encoded image to RGBA floats at its original size.
func Decode(img *Image) ([]float32, error) {
	if img == nil || !img.Format.Valid() {
		return nil, fmt.Errorf("bc: invalid image")
	}
	bw, bh := BlockCount(img.OriginalWidth), BlockCount(img.OriginalHeight)
	size := img.Format.BlockSize()
	if len(img.Data) < bw*bh*size {
		return nil, fmt.Errorf("bc: %v data holds %d bytes, need %d", img.Format, len(img.Data), bw*bh*size)
	}
	out := make([]float32, img.OriginalWidth*img.OriginalHeight*4)
	var blk Block
	for by := range bh {
		for bx := range bw {
			off := (by*bw + bx) * size
			if err := DecodeBlock(img.Format, img.Data[off:off+size], &blk); err != nil {
				return nil, err
			}
			StoreBlock(out, img.OriginalWidth, img.OriginalHeight, bx, by, &blk)
		}
	}
	return out, nil
}
