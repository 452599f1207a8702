package software

import (
	"fmt"

	"honnef.co/go/safeish"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
	"github.com/gogpu/pipecheck/internal/colorsci"
)

// texelFunc produces the output of one pixel of a render pass.
type texelFunc func(x, y int) [4]float32

// source is a bound input texture, fetched by integer coordinate the way
// textureLoad(t, vec2<i32>(floor(uv * dims))) does.
type source struct {
	pix  []float32
	w, h int
}

func (s *source) fetch(x, y, tw, th int) [4]float32 {
	sx := min((2*x+1)*s.w/(2*tw), s.w-1)
	sy := min((2*y+1)*s.h/(2*th), s.h-1)
	o := (sy*s.w + sx) * 4
	return [4]float32{s.pix[o], s.pix[o+1], s.pix[o+2], s.pix[o+3]}
}

func transformKernel(k gpucore.ProgramKind) colorsci.Kernel {
	switch k {
	case gpucore.ProgramInputConvert:
		return colorsci.InputConvert
	case gpucore.ProgramColorGrade:
		return colorsci.ColorGrade
	case gpucore.ProgramRRT:
		return colorsci.RRT
	case gpucore.ProgramODT:
		return colorsci.ODT
	case gpucore.ProgramOutputEncode:
		return colorsci.OutputEncode
	case gpucore.ProgramDisplayRemap:
		return colorsci.DisplayRemap
	case gpucore.ProgramFinalDisplay:
		return colorsci.FinalDisplay
	case gpucore.ProgramLinearize:
		return func(p *colorsci.Params, c colorsci.RGB) colorsci.RGB {
			return colorsci.Linearize(p.InputSpace, c, p.PaperWhite)
		}
	}
	return nil
}

func (d *Device) sources(ids []gpucore.TextureID) ([]*source, []*texture, error) {
	srcs := make([]*source, len(ids))
	texs := make([]*texture, len(ids))
	for i, id := range ids {
		t, err := d.texture(id)
		if err != nil {
			return nil, nil, err
		}
		texs[i] = t
		srcs[i] = &source{pix: t.snapshot(), w: int(t.desc.Width), h: int(t.desc.Height)}
	}
	return srcs, texs, nil
}

func (d *Device) uniform(id gpucore.BufferID, size uint64) ([]byte, error) {
	b, err := d.buffer(id)
	if err != nil {
		return nil, err
	}
	return b.read(0, size)
}

func (d *Device) draw(prog *program, target gpucore.TextureID, b gpucore.Bindings) error {
	dst, err := d.texture(target)
	if err != nil {
		return err
	}
	if dst.desc.Format.IsCompressed() {
		return fmt.Errorf("%w: render into %v", ErrUnsupported, dst.desc.Format)
	}
	srcs, texs, err := d.sources(b.Textures)
	if err != nil {
		return err
	}
	layout := prog.desc.Kind.Layout()
	ub, err := d.uniform(b.Uniform, layout.UniformSize)
	if err != nil {
		return err
	}

	w, h := int(dst.desc.Width), int(dst.desc.Height)
	var fn texelFunc

	switch kind := prog.desc.Kind; kind {
	case gpucore.ProgramBCSample:
		if texs[0].desc.Format.BlockFormat() != prog.desc.Format {
			return fmt.Errorf("software: %v program bound to %v texture", prog.desc.Format, texs[0].desc.Format)
		}
		single := prog.desc.Format == bc.BC4
		fn = func(x, y int) [4]float32 {
			c := srcs[0].fetch(x, y, w, h)
			if single {
				c[1], c[2] = c[0], c[0]
			}
			return c
		}

	case gpucore.ProgramDelta:
		var u gpucore.DeltaUniforms
		copy(safeish.AsBytes(&u), ub)
		fn = func(x, y int) [4]float32 {
			r := srcs[0].fetch(x, y, w, h)
			c := srcs[1].fetch(x, y, w, h)
			dl := colorsci.Delta(
				colorsci.RGB{r[0], r[1], r[2]},
				colorsci.RGB{c[0], c[1], c[2]},
				u.Amplification, u.Perceptual != 0)
			return [4]float32{dl[0], dl[1], dl[2], 1}
		}

	default:
		k := transformKernel(kind)
		if k == nil {
			return fmt.Errorf("%w: render program %s", ErrUnsupported, kind)
		}
		p, err := colorsci.ParamsFromBytes(ub)
		if err != nil {
			return err
		}
		fn = func(x, y int) [4]float32 {
			c := srcs[0].fetch(x, y, w, h)
			o := k(&p, colorsci.RGB{c[0], c[1], c[2]})
			return [4]float32{o[0], o[1], o[2], c[3]}
		}
	}

	out := make([]float32, w*h*4)
	d.pool.Dispatch(h, func(y int) {
		row := out[y*w*4 : (y+1)*w*4]
		for x := range w {
			c := fn(x, y)
			copy(row[x*4:x*4+4], c[:])
		}
	})
	dst.store(out)
	return nil
}

func (d *Device) dispatch(prog *program, groupsX, groupsY uint32, b gpucore.Bindings) error {
	if prog.desc.Kind != gpucore.ProgramBCEncode {
		return fmt.Errorf("%w: compute program %s", ErrUnsupported, prog.desc.Kind)
	}
	if len(b.Textures) != 1 {
		return fmt.Errorf("software: bc_encode binds %d textures, want 1", len(b.Textures))
	}
	srcs, _, err := d.sources(b.Textures)
	if err != nil {
		return err
	}
	ub, err := d.uniform(b.Uniform, 16)
	if err != nil {
		return err
	}
	var u gpucore.EncodeUniforms
	copy(safeish.AsBytes(&u), ub)

	out, err := d.buffer(b.Storage)
	if err != nil {
		return err
	}
	f := prog.desc.Format
	size := f.BlockSize()
	bpr := int(u.BlocksPerRow)
	need := uint64(int(groupsY)*bpr*size)
	if int(groupsX) > bpr || need > uint64(len(out.data)) {
		return fmt.Errorf("software: %dx%d %v blocks do not fit a %d byte buffer", groupsX, groupsY, f, len(out.data))
	}

	src := srcs[0]
	width := min(int(u.Width), src.w)
	height := min(int(u.Height), src.h)
	iters := int(u.Iterations)
	data := make([]byte, need)
	d.pool.Dispatch(int(groupsY), func(by int) {
		var blk bc.Block
		for bx := range int(groupsX) {
			bc.LoadBlock(src.pix, src.w, height, bx, by, &blk)
			if width < src.w {
				clampColumns(&blk, bx, width)
			}
			off := (by*bpr + bx) * size
			_ = bc.EncodeBlock(f, &blk, iters, data[off:off+size])
		}
	})
	return out.write(0, data)
}

// clampColumns repeats the last valid column of a block whose right edge
// extends past width.
func clampColumns(b *bc.Block, bx, width int) {
	for x := range 4 {
		if bx*4+x < width {
			continue
		}
		last := width - 1 - bx*4
		if last < 0 {
			return
		}
		for y := range 4 {
			b[y*4+x] = b[y*4+last]
		}
	}
}
