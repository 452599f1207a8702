package main

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// loadImage decodes path into straight-alpha RGBA floats in [0, 1],
// downscaling so neither side exceeds maxDim when maxDim is positive.
func loadImage(path string, maxDim int) ([]float32, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim > 0 && (w > maxDim || h > maxDim) {
		scale := float64(maxDim) / float64(max(w, h))
		w, h = max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))
		dst := image.NewRGBA64(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img, b = dst, dst.Bounds()
	}

	pix := make([]float32, w*h*4)
	for y := range h {
		for x := range w {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			o := (y*w + x) * 4
			pix[o] = float32(c.R) / 0xffff
			pix[o+1] = float32(c.G) / 0xffff
			pix[o+2] = float32(c.B) / 0xffff
			pix[o+3] = float32(c.A) / 0xffff
		}
	}
	return pix, w, h, nil
}

// savePNG writes display-referred RGBA floats as a 16-bit PNG, clamping
// to [0, 1].
func savePNG(path string, pix []float32, w, h int) error {
	img := image.NewNRGBA64(image.Rect(0, 0, w, h))
	q := func(v float32) uint16 {
		return uint16(min(max(v, 0), 1)*0xffff + 0.5)
	}
	for y := range h {
		for x := range w {
			o := (y*w + x) * 4
			img.SetNRGBA64(x, y, color.NRGBA64{R: q(pix[o]), G: q(pix[o+1]), B: q(pix[o+2]), A: q(pix[o+3])})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
