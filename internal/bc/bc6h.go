package bc

import (
	"github.com/x448/float16"
)

const (
	bc6hMode11     = 0x03
	bc6hBits       = 10
	bc6hMaxQ       = 1<<bc6hBits - 1
	halfMaxFinite  = 65504.0
	halfMaxBits    = 0x7bff
	bc6hAnchorBits = 3
)

// halfBits converts a linear value to the unsigned half bit pattern BC6H
// interpolates in. Negative and NaN values map to 0.
func halfBits(v float32) int {
	if !(v > 0) {
		return 0
	}
	return int(float16.Fromfloat32(min(v, halfMaxFinite)).Bits())
}

func halfValue(bits int) float32 {
	return float16.Frombits(uint16(bits)).Float32()
}

// unquantize expands a 10-bit unsigned endpoint to 16 bits.
func unquantize(q int) int {
	switch q {
	case 0:
		return 0
	case bc6hMaxQ:
		return 0xffff
	}
	return (q<<16 + 0x8000) >> bc6hBits
}

// finishUnquantize scales an interpolated 16-bit value to half bits.
func finishUnquantize(u int) int { return (u * 31) >> 6 }

// quantizeHalf returns the 10-bit endpoint whose decoded half bits are
// closest to h.
func quantizeHalf(h float32) int {
	base := int((h - 15) / 31)
	best, bestErr := 0, float32(-1)
	for q := base - 1; q <= base+1; q++ {
		c := min(max(q, 0), bc6hMaxQ)
		d := float32(finishUnquantize(unquantize(c))) - h
		if d < 0 {
			d = -d
		}
		if bestErr < 0 || d < bestErr {
			best, bestErr = c, d
		}
	}
	return best
}

type bc6hEndpoints [2][3]int

func (e *bc6hEndpoints) palette() [16]point {
	var pal [16]point
	for k, w := range weights4 {
		for c := range 3 {
			pal[k][c] = float32(finishUnquantize(interpolate(unquantize(e[0][c]), unquantize(e[1][c]), w)))
		}
	}
	return pal
}

func (e *bc6hEndpoints) assign(pts *[16]point, idx *[16]uint8) float32 {
	pal := e.palette()
	return assign(pts[:], pal[:], 3, idx[:])
}

// quantizeEndpoints quantizes the endpoint pair a, b given in half bits.
func quantizeEndpoints(a, b point) bc6hEndpoints {
	var e bc6hEndpoints
	for c := range 3 {
		e[0][c] = quantizeHalf(min(max(a[c], 0), halfMaxBits))
		e[1][c] = quantizeHalf(min(max(b[c], 0), halfMaxBits))
	}
	return e
}

// encodeBC6H writes a mode 11 block. Fitting happens on half bit
// patterns, which makes the error roughly relative to magnitude.
func encodeBC6H(b *Block, iterations int, dst []byte) {
	var pts [16]point
	for i := range b {
		for c := range 3 {
			pts[i][c] = float32(halfBits(b[i][c]))
		}
	}

	var e bc6hEndpoints
	var idx [16]uint8
	best := float32(-1)
	for _, pair := range startPairs(pts[:], 3, iterations) {
		n := quantizeEndpoints(pair[0], pair[1])
		var nidx [16]uint8
		if err := n.assign(&pts, &nidx); best < 0 || err < best {
			e, idx, best = n, nidx, err
		}
	}
	for range iterations {
		var t [16]float32
		for i, k := range idx {
			t[i] = float32(weights4[k]) / 64
		}
		e0, e1, ok := leastSquares(pts[:], t[:], 3)
		if !ok {
			break
		}
		n := quantizeEndpoints(e0, e1)
		if n == e {
			break
		}
		var nidx [16]uint8
		err := n.assign(&pts, &nidx)
		if err >= best {
			break
		}
		e, idx, best = n, nidx, err
	}

	if fixAnchor(&idx) {
		e[0], e[1] = e[1], e[0]
	}

	clear(dst[:16])
	w := bitWriter{buf: dst}
	w.write(bc6hMode11, 5)
	for _, ep := range e {
		for c := range 3 {
			w.write(uint64(ep[c]), bc6hBits)
		}
	}
	writeIndices4(&w, &idx)
}

func decodeBC6H(src []byte, b *Block) {
	r := bitReader{buf: src}
	mode := r.read(2)
	if mode > 1 {
		mode |= r.read(3) << 2
	}
	if mode != bc6hMode11 {
		for i := range b {
			b[i] = [4]float32{0, 0, 0, 1}
		}
		return
	}
	var e bc6hEndpoints
	for i := range e {
		for c := range 3 {
			e[i][c] = int(r.read(bc6hBits))
		}
	}
	var idx [16]uint8
	readIndices4(&r, &idx)
	pal := e.palette()
	for i, k := range idx {
		p := pal[k]
		b[i] = [4]float32{halfValue(int(p[0])), halfValue(int(p[1])), halfValue(int(p[2])), 1}
	}
}
