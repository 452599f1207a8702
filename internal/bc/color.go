package bc

import "encoding/binary"

// Palette weights of the 4-color BC1 mode, by index.
var colorWeights = [4]float32{0, 1, 1.0 / 3, 2.0 / 3}

func unit(v float32) float32 { return min(max(v, 0), 1) }

func quantize(v float32, levels int) uint16 {
	return uint16(unit(v)*float32(levels) + 0.5)
}

func pack565(p point) uint16 {
	return quantize(p[0], 31)<<11 | quantize(p[1], 63)<<5 | quantize(p[2], 31)
}

func unpack565(v uint16) point {
	r := v >> 11 & 31
	g := v >> 5 & 63
	b := v & 31
	return point{
		float32(r<<3|r>>2) / 255,
		float32(g<<2|g>>4) / 255,
		float32(b<<3|b>>2) / 255,
		1,
	}
}

func lerp(a, b point, t float32) point {
	var out point
	for c := range out {
		out[c] = a[c] + (b[c]-a[c])*t
	}
	return out
}

func colorAssign(pts *[16]point, c0, c1 uint16, idx *[16]uint8) float32 {
	e0, e1 := unpack565(c0), unpack565(c1)
	if c0 == c1 {
		var total float32
		for i := range pts {
			idx[i] = 0
			total += dist2(pts[i], e0, 3)
		}
		return total
	}
	palette := []point{e0, e1, lerp(e0, e1, colorWeights[2]), lerp(e0, e1, colorWeights[3])}
	return assign(pts[:], palette, 3, idx[:])
}

// encodeColor writes an 8-byte BC1 color block. The emitted block always
// uses the 4-color mode (color0 > color1) unless every pixel maps to a
// single endpoint.
func encodeColor(b *Block, iterations int, dst []byte) {
	var pts [16]point
	for i := range b {
		pts[i] = point{unit(b[i][0]), unit(b[i][1]), unit(b[i][2])}
	}
	lo, hi := bounds(pts[:], 3)
	c0, c1 := pack565(hi), pack565(lo)

	var idx [16]uint8
	best := colorAssign(&pts, c0, c1, &idx)
	for range iterations {
		var t [16]float32
		for i, k := range idx {
			t[i] = colorWeights[k]
		}
		e0, e1, ok := leastSquares(pts[:], t[:], 3)
		if !ok {
			break
		}
		n0, n1 := pack565(clampUnit(e0, 3)), pack565(clampUnit(e1, 3))
		if n0 == c0 && n1 == c1 {
			break
		}
		var nidx [16]uint8
		err := colorAssign(&pts, n0, n1, &nidx)
		if err >= best {
			break
		}
		c0, c1, idx, best = n0, n1, nidx, err
	}

	switch {
	case c0 == c1:
		idx = [16]uint8{}
	case c0 < c1:
		c0, c1 = c1, c0
		for i := range idx {
			idx[i] ^= 1
		}
	}
	binary.LittleEndian.PutUint16(dst[0:], c0)
	binary.LittleEndian.PutUint16(dst[2:], c1)
	var bits uint32
	for i, k := range idx {
		bits |= uint32(k) << (2 * i)
	}
	binary.LittleEndian.PutUint32(dst[4:], bits)
}

// decodeColor expands a BC1 color block. With four set the block is read
// in 4-color mode regardless of endpoint order, as BC2 and BC3 require.
func decodeColor(src []byte, four bool, b *Block) {
	c0 := binary.LittleEndian.Uint16(src[0:])
	c1 := binary.LittleEndian.Uint16(src[2:])
	bits := binary.LittleEndian.Uint32(src[4:])
	e0, e1 := unpack565(c0), unpack565(c1)

	var palette [4]point
	palette[0], palette[1] = e0, e1
	if four || c0 > c1 {
		palette[2] = lerp(e0, e1, colorWeights[2])
		palette[3] = lerp(e0, e1, colorWeights[3])
	} else {
		palette[2] = lerp(e0, e1, 0.5)
		palette[3] = point{0, 0, 0, 0}
	}
	for i := range b {
		b[i] = palette[bits>>(2*i)&3]
	}
}

func encodeExplicitAlpha(b *Block, dst []byte) {
	var bits uint64
	for i := range b {
		bits |= uint64(quantize(b[i][3], 15)) << (4 * i)
	}
	binary.LittleEndian.PutUint64(dst, bits)
}

func decodeExplicitAlpha(src []byte, b *Block) {
	bits := binary.LittleEndian.Uint64(src)
	for i := range b {
		b[i][3] = float32(bits>>(4*i)&15) / 15
	}
}
