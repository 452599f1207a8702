package bc

// Palette weights of the 8-value interpolated alpha mode, by index.
var channelWeights = [8]float32{0, 1, 1.0 / 7, 2.0 / 7, 3.0 / 7, 4.0 / 7, 5.0 / 7, 6.0 / 7}

func channelAssign(pts *[16]point, a0, a1 uint16, idx *[16]uint8) float32 {
	e0 := point{float32(a0) / 255}
	e1 := point{float32(a1) / 255}
	if a0 == a1 {
		var total float32
		for i := range pts {
			idx[i] = 0
			total += dist2(pts[i], e0, 1)
		}
		return total
	}
	palette := make([]point, 8)
	for k, w := range channelWeights {
		palette[k] = lerp(e0, e1, w)
	}
	return assign(pts[:], palette, 1, idx[:])
}

// encodeChannel writes one 8-byte interpolated single-channel block
// (BC4, each half of BC5, the alpha half of BC3) from channel ch of b.
func encodeChannel(b *Block, ch int, iterations int, dst []byte) {
	var pts [16]point
	for i := range b {
		pts[i][0] = unit(b[i][ch])
	}
	lo, hi := bounds(pts[:], 1)
	a0, a1 := quantize(hi[0], 255), quantize(lo[0], 255)

	var idx [16]uint8
	best := channelAssign(&pts, a0, a1, &idx)
	for range iterations {
		var t [16]float32
		for i, k := range idx {
			t[i] = channelWeights[k]
		}
		e0, e1, ok := leastSquares(pts[:], t[:], 1)
		if !ok {
			break
		}
		n0, n1 := quantize(e0[0], 255), quantize(e1[0], 255)
		if n0 == a0 && n1 == a1 {
			break
		}
		var nidx [16]uint8
		err := channelAssign(&pts, n0, n1, &nidx)
		if err >= best {
			break
		}
		a0, a1, idx, best = n0, n1, nidx, err
	}

	switch {
	case a0 == a1:
		idx = [16]uint8{}
	case a0 < a1:
		a0, a1 = a1, a0
		for i, k := range idx {
			switch {
			case k < 2:
				idx[i] = k ^ 1
			default:
				idx[i] = 9 - k
			}
		}
	}
	for i := range dst[:8] {
		dst[i] = 0
	}
	dst[0] = byte(a0)
	dst[1] = byte(a1)
	var bits uint64
	for i, k := range idx {
		bits |= uint64(k) << (3 * i)
	}
	for i := range 6 {
		dst[2+i] = byte(bits >> (8 * i))
	}
}

// decodeChannel expands an interpolated single-channel block into
// channel ch of b, in either the 8-value or the 6-value mode.
func decodeChannel(src []byte, ch int, b *Block) {
	a0, a1 := float32(src[0]), float32(src[1])
	var palette [8]float32
	palette[0], palette[1] = a0, a1
	if src[0] > src[1] {
		for i := 2; i < 8; i++ {
			palette[i] = (float32(8-i)*a0 + float32(i-1)*a1) / 7
		}
	} else {
		for i := 2; i < 6; i++ {
			palette[i] = (float32(6-i)*a0 + float32(i-1)*a1) / 5
		}
		palette[6], palette[7] = 0, 255
	}
	var bits uint64
	for i := range 6 {
		bits |= uint64(src[2+i]) << (8 * i)
	}
	for i := range b {
		b[i][ch] = palette[bits>>(3*i)&7] / 255
	}
}
