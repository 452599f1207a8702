package bc

import (
	"cmp"
	"slices"
)

const (
	bc7Mode1 = 1
	bc7Mode6 = 6
)

// bc7Partitions2 holds the two-subset partition shapes. Bit i is set
// when pixel i belongs to subset 1.
var bc7Partitions2 = [64]uint16{
	0xCCCC, 0x8888, 0xEEEE, 0xECC8, 0xC880, 0xFEEC, 0xFEC8, 0xEC80,
	0xC800, 0xFFEC, 0xFE80, 0xE800, 0xFFE8, 0xFF00, 0xFFF0, 0xF000,
	0xF710, 0x008E, 0x7100, 0x08CE, 0x008C, 0x7310, 0x3100, 0x8CCE,
	0x088C, 0x3110, 0x6666, 0x366C, 0x17E8, 0x0FF0, 0x718E, 0x399C,
	0xAAAA, 0xF0F0, 0x5A5A, 0x33CC, 0x3C3C, 0x55AA, 0x9696, 0xA55A,
	0x73CE, 0x13C8, 0x324C, 0x3BDC, 0x6996, 0xC33C, 0x9966, 0x0660,
	0x0272, 0x04E4, 0x4E40, 0x2720, 0xC936, 0x936C, 0x39C6, 0x639C,
	0x9336, 0x9CC6, 0x817E, 0xE718, 0xCCF0, 0x0FCC, 0x7744, 0xEE22,
}

// bc7Anchors2 is the anchor pixel of subset 1 for each partition.
// Subset 0 is always anchored at pixel 0.
var bc7Anchors2 = [64]uint8{
	15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15, 15,
	15, 2, 8, 2, 2, 8, 8, 15, 2, 8, 2, 2, 8, 8, 2, 2,
	15, 15, 6, 8, 2, 8, 15, 15, 2, 8, 2, 2, 2, 15, 15, 6,
	6, 2, 6, 8, 15, 15, 2, 2, 15, 15, 15, 15, 15, 2, 2, 15,
}

// bc7PartitionsTried is how many of the best-ranked mode 1 partitions
// get a full fit, by refinement rounds.
var bc7PartitionsTried = [4]int{2, 4, 8, 16}

// bc7Endpoint is one mode 6 endpoint: four 7-bit channels plus the
// shared p-bit that forms their LSB.
type bc7Endpoint struct {
	c [4]int
	p int
}

func (e bc7Endpoint) value(ch int) int { return e.c[ch]<<1 | e.p }

// quantizeBC7 picks the 7-bit channels and p-bit closest to target,
// given in 0..255.
func quantizeBC7(target point) bc7Endpoint {
	var best bc7Endpoint
	bestErr := float32(-1)
	for p := range 2 {
		var e bc7Endpoint
		e.p = p
		var err float32
		for ch := range 4 {
			c := int((target[ch]-float32(p))/2 + 0.5)
			e.c[ch] = min(max(c, 0), 127)
			d := float32(e.value(ch)) - target[ch]
			err += d * d
		}
		if bestErr < 0 || err < bestErr {
			best, bestErr = e, err
		}
	}
	return best
}

func bc7Palette(e0, e1 bc7Endpoint) [16]point {
	var pal [16]point
	for k, w := range weights4 {
		for ch := range 4 {
			pal[k][ch] = float32(interpolate(e0.value(ch), e1.value(ch), w))
		}
	}
	return pal
}

func bc7Assign(pts *[16]point, e0, e1 bc7Endpoint, idx *[16]uint8) float32 {
	pal := bc7Palette(e0, e1)
	return assign(pts[:], pal[:], 4, idx[:])
}

// bc7Subset is one mode 1 subset: two RGB endpoints of 6 bits per
// channel and the p-bit they share.
type bc7Subset struct {
	e [2][3]int
	p int
}

// expand7 widens a 7-bit endpoint channel to 8 bits.
func expand7(v int) int { return v<<1 | v>>6 }

func (s *bc7Subset) value(k, ch int) int { return expand7(s.e[k][ch]<<1 | s.p) }

func (s *bc7Subset) palette() [8]point {
	var pal [8]point
	for k, w := range weights3 {
		for ch := range 3 {
			pal[k][ch] = float32(interpolate(s.value(0, ch), s.value(1, ch), w))
		}
		pal[k][3] = 255
	}
	return pal
}

func (s *bc7Subset) assign(pts []point, idx []uint8) float32 {
	pal := s.palette()
	return assign(pts, pal[:], 4, idx)
}

// quantizeSubset picks the 6-bit channels and shared p-bit closest to
// the RGB endpoints a and b, given in 0..255.
func quantizeSubset(a, b point) bc7Subset {
	var best bc7Subset
	bestErr := float32(-1)
	for p := range 2 {
		s := bc7Subset{p: p}
		var err float32
		for k, target := range [2]point{a, b} {
			for ch := range 3 {
				t := min(max(target[ch], 0), 255)
				base := int((t-float32(2*p))/4 + 0.5)
				bestD := float32(-1)
				for c := max(base-1, 0); c <= min(base+1, 63); c++ {
					d := float32(expand7(c<<1|p)) - t
					if bestD < 0 || d*d < bestD {
						s.e[k][ch], bestD = c, d*d
					}
				}
				err += bestD
			}
		}
		if bestErr < 0 || err < bestErr {
			best, bestErr = s, err
		}
	}
	return best
}

// bc7Split is a block's pixels grouped by the subsets of one partition.
type bc7Split struct {
	pts [2][16]point
	pix [2][16]int
	n   [2]int
}

func splitPartition(pts *[16]point, part int) bc7Split {
	var sp bc7Split
	mask := bc7Partitions2[part]
	for i, p := range pts {
		s := int(mask>>i) & 1
		sp.pts[s][sp.n[s]] = p
		sp.pix[s][sp.n[s]] = i
		sp.n[s]++
	}
	return sp
}

// fitSubset fits one mode 1 subset to pts. idx holds one index per
// point of pts.
func fitSubset(pts []point, iterations int) (s bc7Subset, idx [16]uint8, best float32) {
	n := len(pts)
	best = -1
	for _, pair := range startPairs(pts, 3, iterations) {
		q := quantizeSubset(pair[0], pair[1])
		var qidx [16]uint8
		if err := q.assign(pts, qidx[:n]); best < 0 || err < best {
			s, idx, best = q, qidx, err
		}
	}
	for range iterations {
		var t [16]float32
		for i := range n {
			t[i] = float32(weights3[idx[i]]) / 64
		}
		f0, f1, ok := leastSquares(pts, t[:n], 3)
		if !ok {
			break
		}
		q := quantizeSubset(f0, f1)
		if q == s {
			break
		}
		var qidx [16]uint8
		err := q.assign(pts, qidx[:n])
		if err >= best {
			break
		}
		s, idx, best = q, qidx, err
	}
	return s, idx, best
}

type bc7Mode1Fit struct {
	part int
	sub  [2]bc7Subset
	idx  [16]uint8
	err  float32
}

// fitMode1 ranks every partition by how far its subsets stray from a
// line, then fully fits the best few.
func fitMode1(pts *[16]point, iterations int) bc7Mode1Fit {
	type rank struct {
		part     int
		residual float32
	}
	var ranks [64]rank
	for part := range ranks {
		sp := splitPartition(pts, part)
		_, _, r0 := principal(sp.pts[0][:sp.n[0]], 3)
		_, _, r1 := principal(sp.pts[1][:sp.n[1]], 3)
		ranks[part] = rank{part, r0 + r1}
	}
	slices.SortStableFunc(ranks[:], func(a, b rank) int { return cmp.Compare(a.residual, b.residual) })

	best := bc7Mode1Fit{err: -1}
	for _, r := range ranks[:bc7PartitionsTried[min(iterations, len(bc7PartitionsTried)-1)]] {
		sp := splitPartition(pts, r.part)
		fit := bc7Mode1Fit{part: r.part}
		for s := range 2 {
			sub, idx, err := fitSubset(sp.pts[s][:sp.n[s]], iterations)
			fit.sub[s] = sub
			fit.err += err
			for j, i := range sp.pix[s][:sp.n[s]] {
				fit.idx[i] = idx[j]
			}
		}
		if best.err < 0 || fit.err < best.err {
			best = fit
		}
	}
	return best
}

// fixAnchors2 makes each subset's anchor index fit its 2-bit slot by
// swapping that subset's endpoints and mirroring its indices.
func (f *bc7Mode1Fit) fixAnchors2() {
	mask := bc7Partitions2[f.part]
	anchors := [2]int{0, int(bc7Anchors2[f.part])}
	for s, a := range anchors {
		if f.idx[a] < 4 {
			continue
		}
		f.sub[s].e[0], f.sub[s].e[1] = f.sub[s].e[1], f.sub[s].e[0]
		for i := range f.idx {
			if int(mask>>i)&1 == s {
				f.idx[i] = 7 - f.idx[i]
			}
		}
	}
}

func (f *bc7Mode1Fit) write(dst []byte) {
	f.fixAnchors2()
	clear(dst[:16])
	w := bitWriter{buf: dst}
	w.write(1<<bc7Mode1, bc7Mode1+1)
	w.write(uint64(f.part), 6)
	for ch := range 3 {
		for s := range 2 {
			w.write(uint64(f.sub[s].e[0][ch]), 6)
			w.write(uint64(f.sub[s].e[1][ch]), 6)
		}
	}
	w.write(uint64(f.sub[0].p), 1)
	w.write(uint64(f.sub[1].p), 1)
	anchor := int(bc7Anchors2[f.part])
	for i, k := range f.idx {
		n := 3
		if i == 0 || i == anchor {
			n = 2
		}
		w.write(uint64(k), n)
	}
}

// encodeBC7 writes whichever of mode 6 (one RGBA subset, 4-bit indices)
// and mode 1 (two opaque RGB subsets, 3-bit indices) fits the block
// with less error.
func encodeBC7(b *Block, iterations int, dst []byte) {
	var pts [16]point
	var alphaErr float32
	for i := range b {
		for ch := range 4 {
			pts[i][ch] = unit(b[i][ch]) * 255
		}
		d := 255 - pts[i][3]
		alphaErr += d * d
	}

	var e0, e1 bc7Endpoint
	var idx [16]uint8
	best := float32(-1)
	for _, pair := range startPairs(pts[:], 4, iterations) {
		n0, n1 := quantizeBC7(pair[0]), quantizeBC7(pair[1])
		var nidx [16]uint8
		if err := bc7Assign(&pts, n0, n1, &nidx); best < 0 || err < best {
			e0, e1, idx, best = n0, n1, nidx, err
		}
	}
	for range iterations {
		var t [16]float32
		for i, k := range idx {
			t[i] = float32(weights4[k]) / 64
		}
		f0, f1, ok := leastSquares(pts[:], t[:], 4)
		if !ok {
			break
		}
		for ch := range 4 {
			f0[ch] = min(max(f0[ch], 0), 255)
			f1[ch] = min(max(f1[ch], 0), 255)
		}
		n0, n1 := quantizeBC7(f0), quantizeBC7(f1)
		if n0 == e0 && n1 == e1 {
			break
		}
		var nidx [16]uint8
		err := bc7Assign(&pts, n0, n1, &nidx)
		if err >= best {
			break
		}
		e0, e1, idx, best = n0, n1, nidx, err
	}

	// Mode 1 decodes opaque, so it cannot beat a fit already closer
	// than the block's distance from full alpha.
	if alphaErr < best {
		if fit := fitMode1(&pts, iterations); fit.err < best {
			fit.write(dst)
			return
		}
	}

	if fixAnchor(&idx) {
		e0, e1 = e1, e0
	}

	clear(dst[:16])
	w := bitWriter{buf: dst}
	w.write(1<<bc7Mode6, bc7Mode6+1)
	for ch := range 4 {
		w.write(uint64(e0.c[ch]), 7)
		w.write(uint64(e1.c[ch]), 7)
	}
	w.write(uint64(e0.p), 1)
	w.write(uint64(e1.p), 1)
	writeIndices4(&w, &idx)
}

func decodeBC7(src []byte, b *Block) {
	mode := 0
	for mode < 8 && src[0]&(1<<mode) == 0 {
		mode++
	}
	switch mode {
	case bc7Mode1:
		decodeBC7Mode1(src, b)
	case bc7Mode6:
		decodeBC7Mode6(src, b)
	default:
		for i := range b {
			b[i] = [4]float32{}
		}
	}
}

func decodeBC7Mode6(src []byte, b *Block) {
	r := bitReader{buf: src, pos: bc7Mode6 + 1}
	var e0, e1 bc7Endpoint
	for ch := range 4 {
		e0.c[ch] = int(r.read(7))
		e1.c[ch] = int(r.read(7))
	}
	e0.p = int(r.read(1))
	e1.p = int(r.read(1))
	var idx [16]uint8
	readIndices4(&r, &idx)
	pal := bc7Palette(e0, e1)
	for i, k := range idx {
		p := pal[k]
		b[i] = [4]float32{p[0] / 255, p[1] / 255, p[2] / 255, p[3] / 255}
	}
}

func decodeBC7Mode1(src []byte, b *Block) {
	r := bitReader{buf: src, pos: bc7Mode1 + 1}
	part := int(r.read(6))
	var sub [2]bc7Subset
	for ch := range 3 {
		for s := range sub {
			sub[s].e[0][ch] = int(r.read(6))
			sub[s].e[1][ch] = int(r.read(6))
		}
	}
	sub[0].p = int(r.read(1))
	sub[1].p = int(r.read(1))
	pal := [2][8]point{sub[0].palette(), sub[1].palette()}
	mask := bc7Partitions2[part]
	anchor := int(bc7Anchors2[part])
	for i := range b {
		n := 3
		if i == 0 || i == anchor {
			n = 2
		}
		p := pal[int(mask>>i)&1][r.read(n)]
		b[i] = [4]float32{p[0] / 255, p[1] / 255, p[2] / 255, 1}
	}
}
