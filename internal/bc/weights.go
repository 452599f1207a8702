package bc

// weights4 are the 4-bit index interpolation weights shared by BC6H and
// BC7, in 64ths.
var weights4 = [16]int{0, 4, 9, 13, 17, 21, 26, 30, 34, 38, 43, 47, 51, 55, 60, 64}

// weights3 are the 3-bit index weights of BC7 mode 1.
var weights3 = [8]int{0, 9, 18, 27, 37, 46, 55, 64}

func interpolate(e0, e1, w int) int {
	return ((64-w)*e0 + w*e1 + 32) >> 6
}

// fixAnchor makes index 0 fit the 3-bit anchor slot by swapping the
// endpoints and mirroring every index. weights4 is symmetric, so the
// decoded block is unchanged.
func fixAnchor(idx *[16]uint8) bool {
	if idx[0] < 8 {
		return false
	}
	for i := range idx {
		idx[i] = 15 - idx[i]
	}
	return true
}

func writeIndices4(w *bitWriter, idx *[16]uint8) {
	w.write(uint64(idx[0]), 3)
	for _, k := range idx[1:] {
		w.write(uint64(k), 4)
	}
}

func readIndices4(r *bitReader, idx *[16]uint8) {
	idx[0] = uint8(r.read(3))
	for i := 1; i < 16; i++ {
		idx[i] = uint8(r.read(4))
	}
}
