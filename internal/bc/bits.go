package bc

// bitWriter packs fields LSB-first into a 128-bit block.
type bitWriter struct {
	buf []byte
	pos int
}

func (w *bitWriter) write(v uint64, n int) {
	for i := range n {
		if v&(1<<i) != 0 {
			w.buf[w.pos>>3] |= 1 << (w.pos & 7)
		}
		w.pos++
	}
}

// bitReader reads fields written by bitWriter.
type bitReader struct {
	buf []byte
	pos int
}

func (r *bitReader) read(n int) uint64 {
	var v uint64
	for i := range n {
		if r.buf[r.pos>>3]&(1<<(r.pos&7)) != 0 {
			v |= 1 << i
		}
		r.pos++
	}
	return v
}
