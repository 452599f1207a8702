package bc

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/pipecheck/internal/parallel"
)

func flatBlock(r, g, b, a float32) *Block {
	var blk Block
	for i := range blk {
		blk[i] = [4]float32{r, g, b, a}
	}
	return &blk
}

func randomBlock(seed uint64) *Block {
	rng := rand.New(rand.NewPCG(seed, seed*7+1))
	var blk Block
	for i := range blk {
		blk[i] = [4]float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
	}
	return &blk
}

func roundTrip(t *testing.T, f Format, in *Block, iterations int) *Block {
	t.Helper()
	buf := make([]byte, f.BlockSize())
	if err := EncodeBlock(f, in, iterations, buf); err != nil {
		t.Fatalf("EncodeBlock(%v): %v", f, err)
	}
	var out Block
	if err := DecodeBlock(f, buf, &out); err != nil {
		t.Fatalf("DecodeBlock(%v): %v", f, err)
	}
	return &out
}

func sse(a, b *Block, channels int) float64 {
	var s float64
	for i := range a {
		for c := range channels {
			d := float64(a[i][c] - b[i][c])
			s += d * d
		}
	}
	return s
}

func TestFormat_BlockSize(t *testing.T) {
	tests := []struct {
		f    Format
		want int
	}{
		{BC1, 8}, {BC2, 16}, {BC3, 16}, {BC4, 8}, {BC5, 16}, {BC6H, 16}, {BC7, 16}, {FormatNone, 0},
	}
	for _, tt := range tests {
		if got := tt.f.BlockSize(); got != tt.want {
			t.Errorf("%v.BlockSize() = %d, want %d", tt.f, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats() {
		got, err := ParseFormat(f.String())
		if err != nil || got != f {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", f.String(), got, err, f)
		}
	}
	if got, err := ParseFormat("bc6h"); err != nil || got != BC6H {
		t.Errorf("ParseFormat(\"bc6h\") = %v, %v; want BC6H", got, err)
	}
	if _, err := ParseFormat("bc9"); err == nil {
		t.Error("ParseFormat(\"bc9\") returned no error")
	}
}

func TestIterations(t *testing.T) {
	tests := []struct {
		q    float32
		want int
	}{
		{-1, 0}, {0, 0}, {0.2, 1}, {0.5, 2}, {1, 3}, {4, 3},
	}
	for _, tt := range tests {
		if got := Iterations(tt.q); got != tt.want {
			t.Errorf("Iterations(%v) = %d, want %d", tt.q, got, tt.want)
		}
	}
}

func TestRoundTrip_FlatBlocks(t *testing.T) {
	in := flatBlock(0.25, 0.5, 0.75, 0.6)
	tests := []struct {
		f        Format
		channels int
		tol      float32
	}{
		{BC1, 3, 0.02},
		{BC2, 4, 0.04},
		{BC3, 4, 0.02},
		{BC4, 1, 0.005},
		{BC5, 2, 0.005},
		{BC6H, 3, 0.01},
		{BC7, 4, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			out := roundTrip(t, tt.f, in, 2)
			for i := range out {
				for c := range tt.channels {
					if d := float32(math.Abs(float64(out[i][c] - in[i][c]))); d > tt.tol {
						t.Fatalf("pixel %d channel %d = %v, want %v (±%v)", i, c, out[i][c], in[i][c], tt.tol)
					}
				}
			}
		})
	}
}

func TestBC6H_MidGrayRoundTrip(t *testing.T) {
	out := roundTrip(t, BC6H, flatBlock(0.18, 0.18, 0.18, 1), 0)
	for i := range out {
		for c := range 3 {
			if d := math.Abs(float64(out[i][c]) - 0.18); d > 0.01 {
				t.Fatalf("pixel %d channel %d = %v, want 0.18 ±0.01", i, c, out[i][c])
			}
		}
		if out[i][3] != 1 {
			t.Fatalf("pixel %d alpha = %v, want 1", i, out[i][3])
		}
	}
}

func TestBC6H_HighlightsKeepRelativePrecision(t *testing.T) {
	var in Block
	for i := range in {
		v := 1 + float32(i)*0.1
		in[i] = [4]float32{v, v * 0.5, v * 0.25, 1}
	}
	out := roundTrip(t, BC6H, &in, 3)
	for i := range out {
		for c := range 3 {
			want := in[i][c]
			if rel := math.Abs(float64(out[i][c]-want)) / float64(want); rel > 0.15 {
				t.Errorf("pixel %d channel %d = %v, want %v (rel err %.3f)", i, c, out[i][c], want, rel)
			}
		}
	}
}

func TestBC6H_ModeAndAnchor(t *testing.T) {
	buf := make([]byte, 16)
	for seed := range uint64(20) {
		blk := randomBlock(seed)
		for i := range blk {
			for c := range 3 {
				blk[i][c] *= 8
			}
		}
		if err := EncodeBlock(BC6H, blk, 2, buf); err != nil {
			t.Fatal(err)
		}
		if mode := buf[0] & 0x1f; mode != bc6hMode11 {
			t.Fatalf("seed %d: mode bits = %#x, want %#x", seed, mode, bc6hMode11)
		}
	}
}

func TestBC6H_NegativeAndNaNClampToZero(t *testing.T) {
	in := flatBlock(-2, float32(math.NaN()), 0, 1)
	out := roundTrip(t, BC6H, in, 0)
	for i := range out {
		for c := range 3 {
			if out[i][c] != 0 {
				t.Fatalf("pixel %d channel %d = %v, want 0", i, c, out[i][c])
			}
		}
	}
}

func TestBC7_ModeBits(t *testing.T) {
	var in Block
	for i := range in {
		in[i] = [4]float32{0.2, 0.4, 0.6, float32(i) / 15}
	}
	buf := make([]byte, 16)
	if err := EncodeBlock(BC7, &in, 1, buf); err != nil {
		t.Fatal(err)
	}
	if buf[0]&0x7f != 0x40 {
		t.Errorf("first byte = %#08b, want mode 6 marker 0b1000000", buf[0]&0x7f)
	}
}

// gridBlock spreads red across columns and green across rows, which no
// single line through RGB space fits.
func gridBlock() *Block {
	var blk Block
	for i := range blk {
		x, y := i%4, i/4
		blk[i] = [4]float32{float32(x) / 3, float32(y) / 3, 0.5, 1}
	}
	return &blk
}

func maxAbsErr(a, b *Block, channels int) float32 {
	var m float32
	for i := range a {
		for c := range channels {
			m = max(m, float32(math.Abs(float64(a[i][c]-b[i][c]))))
		}
	}
	return m
}

func TestBC7_TwoSubsetGrid(t *testing.T) {
	in := gridBlock()
	var prev float64
	for iters := range 4 {
		buf := make([]byte, 16)
		if err := EncodeBlock(BC7, in, iters, buf); err != nil {
			t.Fatal(err)
		}
		if buf[0]&0x03 != 0x02 {
			t.Errorf("iterations %d: first byte = %#08b, want mode 1 marker 0b10", iters, buf[0])
		}
		out := roundTrip(t, BC7, in, iters)
		if m := maxAbsErr(in, out, 4); m > 0.25 {
			t.Errorf("iterations %d: max error %.3f, want <= 0.25", iters, m)
		}
		e := sse(in, out, 4)
		if iters > 0 && e > prev+1e-6 {
			t.Errorf("iterations %d: error %.5f > %.5f at fewer iterations", iters, e, prev)
		}
		prev = e
	}
}

func TestBC7_Mode1AnchorFixup(t *testing.T) {
	for _, part := range []int{0, 13, 17, 29, 63} {
		fit := bc7Mode1Fit{
			part: part,
			sub: [2]bc7Subset{
				{e: [2][3]int{{3, 10, 60}, {50, 40, 2}}, p: 1},
				{e: [2][3]int{{63, 0, 31}, {0, 63, 32}}, p: 0},
			},
		}
		for i := range fit.idx {
			fit.idx[i] = uint8(7 - i%8)
		}
		pal := [2][8]point{fit.sub[0].palette(), fit.sub[1].palette()}
		mask := bc7Partitions2[part]
		var want Block
		for i, k := range fit.idx {
			p := pal[int(mask>>i)&1][k]
			want[i] = [4]float32{p[0] / 255, p[1] / 255, p[2] / 255, 1}
		}

		buf := make([]byte, 16)
		fit.write(buf)
		var got Block
		if err := DecodeBlock(BC7, buf, &got); err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("partition %d: decoded block differs from the fitted palette\ngot  %v\nwant %v", part, got, want)
		}
	}
}

func TestBC7_PartitionAnchorsBelongToSubsetOne(t *testing.T) {
	for part, mask := range bc7Partitions2 {
		if mask&1 != 0 {
			t.Errorf("partition %d: pixel 0 is in subset 1", part)
		}
		if a := bc7Anchors2[part]; mask&(1<<a) == 0 {
			t.Errorf("partition %d: anchor %d is not in subset 1", part, a)
		}
	}
}

func TestPrincipal_LineHasNoResidual(t *testing.T) {
	var pts [16]point
	for i := range pts {
		v := float32(i) * 10
		pts[i] = point{v, 150 - v, 40}
	}
	lo, hi, residual := principal(pts[:], 3)
	if residual > 1 {
		t.Errorf("residual = %v, want ~0 for collinear points", residual)
	}
	if (hi[0]-lo[0])*(hi[1]-lo[1]) >= 0 {
		t.Errorf("endpoints %v / %v do not follow the falling green slope", lo, hi)
	}
	if _, _, r := principal(gridBlockPoints(), 3); r < 1 {
		t.Errorf("grid residual = %v, want a clearly nonzero value", r)
	}
}

func gridBlockPoints() []point {
	pts := make([]point, 16)
	for i, p := range gridBlock() {
		pts[i] = point{p[0] * 255, p[1] * 255, p[2] * 255}
	}
	return pts
}

func TestBC6H_WiderSearchNeverWorse(t *testing.T) {
	in := gridBlock()
	for i := range in {
		for c := range 3 {
			in[i][c] *= 4
		}
	}
	halfErr := func(out *Block) float64 {
		var s float64
		for i := range in {
			for c := range 3 {
				d := float64(halfBits(in[i][c]) - halfBits(out[i][c]))
				s += d * d
			}
		}
		return s
	}
	e0 := halfErr(roundTrip(t, BC6H, in, 0))
	e3 := halfErr(roundTrip(t, BC6H, in, 3))
	if e3 > e0 {
		t.Errorf("half-bit error with 3 iterations %.0f > %.0f with none", e3, e0)
	}
}

func TestBC1_EndpointOrderSelectsFourColorMode(t *testing.T) {
	var in Block
	for i := range in {
		v := float32(i) / 15
		in[i] = [4]float32{v, v, v, 1}
	}
	buf := make([]byte, 8)
	if err := EncodeBlock(BC1, &in, 0, buf); err != nil {
		t.Fatal(err)
	}
	c0 := uint16(buf[0]) | uint16(buf[1])<<8
	c1 := uint16(buf[2]) | uint16(buf[3])<<8
	if c0 <= c1 {
		t.Errorf("color0 %#04x <= color1 %#04x, want 4-color ordering", c0, c1)
	}
}

func TestBC1_InsetEndpoints(t *testing.T) {
	var in Block
	for i := range in {
		if i%2 == 0 {
			in[i] = [4]float32{0, 0, 0, 1}
		} else {
			in[i] = [4]float32{1, 1, 1, 1}
		}
	}
	buf := make([]byte, 8)
	if err := EncodeBlock(BC1, &in, 0, buf); err != nil {
		t.Fatal(err)
	}
	hi := unpack565(uint16(buf[0]) | uint16(buf[1])<<8)
	lo := unpack565(uint16(buf[2]) | uint16(buf[3])<<8)
	if hi[0] >= 1 || lo[0] <= 0 {
		t.Errorf("endpoints %v / %v not inset from the 0..1 bounding box", hi, lo)
	}
}

func TestAssign_TiePrefersLaterIndex(t *testing.T) {
	pts := [16]point{}
	for i := range pts {
		pts[i] = point{0.5}
	}
	palette := []point{{0}, {1}, {0.25}, {0.75}}
	var idx [16]uint8
	assign(pts[:], palette, 1, idx[:])
	for i, k := range idx {
		if k != 3 {
			t.Fatalf("pixel %d index = %d, want 3 (later of two equidistant entries)", i, k)
		}
	}
}

func TestRefinementNeverIncreasesError(t *testing.T) {
	for _, f := range []Format{BC1, BC4, BC7} {
		for seed := range uint64(16) {
			blk := randomBlock(seed)
			channels := f.Channels()
			e0 := sse(blk, roundTrip(t, f, blk, 0), channels)
			e3 := sse(blk, roundTrip(t, f, blk, 3), channels)
			if e3 > e0+1e-6 {
				t.Errorf("%v seed %d: refined error %.5f > unrefined %.5f", f, seed, e3, e0)
			}
		}
	}
}

func TestEncode_PaddedDimensions(t *testing.T) {
	const w, h = 5, 3
	pix := make([]float32, w*h*4)
	for i := range pix {
		pix[i] = 0.5
	}
	img, err := Encode(BC1, pix, w, h, Options{Quality: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 8 || img.Height != 4 {
		t.Errorf("padded size = %dx%d, want 8x4", img.Width, img.Height)
	}
	if img.BlocksPerRow != 2 {
		t.Errorf("BlocksPerRow = %d, want 2", img.BlocksPerRow)
	}
	if len(img.Data) != 2*8 {
		t.Errorf("len(Data) = %d, want 16", len(img.Data))
	}
	out, err := Decode(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != w*h*4 {
		t.Errorf("decoded %d floats, want %d", len(out), w*h*4)
	}
}

func TestEncode_PoolMatchesSerial(t *testing.T) {
	const w, h = 37, 21
	rng := rand.New(rand.NewPCG(9, 9))
	pix := make([]float32, w*h*4)
	for i := range pix {
		pix[i] = rng.Float32()
	}
	pool := parallel.NewPool(4)
	defer pool.Close()

	for _, f := range Formats() {
		serial, err := Encode(f, pix, w, h, Options{Quality: 1})
		if err != nil {
			t.Fatal(err)
		}
		pooled, err := Encode(f, pix, w, h, Options{Quality: 1, Pool: pool})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(serial.Data, pooled.Data) {
			t.Errorf("%v: pooled encode differs from serial encode", f)
		}
	}
}

func TestEncode_InvalidInput(t *testing.T) {
	if _, err := Encode(FormatNone, make([]float32, 64), 4, 4, Options{}); err == nil {
		t.Error("Encode with FormatNone returned no error")
	}
	if _, err := Encode(BC1, make([]float32, 4), 4, 4, Options{}); err == nil {
		t.Error("Encode with short buffer returned no error")
	}
	if _, err := Encode(BC1, nil, 0, 4, Options{}); err == nil {
		t.Error("Encode with zero width returned no error")
	}
}

func TestDecodeBlock_UnknownModesDecodeToZero(t *testing.T) {
	var out Block
	src := make([]byte, 16)
	src[0] = 0x01 // BC7 mode 0
	if err := DecodeBlock(BC7, src, &out); err != nil {
		t.Fatal(err)
	}
	if out[0] != [4]float32{} {
		t.Errorf("BC7 mode 0 decoded to %v, want zero", out[0])
	}
}
