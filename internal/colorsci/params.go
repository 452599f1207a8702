package colorsci

import (
	"fmt"
	"structs"
	"unsafe"

	"honnef.co/go/safeish"
)

// Vec3 is a three-component uniform field padded to the 16-byte vector
// alignment of WGSL vec3<f32>.
type Vec3 struct {
	_       structs.HostLayout
	X, Y, Z float32
	_       float32
}

// V3 builds a Vec3.
func V3(x, y, z float32) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// RGB returns v as a color triple.
func (v Vec3) RGB() RGB { return RGB{v.X, v.Y, v.Z} }

// GradingSpace selects the encoding color grading operates in.
type GradingSpace uint32

const (
	// GradeLinear grades linear ACEScg values.
	GradeLinear GradingSpace = iota
	// GradeLog grades ACEScct values.
	GradeLog
)

func (g GradingSpace) String() string {
	switch g {
	case GradeLinear:
		return "Linear (ACEScg)"
	case GradeLog:
		return "Log (ACEScct)"
	}
	return fmt.Sprintf("GradingSpace(%d)", uint32(g))
}

// Params is the fixed layout of the uniform block shared by every
// transform stage. It must match the Uniforms struct in the WGSL prelude
// field for field.
type Params struct {
	_ structs.HostLayout

	InputSpace   Space
	GradingSpace GradingSpace
	Tonemap      TonemapOp
	OutputSpace  Space

	Exposure    float32
	Contrast    float32
	Saturation  float32
	Temperature float32

	Tint            float32
	TonemapExposure float32
	WhitePoint      float32
	PaperWhite      float32

	PeakBrightness float32
	BlackLevel     float32
	WhiteLevel     float32
	ViewExposure   float32

	Lift           Vec3
	Gamma          Vec3
	Gain           Vec3
	Offset         Vec3
	ShadowColor    Vec3
	MidtoneColor   Vec3
	HighlightColor Vec3

	SoftClipKnee   float32
	SoftClipLimit  float32
	ShadowEnd      float32
	HighlightStart float32
}

// ParamsSize is the byte size of the serialized block.
const ParamsSize = int(unsafe.Sizeof(Params{}))

// NeutralParams returns parameters under which every stage except the
// output encode (sRGB) is an identity.
func NeutralParams() Params {
	return Params{
		InputSpace:     LinearRec709,
		GradingSpace:   GradeLinear,
		Tonemap:        TonemapNone,
		OutputSpace:    SRGB,
		Contrast:       1,
		Saturation:     1,
		WhitePoint:     4,
		PaperWhite:     203,
		PeakBrightness: 1000,
		BlackLevel:     0,
		WhiteLevel:     1,
		Gamma:          V3(1, 1, 1),
		Gain:           V3(1, 1, 1),
		ShadowColor:    V3(1, 1, 1),
		MidtoneColor:   V3(1, 1, 1),
		HighlightColor: V3(1, 1, 1),
		ShadowEnd:      0.5,
		HighlightStart: 0.5,
	}
}

// Bytes returns a copy of p in its GPU layout.
func (p *Params) Bytes() []byte {
	b := safeish.AsBytes(p)
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ParamsFromBytes decodes a block written by Bytes.
func ParamsFromBytes(b []byte) (Params, error) {
	if len(b) < ParamsSize {
		return Params{}, fmt.Errorf("colorsci: uniform block too short: %d < %d bytes", len(b), ParamsSize)
	}
	var p Params
	copy(safeish.AsBytes(&p), b[:ParamsSize])
	return p, nil
}
