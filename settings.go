package pipecheck

import (
	"fmt"

	"github.com/gogpu/pipecheck/internal/bc"
	"github.com/gogpu/pipecheck/internal/colorsci"
)

// Re-exported enumerations shared with the uniform block.
type (
	// ColorSpace identifies a color encoding.
	ColorSpace = colorsci.Space
	// TonemapOp selects the RRT tonemap operator.
	TonemapOp = colorsci.TonemapOp
	// GradingSpace selects the encoding grading operates in.
	GradingSpace = colorsci.GradingSpace
	// BCFormat selects a block compression format.
	BCFormat = bc.Format
)

// Settings is the plain record of user-facing parameters. It is
// serialized into the uniform block before every render.
type Settings struct {
	// Grading.
	GradingSpace   GradingSpace
	Exposure       float32
	Contrast       float32
	Saturation     float32
	Temperature    float32
	Tint           float32
	Lift           [3]float32
	Gamma          [3]float32
	Gain           [3]float32
	Offset         [3]float32
	ShadowColor    [3]float32
	MidtoneColor   [3]float32
	HighlightColor [3]float32
	ShadowEnd      float32
	HighlightStart float32
	SoftClipKnee   float32
	SoftClipLimit  float32

	// Reference rendering transform.
	Tonemap         TonemapOp
	TonemapExposure float32
	WhitePoint      float32

	// Output.
	OutputSpace    ColorSpace
	PaperWhite     float32
	PeakBrightness float32
	BlackLevel     float32
	WhiteLevel     float32

	// ViewExposure only affects the final display stage.
	ViewExposure float32

	// Block compression round trip.
	BCFormat           BCFormat
	BCQuality          float32
	DeltaEnabled       bool
	DeltaAmplification float32
}

// DefaultSettings returns the neutral pipeline: passthrough grading, no
// tonemap, sRGB output, identity remap, BC7 at quality 0.5 and delta off.
func DefaultSettings() Settings {
	return Settings{
		GradingSpace:       colorsci.GradeLinear,
		Contrast:           1,
		Saturation:         1,
		Gamma:              [3]float32{1, 1, 1},
		Gain:               [3]float32{1, 1, 1},
		ShadowColor:        [3]float32{1, 1, 1},
		MidtoneColor:       [3]float32{1, 1, 1},
		HighlightColor:     [3]float32{1, 1, 1},
		ShadowEnd:          0.5,
		HighlightStart:     0.5,
		Tonemap:            colorsci.TonemapNone,
		WhitePoint:         4,
		OutputSpace:        colorsci.SRGB,
		PaperWhite:         203,
		PeakBrightness:     1000,
		BlackLevel:         0,
		WhiteLevel:         1,
		BCFormat:           bc.BC7,
		BCQuality:          0.5,
		DeltaAmplification: 10,
	}
}

// Validate reports settings that cannot be serialized.
func (s *Settings) Validate() error {
	if !s.OutputSpace.Valid() {
		return fmt.Errorf("pipecheck: invalid output space %d", s.OutputSpace)
	}
	if !s.Tonemap.Valid() {
		return fmt.Errorf("pipecheck: invalid tonemap operator %d", s.Tonemap)
	}
	if !s.BCFormat.Valid() {
		return fmt.Errorf("pipecheck: invalid BC format %d", s.BCFormat)
	}
	if s.BCQuality < 0 || s.BCQuality > 1 {
		return fmt.Errorf("pipecheck: BC quality %g outside [0, 1]", s.BCQuality)
	}
	return nil
}

func v3(a [3]float32) colorsci.Vec3 { return colorsci.V3(a[0], a[1], a[2]) }

// Params builds the uniform block for an image in space input.
func (s *Settings) Params(input ColorSpace) colorsci.Params {
	return colorsci.Params{
		InputSpace:      input,
		GradingSpace:    s.GradingSpace,
		Tonemap:         s.Tonemap,
		OutputSpace:     s.OutputSpace,
		Exposure:        s.Exposure,
		Contrast:        s.Contrast,
		Saturation:      s.Saturation,
		Temperature:     s.Temperature,
		Tint:            s.Tint,
		TonemapExposure: s.TonemapExposure,
		WhitePoint:      s.WhitePoint,
		PaperWhite:      s.PaperWhite,
		PeakBrightness:  s.PeakBrightness,
		BlackLevel:      s.BlackLevel,
		WhiteLevel:      s.WhiteLevel,
		ViewExposure:    s.ViewExposure,
		Lift:            v3(s.Lift),
		Gamma:           v3(s.Gamma),
		Gain:            v3(s.Gain),
		Offset:          v3(s.Offset),
		ShadowColor:     v3(s.ShadowColor),
		MidtoneColor:    v3(s.MidtoneColor),
		HighlightColor:  v3(s.HighlightColor),
		SoftClipKnee:    s.SoftClipKnee,
		SoftClipLimit:   s.SoftClipLimit,
		ShadowEnd:       s.ShadowEnd,
		HighlightStart:  s.HighlightStart,
	}
}

// encodeKey returns the cache key of a compression with these settings.
func (s *Settings) encodeKey(w, h uint32, space ColorSpace) EncodeKey {
	return EncodeKey{Format: s.BCFormat, Quality: s.BCQuality, Width: w, Height: h, Space: space}
}
