package pipecheck

import (
	"github.com/gogpu/pipecheck/internal/bc"
	"github.com/gogpu/pipecheck/internal/colorsci"
)

// Color spaces for input and output. Encoded spaces carry a non-linear
// transfer function.
const (
	SpaceLinearRec709  = colorsci.LinearRec709
	SpaceLinearRec2020 = colorsci.LinearRec2020
	SpaceACEScg        = colorsci.ACEScg
	SpaceACES2065      = colorsci.ACES2065
	SpaceACEScct       = colorsci.ACEScct
	SpaceSRGB          = colorsci.SRGB
	SpacePQRec2020     = colorsci.PQRec2020
	SpaceHLGRec2020    = colorsci.HLGRec2020
	SpaceSCRGB         = colorsci.SCRGB
	SpaceGamma22Rec709 = colorsci.Gamma22Rec709
	SpaceGamma24Rec709 = colorsci.Gamma24Rec709
)

// Tonemap operators of the RRT stage.
const (
	TonemapNone              = colorsci.TonemapNone
	TonemapACESFit           = colorsci.TonemapACESFit
	TonemapACESNarkowicz     = colorsci.TonemapACESNarkowicz
	TonemapAgX               = colorsci.TonemapAgX
	TonemapKhronosNeutral    = colorsci.TonemapKhronosNeutral
	TonemapHable             = colorsci.TonemapHable
	TonemapReinhardExtended  = colorsci.TonemapReinhardExtended
	TonemapExponential       = colorsci.TonemapExponential
	TonemapHejlBurgessDawson = colorsci.TonemapHejlBurgessDawson
	TonemapReinhard          = colorsci.TonemapReinhard
)

// Grading spaces.
const (
	GradeLinear = colorsci.GradeLinear
	GradeLog    = colorsci.GradeLog
)

// Block compression formats.
const (
	BC1  = bc.BC1
	BC2  = bc.BC2
	BC3  = bc.BC3
	BC4  = bc.BC4
	BC5  = bc.BC5
	BC6H = bc.BC6H
	BC7  = bc.BC7
)

// ParseColorSpace accepts a display name ("PQ Rec.2020") or a short key
// ("pq", "srgb", "acescg").
func ParseColorSpace(name string) (ColorSpace, error) { return colorsci.ParseSpace(name) }

// ParseBCFormat accepts "bc1" through "bc7" and "bc6h", in any case.
func ParseBCFormat(name string) (BCFormat, error) { return bc.ParseFormat(name) }

// BCFormats lists every supported block compression format.
func BCFormats() []BCFormat { return bc.Formats() }
