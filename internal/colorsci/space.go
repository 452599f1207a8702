package colorsci

import (
	"fmt"
	"strings"
)

// Space identifies a color encoding: a set of primaries plus a transfer
// function. The numeric values are part of the uniform block layout.
type Space uint32

const (
	LinearRec709 Space = iota
	LinearRec2020
	ACEScg
	ACES2065
	ACEScct
	SRGB
	PQRec2020
	HLGRec2020
	SCRGB
	Gamma22Rec709
	Gamma24Rec709

	spaceCount
)

var spaceNames = [...]string{
	LinearRec709:  "Linear Rec.709",
	LinearRec2020: "Linear Rec.2020",
	ACEScg:        "ACEScg",
	ACES2065:      "ACES2065-1",
	ACEScct:       "ACEScct",
	SRGB:          "sRGB",
	PQRec2020:     "PQ Rec.2020",
	HLGRec2020:    "HLG Rec.2020",
	SCRGB:         "scRGB",
	Gamma22Rec709: "Gamma 2.2 Rec.709",
	Gamma24Rec709: "Gamma 2.4 Rec.709",
}

func (s Space) String() string {
	if s < spaceCount {
		return spaceNames[s]
	}
	return fmt.Sprintf("Space(%d)", uint32(s))
}

var spaceKeys = map[string]Space{
	"linear": LinearRec709, "rec709": LinearRec709, "linear-rec2020": LinearRec2020,
	"acescg": ACEScg, "aces2065": ACES2065, "acescct": ACEScct,
	"srgb": SRGB, "pq": PQRec2020, "hlg": HLGRec2020, "scrgb": SCRGB,
	"gamma22": Gamma22Rec709, "gamma24": Gamma24Rec709,
}

// ParseSpace accepts a display name ("PQ Rec.2020") or a short key ("pq").
func ParseSpace(name string) (Space, error) {
	if s, ok := spaceKeys[strings.ToLower(name)]; ok {
		return s, nil
	}
	for s := range spaceCount {
		if strings.EqualFold(spaceNames[s], name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("colorsci: unknown color space %q", name)
}

// Valid reports whether s is a known space.
func (s Space) Valid() bool { return s < spaceCount }

// IsEncoded reports whether s carries a non-linear (perceptual) transfer
// function.
func (s Space) IsEncoded() bool {
	switch s {
	case ACEScct, SRGB, PQRec2020, HLGRec2020, Gamma22Rec709, Gamma24Rec709:
		return true
	}
	return false
}

// Linearized returns the space Linearize(s, ...) produces: the linear,
// paper-white relative space sharing s's primaries.
func (s Space) Linearized() Space {
	switch s {
	case SRGB, SCRGB, Gamma22Rec709, Gamma24Rec709:
		return LinearRec709
	case ACEScct:
		return ACEScg
	case PQRec2020, HLGRec2020:
		return LinearRec2020
	}
	return s
}

// Primaries identifies the gamut of a space.
type Primaries uint8

const (
	PrimariesRec709 Primaries = iota
	PrimariesRec2020
	PrimariesAP1
	PrimariesAP0
)

// Primaries returns the gamut s is defined in.
func (s Space) Primaries() Primaries {
	switch s {
	case LinearRec2020, PQRec2020, HLGRec2020:
		return PrimariesRec2020
	case ACEScg, ACEScct:
		return PrimariesAP1
	case ACES2065:
		return PrimariesAP0
	}
	return PrimariesRec709
}

var (
	ap0ToRec709 = AP1ToRec709.Compose(&AP0ToAP1)
	rec709ToAP0 = AP1ToAP0.Compose(&Rec709ToAP1)
)

// ToRec709 converts linear values in primaries p to linear Rec.709.
func (p Primaries) ToRec709(c RGB) RGB {
	switch p {
	case PrimariesRec2020:
		return Rec2020ToRec709.Mul(c)
	case PrimariesAP1:
		return AP1ToRec709.Mul(c)
	case PrimariesAP0:
		return ap0ToRec709.Mul(c)
	}
	return c
}

// FromRec709 converts linear Rec.709 values to primaries p.
func (p Primaries) FromRec709(c RGB) RGB {
	switch p {
	case PrimariesRec2020:
		return Rec709ToRec2020.Mul(c)
	case PrimariesAP1:
		return Rec709ToAP1.Mul(c)
	case PrimariesAP0:
		return rec709ToAP0.Mul(c)
	}
	return c
}
