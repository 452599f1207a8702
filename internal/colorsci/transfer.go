package colorsci

import "math"

func pow32(x, y float32) float32 { return float32(math.Pow(float64(x), float64(y))) }
func exp2(x float32) float32     { return float32(math.Exp2(float64(x))) }
func log2(x float32) float32     { return float32(math.Log2(float64(x))) }

// Clamp01 clamps v to [0, 1].
func Clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}

// Clamp01RGB clamps every channel of c to [0, 1].
func Clamp01RGB(c RGB) RGB {
	return RGB{Clamp01(c[0]), Clamp01(c[1]), Clamp01(c[2])}
}

func mapRGB(c RGB, f func(float32) float32) RGB {
	return RGB{f(c[0]), f(c[1]), f(c[2])}
}

// SRGBEncode applies the IEC 61966-2-1 encoding to a linear value.
func SRGBEncode(l float32) float32 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*pow32(l, 1.0/2.4) - 0.055
}

// SRGBDecode inverts SRGBEncode.
func SRGBDecode(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return pow32((v+0.055)/1.055, 2.4)
}

const (
	acesCCTLinBreak = 0.0078125
	acesCCTLogBreak = 0.155251141552511
	acesCCTA        = 10.5402377416545
	acesCCTB        = 0.0729055341958355
	halfMax         = 65504.0
)

// ACEScctEncode maps a linear AP1 value to ACEScct.
func ACEScctEncode(l float32) float32 {
	if l <= acesCCTLinBreak {
		return acesCCTA*l + acesCCTB
	}
	return (log2(l) + 9.72) / 17.52
}

// ACEScctDecode maps an ACEScct value back to linear AP1.
func ACEScctDecode(v float32) float32 {
	if v <= acesCCTLogBreak {
		return (v - acesCCTB) / acesCCTA
	}
	return min(exp2(v*17.52-9.72), halfMax)
}

// SMPTE ST 2084 constants.
const (
	pqM1 = 0.1593017578125
	pqM2 = 78.84375
	pqC1 = 0.8359375
	pqC2 = 18.8515625
	pqC3 = 18.6875

	// PQPeakNits is the absolute luminance of a PQ signal of 1.0.
	PQPeakNits = 10000.0
	// HLGNominalPeakNits is the display peak HLG values are scaled to.
	HLGNominalPeakNits = 1000.0
	// SCRGBReferenceNits is the luminance of scRGB 1.0.
	SCRGBReferenceNits = 80.0
)

// PQEncode maps normalized luminance (1.0 = 10000 nits) to a PQ signal.
func PQEncode(y float32) float32 {
	y = Clamp01(y)
	ym := pow32(y, pqM1)
	return pow32((pqC1+pqC2*ym)/(1+pqC3*ym), pqM2)
}

// PQDecode maps a PQ signal to normalized luminance.
func PQDecode(e float32) float32 {
	e = Clamp01(e)
	ep := pow32(e, 1/pqM2)
	return pow32(max(ep-pqC1, 0)/(pqC2-pqC3*ep), 1/pqM1)
}

// ARIB STD-B67 constants.
const (
	hlgA = 0.17883277
	hlgB = 0.28466892
	hlgC = 0.55991073
)

// HLGEncode applies the HLG OETF to a normalized scene value.
func HLGEncode(e float32) float32 {
	e = Clamp01(e)
	if e <= 1.0/12.0 {
		return float32(math.Sqrt(float64(3 * e)))
	}
	return hlgA*float32(math.Log(float64(12*e-hlgB))) + hlgC
}

// HLGDecode inverts HLGEncode.
func HLGDecode(v float32) float32 {
	v = Clamp01(v)
	if v <= 0.5 {
		return v * v / 3
	}
	return (float32(math.Exp(float64((v-hlgC)/hlgA))) + hlgB) / 12
}

// GammaEncode applies a pure power encoding with the given exponent.
func GammaEncode(l, gamma float32) float32 { return pow32(max(l, 0), 1/gamma) }

// GammaDecode inverts GammaEncode.
func GammaDecode(v, gamma float32) float32 { return pow32(max(v, 0), gamma) }

// Linearize removes the transfer function of s, keeping its primaries.
// Scene-relative spaces (PQ, HLG, scRGB) are rescaled so 1.0 equals
// paperWhite nits.
func Linearize(s Space, c RGB, paperWhite float32) RGB {
	pw := max(paperWhite, 1)
	switch s {
	case ACEScct:
		return mapRGB(c, ACEScctDecode)
	case SRGB:
		return mapRGB(c, SRGBDecode)
	case PQRec2020:
		return mapRGB(c, func(v float32) float32 { return PQDecode(v) * PQPeakNits / pw })
	case HLGRec2020:
		return mapRGB(c, func(v float32) float32 { return HLGDecode(v) * HLGNominalPeakNits / pw })
	case SCRGB:
		return mapRGB(c, func(v float32) float32 { return v * SCRGBReferenceNits / pw })
	case Gamma22Rec709:
		return mapRGB(c, func(v float32) float32 { return GammaDecode(v, 2.2) })
	case Gamma24Rec709:
		return mapRGB(c, func(v float32) float32 { return GammaDecode(v, 2.4) })
	}
	return c
}

// Encode applies the transfer function of s to linear values in s's
// primaries. Display-referred encodings clamp to their signal range.
func Encode(s Space, c RGB, paperWhite, peak float32) RGB {
	pw := max(paperWhite, 1)
	switch s {
	case ACEScct:
		return mapRGB(c, ACEScctEncode)
	case SRGB:
		return mapRGB(Clamp01RGB(c), SRGBEncode)
	case PQRec2020:
		pk := max(peak, 1)
		return mapRGB(c, func(v float32) float32 {
			return PQEncode(min(max(v*pw, 0), pk) / PQPeakNits)
		})
	case HLGRec2020:
		return mapRGB(c, func(v float32) float32 { return HLGEncode(v * pw / HLGNominalPeakNits) })
	case SCRGB:
		return mapRGB(c, func(v float32) float32 { return v * pw / SCRGBReferenceNits })
	case Gamma22Rec709:
		return mapRGB(Clamp01RGB(c), func(v float32) float32 { return GammaEncode(v, 2.2) })
	case Gamma24Rec709:
		return mapRGB(Clamp01RGB(c), func(v float32) float32 { return GammaEncode(v, 2.4) })
	}
	return c
}
