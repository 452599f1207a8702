package colorsci

import (
	"fmt"
	"math"
)

// TonemapOp selects the scene-to-display rendering curve of the RRT stage.
type TonemapOp uint32

const (
	TonemapNone TonemapOp = iota
	TonemapACESFit
	TonemapACESNarkowicz
	TonemapAgX
	TonemapKhronosNeutral
	TonemapHable
	TonemapReinhardExtended
	TonemapExponential
	TonemapHejlBurgessDawson
	TonemapReinhard

	tonemapCount
)

var tonemapNames = [...]string{
	TonemapNone:              "None",
	TonemapACESFit:           "ACES Fit",
	TonemapACESNarkowicz:     "ACES (Narkowicz)",
	TonemapAgX:               "AgX",
	TonemapKhronosNeutral:    "Khronos PBR Neutral",
	TonemapHable:             "Hable",
	TonemapReinhardExtended:  "Reinhard Extended",
	TonemapExponential:       "Exponential",
	TonemapHejlBurgessDawson: "Hejl-Burgess-Dawson",
	TonemapReinhard:          "Reinhard",
}

func (op TonemapOp) String() string {
	if op < tonemapCount {
		return tonemapNames[op]
	}
	return fmt.Sprintf("TonemapOp(%d)", uint32(op))
}

// Valid reports whether op is a known operator.
func (op TonemapOp) Valid() bool { return op < tonemapCount }

// Tonemap applies op to a linear Rec.709 color. whitePoint is used by the
// operators with an explicit white (Hable, Reinhard Extended).
func Tonemap(op TonemapOp, c RGB, whitePoint float32) RGB {
	if op == TonemapNone || !op.Valid() {
		return c
	}
	c = RGB{max(c[0], 0), max(c[1], 0), max(c[2], 0)}
	switch op {
	case TonemapACESFit:
		return acesFit(c)
	case TonemapACESNarkowicz:
		return mapRGB(c, narkowicz)
	case TonemapAgX:
		return agx(c)
	case TonemapKhronosNeutral:
		return khronosNeutral(c)
	case TonemapHable:
		w := hable(max(whitePoint, 1e-4))
		return mapRGB(c, func(v float32) float32 { return hable(v) / w })
	case TonemapReinhardExtended:
		w2 := max(whitePoint*whitePoint, 1e-8)
		return mapRGB(c, func(v float32) float32 { return v * (1 + v/w2) / (1 + v) })
	case TonemapExponential:
		return mapRGB(c, func(v float32) float32 { return 1 - float32(math.Exp(float64(-v))) })
	case TonemapHejlBurgessDawson:
		return mapRGB(c, hejl)
	case TonemapReinhard:
		return mapRGB(c, Reinhard)
	}
	return c
}

// Reinhard is the simple c/(c+1) curve.
func Reinhard(v float32) float32 { return v / (v + 1) }

func acesFit(c RGB) RGB {
	v := ACESInputMat.Mul(c)
	v = mapRGB(v, func(x float32) float32 {
		a := x*(x+0.0245786) - 0.000090537
		b := x*(0.983729*x+0.4329510) + 0.238081
		return a / b
	})
	return Clamp01RGB(ACESOutputMat.Mul(v))
}

func narkowicz(x float32) float32 {
	x *= 0.6
	return Clamp01((x * (2.51*x + 0.03)) / (x*(2.43*x+0.59) + 0.14))
}

const (
	agxMinEV = -12.47393
	agxMaxEV = 4.026069
)

func agxContrast(x float32) float32 {
	x2 := x * x
	x4 := x2 * x2
	return 15.5*x4*x2 - 40.14*x4*x + 31.96*x4 - 6.868*x2*x + 0.4298*x2 + 0.1191*x - 0.00232
}

func agx(c RGB) RGB {
	v := agxInset.Mul(c)
	v = mapRGB(v, func(x float32) float32 {
		x = log2(max(x, 1e-10))
		x = (min(max(x, agxMinEV), agxMaxEV) - agxMinEV) / (agxMaxEV - agxMinEV)
		return agxContrast(x)
	})
	v = agxOutset.Mul(v)
	return mapRGB(v, func(x float32) float32 { return pow32(max(x, 0), 2.2) })
}

func khronosNeutral(c RGB) RGB {
	const (
		startCompression = 0.8 - 0.04
		desaturation     = 0.15
	)
	x := min(c[0], c[1], c[2])
	offset := float32(0.04)
	if x < 0.08 {
		offset = x - 6.25*x*x
	}
	c = RGB{c[0] - offset, c[1] - offset, c[2] - offset}
	peak := max(c[0], c[1], c[2])
	if peak < startCompression {
		return c
	}
	const d = 1 - startCompression
	newPeak := 1 - d*d/(peak+d-startCompression)
	s := newPeak / peak
	c = RGB{c[0] * s, c[1] * s, c[2] * s}
	g := 1 - 1/(desaturation*(peak-newPeak)+1)
	return RGB{
		c[0] + (newPeak-c[0])*g,
		c[1] + (newPeak-c[1])*g,
		c[2] + (newPeak-c[2])*g,
	}
}

func hable(x float32) float32 {
	const (
		a = 0.15
		b = 0.50
		c = 0.10
		d = 0.20
		e = 0.02
		f = 0.30
	)
	return ((x*(a*x+c*b) + d*e) / (x*(a*x+b) + d*f)) - e/f
}

func hejl(v float32) float32 {
	x := max(v-0.004, 0)
	y := (x * (6.2*x + 0.5)) / (x*(6.2*x+1.7) + 0.06)
	return pow32(y, 2.2)
}
