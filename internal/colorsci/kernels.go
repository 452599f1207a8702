package colorsci

import "math"

// Kernel transforms one color under the shared parameter block.
// Alpha is carried unchanged by every kernel.
type Kernel func(p *Params, c RGB) RGB

// InputConvert decodes the input space to linear Rec.709.
func InputConvert(p *Params, c RGB) RGB {
	return p.InputSpace.Primaries().ToRec709(Linearize(p.InputSpace, c, p.PaperWhite))
}

// acesCCT value of scene 18% gray.
const (
	linearPivot = 0.18
	logPivot    = 0.4135884
)

func smoothstep(e0, e1, x float32) float32 {
	t := Clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

func signedPow(v, e float32) float32 {
	if v < 0 {
		return -pow32(-v, e)
	}
	return pow32(v, e)
}

// ColorGrade applies exposure, white balance, offset, contrast,
// lift/gamma/gain, tonal color balance, saturation and soft clip.
// Input and output are linear Rec.709.
func ColorGrade(p *Params, c RGB) RGB {
	k := exp2(p.Exposure)
	c = RGB{
		c[0] * k * (1 + 0.1*p.Temperature),
		c[1] * k * (1 - 0.1*p.Tint),
		c[2] * k * (1 - 0.1*p.Temperature),
	}

	g := Rec709ToAP1.Mul(c)
	pivot := float32(linearPivot)
	if p.GradingSpace == GradeLog {
		g = mapRGB(g, ACEScctEncode)
		pivot = logPivot
	}

	lift, gamma, gain, offset := p.Lift.RGB(), p.Gamma.RGB(), p.Gain.RGB(), p.Offset.RGB()
	for i := range 3 {
		v := g[i] + offset[i]
		v = (v-pivot)*p.Contrast + pivot
		v = gain[i] * (v + lift[i]*(1-v))
		ge := gamma[i]
		if ge <= 0 {
			ge = 1
		}
		g[i] = signedPow(v, 1/ge)
	}

	l := Dot(g, LumaAP1)
	ws := 1 - smoothstep(0, max(p.ShadowEnd, 1e-4), l)
	wh := smoothstep(min(p.HighlightStart, 0.9999), 1, l)
	wm := max(1-ws-wh, 0)
	sum := ws + wm + wh
	sh, md, hi := p.ShadowColor.RGB(), p.MidtoneColor.RGB(), p.HighlightColor.RGB()
	for i := range 3 {
		g[i] *= (sh[i]*ws + md[i]*wm + hi[i]*wh) / sum
	}

	l = Dot(g, LumaAP1)
	for i := range 3 {
		g[i] = l + (g[i]-l)*p.Saturation
	}

	if p.GradingSpace == GradeLog {
		g = mapRGB(g, ACEScctDecode)
	}
	c = AP1ToRec709.Mul(g)

	if p.SoftClipKnee > 0 && p.SoftClipLimit > p.SoftClipKnee {
		knee, span := p.SoftClipKnee, p.SoftClipLimit-p.SoftClipKnee
		c = mapRGB(c, func(v float32) float32 {
			if v <= knee {
				return v
			}
			return knee + span*float32(math.Tanh(float64((v-knee)/span)))
		})
	}
	return c
}

// RRT applies the tonemap exposure and operator.
func RRT(p *Params, c RGB) RGB {
	k := exp2(p.TonemapExposure)
	return Tonemap(p.Tonemap, RGB{c[0] * k, c[1] * k, c[2] * k}, p.WhitePoint)
}

// ODT converts linear Rec.709 to the output space's primaries.
func ODT(p *Params, c RGB) RGB {
	return p.OutputSpace.Primaries().FromRec709(c)
}

// OutputEncode applies the output space's transfer function.
func OutputEncode(p *Params, c RGB) RGB {
	return Encode(p.OutputSpace, c, p.PaperWhite, p.PeakBrightness)
}

// DisplayRemap maps [0, 1] onto [black, white].
func DisplayRemap(p *Params, c RGB) RGB {
	s := p.WhiteLevel - p.BlackLevel
	return RGB{p.BlackLevel + c[0]*s, p.BlackLevel + c[1]*s, p.BlackLevel + c[2]*s}
}

// FinalDisplay prepares the encoded output for an sRGB display. Linear
// outputs get the sRGB curve; encoded outputs are shown as-is. The view
// exposure is applied in display-linear light in both cases.
func FinalDisplay(p *Params, c RGB) RGB {
	k := exp2(p.ViewExposure)
	if p.OutputSpace.IsEncoded() {
		c = Clamp01RGB(c)
		if k == 1 {
			return c
		}
		c = mapRGB(c, SRGBDecode)
	}
	return mapRGB(Clamp01RGB(RGB{c[0] * k, c[1] * k, c[2] * k}), SRGBEncode)
}

// PerceptualMap is the fixed Reinhard-then-sRGB curve applied to both
// operands of a delta over linear data.
func PerceptualMap(c RGB) RGB {
	return mapRGB(c, func(v float32) float32 {
		return SRGBEncode(Clamp01(Reinhard(max(v, 0))))
	})
}

// Delta returns |reference - decoded| * amplification. With perceptual
// set, both operands are first mapped through PerceptualMap.
func Delta(reference, decoded RGB, amplification float32, perceptual bool) RGB {
	if perceptual {
		reference = PerceptualMap(reference)
		decoded = PerceptualMap(decoded)
	}
	var out RGB
	for i := range 3 {
		d := reference[i] - decoded[i]
		if d < 0 {
			d = -d
		}
		out[i] = d * amplification
	}
	return out
}
