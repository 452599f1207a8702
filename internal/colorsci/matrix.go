package colorsci

// RGB is a linear or encoded color triple.
type RGB [3]float32

// Mat3 is a row-major 3x3 matrix applied as M*v.
type Mat3 [3][3]float32

// Mul returns m*c.
func (m *Mat3) Mul(c RGB) RGB {
	return RGB{
		m[0][0]*c[0] + m[0][1]*c[1] + m[0][2]*c[2],
		m[1][0]*c[0] + m[1][1]*c[1] + m[1][2]*c[2],
		m[2][0]*c[0] + m[2][1]*c[1] + m[2][2]*c[2],
	}
}

// Compose returns m*n, the matrix that applies n first and then m.
func (m *Mat3) Compose(n *Mat3) Mat3 {
	var out Mat3
	for r := range 3 {
		for c := range 3 {
			out[r][c] = m[r][0]*n[0][c] + m[r][1]*n[1][c] + m[r][2]*n[2][c]
		}
	}
	return out
}

// Gamut conversion matrices. All operate on linear values.
var (
	AP1ToRec709 = Mat3{
		{1.7048586, -0.6217160, -0.0831426},
		{-0.1300768, 1.1407357, -0.0106589},
		{-0.0239640, -0.1289755, 1.1529395},
	}
	Rec709ToAP1 = Mat3{
		{0.6131324, 0.3395381, 0.0473296},
		{0.0701934, 0.9163539, 0.0134527},
		{0.0206155, 0.1095697, 0.8698148},
	}
	Rec2020ToRec709 = Mat3{
		{1.6604910, -0.5876411, -0.0728499},
		{-0.1245505, 1.1328999, -0.0083494},
		{-0.0181508, -0.1005789, 1.1187297},
	}
	Rec709ToRec2020 = Mat3{
		{0.6274039, 0.3292830, 0.0433131},
		{0.0690973, 0.9195404, 0.0113623},
		{0.0163914, 0.0880133, 0.8955953},
	}
	AP0ToAP1 = Mat3{
		{1.4514393161, -0.2365107469, -0.2149285693},
		{-0.0765537734, 1.1762296998, -0.0996759264},
		{0.0083161484, -0.0060324498, 0.9977163014},
	}
	AP1ToAP0 = Mat3{
		{0.6954522414, 0.1406786965, 0.1638690622},
		{0.0447945634, 0.8596711185, 0.0955343182},
		{-0.0055258826, 0.0040252103, 1.0015006723},
	}
)

// ACES fitted RRT+ODT matrices (BT.709 path).
var (
	ACESInputMat = Mat3{
		{0.59719, 0.35458, 0.04823},
		{0.07600, 0.90834, 0.01566},
		{0.02840, 0.13383, 0.83777},
	}
	ACESOutputMat = Mat3{
		{1.60475, -0.53108, -0.07367},
		{-0.10208, 1.10813, -0.00605},
		{-0.00327, -0.07276, 1.07602},
	}
)

// AgX base contrast matrices.
var (
	agxInset = Mat3{
		{0.842479062253094, 0.0784335999999992, 0.0792237451477643},
		{0.0423282422610123, 0.878468636469772, 0.0791661274605434},
		{0.0423756549057051, 0.0784336, 0.879142973793104},
	}
	agxOutset = Mat3{
		{1.19687900512017, -0.0980208811401368, -0.0990297440797205},
		{-0.0528968517574562, 1.15190312990417, -0.0989611768448433},
		{-0.0529716355144438, -0.0980434501171241, 1.15107367264116},
	}
)

// Luma weights for Rec.709 and AP1 primaries.
var (
	LumaRec709 = RGB{0.2126, 0.7152, 0.0722}
	LumaAP1    = RGB{0.2722287, 0.6740818, 0.0536895}
)

// Dot returns the dot product of a and b.
func Dot(a, b RGB) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
