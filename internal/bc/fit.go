package bc

import "math"

// point is a pixel projected onto the channels a fit works on.
type point [4]float32

// bounds returns the per-channel bounding box of pts shrunk by 1/16 of
// its extent on each side.
func bounds(pts []point, dims int) (lo, hi point) {
	lo, hi = pts[0], pts[0]
	for _, p := range pts[1:] {
		for c := range dims {
			lo[c] = min(lo[c], p[c])
			hi[c] = max(hi[c], p[c])
		}
	}
	for c := range dims {
		inset := (hi[c] - lo[c]) / 16
		lo[c] += inset
		hi[c] -= inset
	}
	return lo, hi
}

// principal fits a line through pts along the direction of greatest
// variance. lo and hi are the extreme projections inset like bounds.
// residual is the variance left off the line, which ranks how well a
// single segment can describe the points.
func principal(pts []point, dims int) (lo, hi point, residual float32) {
	var mean point
	for _, p := range pts {
		for c := range dims {
			mean[c] += p[c]
		}
	}
	n := float32(len(pts))
	for c := range dims {
		mean[c] /= n
	}

	var cov [4][4]float32
	var total float32
	for _, p := range pts {
		var d point
		for c := range dims {
			d[c] = p[c] - mean[c]
		}
		for a := range dims {
			for b := range dims {
				cov[a][b] += d[a] * d[b]
			}
		}
	}
	top := 0
	for c := range dims {
		total += cov[c][c]
		if cov[c][c] > cov[top][top] {
			top = c
		}
	}
	if total <= 0 {
		return mean, mean, 0
	}

	// Power iteration from the widest channel's covariance row.
	axis := point(cov[top])
	for range 8 {
		var next point
		var peak float32
		for a := range dims {
			for b := range dims {
				next[a] += cov[a][b] * axis[b]
			}
			peak = max(peak, abs32(next[a]))
		}
		if peak == 0 {
			break
		}
		for c := range dims {
			axis[c] = next[c] / peak
		}
	}
	var norm float32
	for c := range dims {
		norm += axis[c] * axis[c]
	}
	if norm == 0 {
		return mean, mean, total
	}
	norm = float32(math.Sqrt(float64(norm)))
	for c := range dims {
		axis[c] /= norm
	}

	tmin, tmax := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	var along float32
	for _, p := range pts {
		var t float32
		for c := range dims {
			t += (p[c] - mean[c]) * axis[c]
		}
		tmin, tmax = min(tmin, t), max(tmax, t)
		along += t * t
	}
	inset := (tmax - tmin) / 16
	tmin += inset
	tmax -= inset
	for c := range dims {
		lo[c] = mean[c] + axis[c]*tmin
		hi[c] = mean[c] + axis[c]*tmax
	}
	return lo, hi, max(total-along, 0)
}

// startPairs returns the endpoint pairs a fit starts from, best guesses
// first. The principal axis and the main box diagonal are always
// present; iterations above zero add the box's other diagonals.
func startPairs(pts []point, dims, iterations int) [][2]point {
	plo, phi, _ := principal(pts, dims)
	lo, hi := bounds(pts, dims)
	pairs := [][2]point{{phi, plo}, {hi, lo}}
	if iterations == 0 {
		return pairs
	}
	// Flipping the last channel too would only reverse an earlier pair.
	for mask := 1; mask < 1<<(dims-1); mask++ {
		a, b := hi, lo
		for c := range dims {
			if mask&(1<<c) != 0 {
				a[c], b[c] = b[c], a[c]
			}
		}
		pairs = append(pairs, [2]point{a, b})
	}
	return pairs
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func dist2(a, b point, dims int) float32 {
	var d float32
	for c := range dims {
		e := a[c] - b[c]
		d += e * e
	}
	return d
}

// assign picks the nearest palette entry for every point. Entries are
// scanned in index order and a later entry wins a tie. It returns the
// summed squared error.
func assign(pts []point, palette []point, dims int, idx []uint8) float32 {
	var total float32
	for i, p := range pts {
		best := float32(-1)
		for k, q := range palette {
			if d := dist2(p, q, dims); best < 0 || d <= best {
				best = d
				idx[i] = uint8(k)
			}
		}
		total += best
	}
	return total
}

// leastSquares solves for the endpoints e0, e1 that minimize the error of
// pts against (1-t)*e0 + t*e1, where t is each point's palette weight.
// ok is false when the weights are degenerate.
func leastSquares(pts []point, t []float32, dims int) (e0, e1 point, ok bool) {
	var a, b, c float32
	var d0, d1 point
	for i, p := range pts {
		w1 := t[i]
		w0 := 1 - w1
		a += w0 * w0
		b += w0 * w1
		c += w1 * w1
		for ch := range dims {
			d0[ch] += w0 * p[ch]
			d1[ch] += w1 * p[ch]
		}
	}
	det := a*c - b*b
	if det < 1e-6 && det > -1e-6 {
		return e0, e1, false
	}
	inv := 1 / det
	for ch := range dims {
		e0[ch] = (c*d0[ch] - b*d1[ch]) * inv
		e1[ch] = (a*d1[ch] - b*d0[ch]) * inv
	}
	return e0, e1, true
}

func clampUnit(p point, dims int) point {
	for c := range dims {
		p[c] = min(max(p[c], 0), 1)
	}
	return p
}
