package pipecheck

import (
	"fmt"
	"math"
)

// ChannelMetrics is the error of one channel, or of RGB combined.
type ChannelMetrics struct {
	MSE      float64
	PSNR     float64 // dB; +Inf for identical data
	MaxError float64
}

// BCMetrics compares a reference image with its decompressed version.
type BCMetrics struct {
	Width, Height int

	// Channels holds R, G, B and A in order.
	Channels [4]ChannelMetrics

	// RGB averages the color channels' MSE; its peak is the largest color
	// channel peak.
	RGB ChannelMetrics
}

// ComputeBCMetrics computes per-channel MSE, PSNR and maximum absolute
// error between two RGBA float images of width x height. The PSNR peak of
// a channel is the larger of 1 and the channel's maximum in reference, so
// HDR data is not scored against a [0, 1] range.
func ComputeBCMetrics(reference, decoded []float32, width, height int) (BCMetrics, error) {
	n := width * height
	if width <= 0 || height <= 0 {
		return BCMetrics{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if len(reference) < n*4 || len(decoded) < n*4 {
		return BCMetrics{}, fmt.Errorf("pipecheck: metrics need %d values, got %d and %d",
			n*4, len(reference), len(decoded))
	}

	var sum, maxErr [4]float64
	peak := [4]float64{1, 1, 1, 1}
	for i := range n {
		for c := range 4 {
			r := float64(reference[i*4+c])
			d := r - float64(decoded[i*4+c])
			sum[c] += d * d
			maxErr[c] = max(maxErr[c], math.Abs(d))
			peak[c] = max(peak[c], r)
		}
	}

	m := BCMetrics{Width: width, Height: height}
	var rgbMSE, rgbPeak, rgbMax float64
	for c := range 4 {
		mse := sum[c] / float64(n)
		m.Channels[c] = ChannelMetrics{MSE: mse, PSNR: psnr(mse, peak[c]), MaxError: maxErr[c]}
		if c < 3 {
			rgbMSE += mse / 3
			rgbPeak = max(rgbPeak, peak[c])
			rgbMax = max(rgbMax, maxErr[c])
		}
	}
	m.RGB = ChannelMetrics{MSE: rgbMSE, PSNR: psnr(rgbMSE, rgbPeak), MaxError: rgbMax}
	return m, nil
}

func psnr(mse, peak float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(peak*peak/mse)
}
