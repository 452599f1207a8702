package pipecheck

import (
	"errors"
	"math"
	"testing"
)

func TestComputeBCMetrics_Identical(t *testing.T) {
	img := gradientImage(4, 4)
	m, err := ComputeBCMetrics(img, img, 4, 4)
	if err != nil {
		t.Fatalf("ComputeBCMetrics: %v", err)
	}
	for c, ch := range m.Channels {
		if ch.MSE != 0 || ch.MaxError != 0 || !math.IsInf(ch.PSNR, 1) {
			t.Errorf("channel %d = %+v, want zero error and +Inf PSNR", c, ch)
		}
	}
	if !math.IsInf(m.RGB.PSNR, 1) {
		t.Errorf("RGB PSNR = %v, want +Inf", m.RGB.PSNR)
	}
}

func TestComputeBCMetrics_KnownError(t *testing.T) {
	ref := flatImage(2, 2, 0.5)
	dec := flatImage(2, 2, 0.5)
	// Red off by 0.1 everywhere; green off by 0.2 in one pixel.
	for i := 0; i < len(dec); i += 4 {
		dec[i] = 0.6
	}
	dec[1] = 0.7

	m, err := ComputeBCMetrics(ref, dec, 2, 2)
	if err != nil {
		t.Fatalf("ComputeBCMetrics: %v", err)
	}
	const eps = 1e-6
	if r := m.Channels[0]; math.Abs(r.MSE-0.01) > eps || math.Abs(r.MaxError-0.1) > eps {
		t.Errorf("red = %+v, want MSE 0.01 max 0.1", r)
	}
	if math.Abs(m.Channels[0].PSNR-20) > 1e-3 {
		t.Errorf("red PSNR = %v, want 20 dB", m.Channels[0].PSNR)
	}
	if g := m.Channels[1]; math.Abs(g.MSE-0.01) > eps || math.Abs(g.MaxError-0.2) > eps {
		t.Errorf("green = %+v, want MSE 0.01 max 0.2", g)
	}
	if b := m.Channels[2]; b.MSE != 0 {
		t.Errorf("blue MSE = %v, want 0", b.MSE)
	}
	if math.Abs(m.RGB.MSE-0.02/3) > eps || math.Abs(m.RGB.MaxError-0.2) > eps {
		t.Errorf("RGB = %+v", m.RGB)
	}
}

func TestComputeBCMetrics_HDRPeak(t *testing.T) {
	ref := flatImage(1, 2, 1)
	ref[0] = 8
	dec := append([]float32(nil), ref...)
	dec[0] = 7

	m, err := ComputeBCMetrics(ref, dec, 1, 2)
	if err != nil {
		t.Fatalf("ComputeBCMetrics: %v", err)
	}
	// MSE 0.5 against a peak of 8.
	want := 10 * math.Log10(64/0.5)
	if math.Abs(m.Channels[0].PSNR-want) > 1e-3 {
		t.Errorf("HDR PSNR = %v, want %v", m.Channels[0].PSNR, want)
	}
	if m.RGB.PSNR <= m.Channels[0].PSNR {
		t.Errorf("RGB PSNR %v not above red PSNR %v", m.RGB.PSNR, m.Channels[0].PSNR)
	}
}

func TestComputeBCMetrics_Errors(t *testing.T) {
	if _, err := ComputeBCMetrics(nil, nil, 0, 4); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("0x4 = %v, want ErrInvalidSize", err)
	}
	if _, err := ComputeBCMetrics(make([]float32, 16), make([]float32, 12), 2, 2); err == nil {
		t.Error("short decoded slice accepted")
	}
}
