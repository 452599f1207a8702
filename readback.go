package pipecheck

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gogpu/pipecheck/gpucore"
)

// ReadStatus tells what a ReadPixel call did.
type ReadStatus int

const (
	// ReadOK means the pixel was read.
	ReadOK ReadStatus = iota
	// ReadSkipped means another read was in flight; the request was
	// dropped, not queued.
	ReadSkipped
	// ReadOutOfBounds means the coordinates were outside the texture and
	// no GPU work was issued.
	ReadOutOfBounds
)

func (s ReadStatus) String() string {
	switch s {
	case ReadOK:
		return "ok"
	case ReadSkipped:
		return "skipped"
	case ReadOutOfBounds:
		return "out of bounds"
	}
	return "unknown"
}

// PixelReadback reads single pixels for diagnostics. At most one read is
// in flight; concurrent requests are dropped.
type PixelReadback struct {
	dev      gpucore.Device
	timeout  time.Duration
	inFlight atomic.Bool
	issued   atomic.Int64
}

// NewPixelReadback returns a readback on dev. A positive timeout bounds
// every read.
func NewPixelReadback(dev gpucore.Device, timeout time.Duration) *PixelReadback {
	return &PixelReadback{dev: dev, timeout: timeout}
}

// Issued returns the number of reads that reached the device.
func (p *PixelReadback) Issued() int64 { return p.issued.Load() }

// InFlight reports whether a read is pending.
func (p *PixelReadback) InFlight() bool { return p.inFlight.Load() }

// ReadPixel returns the RGBA value at (x, y) of tex, a width x height
// texture.
func (p *PixelReadback) ReadPixel(ctx context.Context, tex gpucore.TextureID, width, height uint32, x, y int) ([4]float32, ReadStatus, error) {
	var px [4]float32
	if x < 0 || y < 0 || x >= int(width) || y >= int(height) {
		return px, ReadOutOfBounds, nil
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return px, ReadSkipped, nil
	}
	defer p.inFlight.Store(false)

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	p.issued.Add(1)
	v, err := p.dev.ReadTexture(ctx, tex, uint32(x), uint32(y), 1, 1)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			Logger().Warn("pipecheck: readback timeout", "x", x, "y", y, "timeout", p.timeout)
		}
		return px, ReadOK, err
	}
	copy(px[:], v)
	return px, ReadOK, nil
}
