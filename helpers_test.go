package pipecheck

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"honnef.co/go/safeish"

	"github.com/gogpu/pipecheck/backend/software"
	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/colorsci"
)

func newTestDevice(t *testing.T, opts ...software.Option) *software.Device {
	t.Helper()
	dev := software.New(opts...)
	t.Cleanup(dev.Close)
	return dev
}

func flatImage(w, h int, v float32) []float32 {
	pix := make([]float32, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 1
	}
	return pix
}

// gradientImage varies every channel so each stage visibly changes it.
func gradientImage(w, h int) []float32 {
	pix := make([]float32, w*h*4)
	for y := range h {
		for x := range w {
			o := (y*w + x) * 4
			pix[o] = float32(x+1) / float32(w)
			pix[o+1] = float32(y+1) / float32(h)
			pix[o+2] = float32(x+y+1) / float32(w+h) * 2
			pix[o+3] = 1
		}
	}
	return pix
}

func newTestInstance(t *testing.T, dev gpucore.Device, w, h int, v float32, opts ...InstanceOption) *Instance {
	t.Helper()
	inst, err := NewInstance(dev, opts...)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	t.Cleanup(inst.Destroy)
	if err := inst.SetSource(flatImage(w, h, v), uint32(w), uint32(h), colorsci.LinearRec709); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	return inst
}

func readAll(t *testing.T, dev gpucore.Device, id gpucore.TextureID, w, h uint32) []float32 {
	t.Helper()
	pix, err := dev.ReadTexture(context.Background(), id, 0, 0, w, h)
	if err != nil {
		t.Fatalf("ReadTexture(%d): %v", id, err)
	}
	return pix
}

func float32Bytes(pix []float32) []byte {
	return safeish.SliceCast[[]byte](pix)
}

func near(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

// trackingDevice wraps a device to observe submissions and reads.
type trackingDevice struct {
	gpucore.Device

	mu        sync.Mutex
	active    int
	maxActive int
	submits   int

	// blockRead, when set, stalls ReadTexture until it is closed.
	blockRead   chan struct{}
	readStarted chan struct{}
	reads       atomic.Int32
	// gate, when set, stalls every Submit until it is closed.
	gate chan struct{}
	// readBufferErr, when set, fails every ReadBuffer.
	readBufferErr error
}

func (d *trackingDevice) NewEncoder(label string) (gpucore.Encoder, error) {
	enc, err := d.Device.NewEncoder(label)
	if err != nil {
		return nil, err
	}
	return &trackingEncoder{Encoder: enc, d: d}, nil
}

func (d *trackingDevice) ReadTexture(ctx context.Context, id gpucore.TextureID, x, y, w, h uint32) ([]float32, error) {
	d.reads.Add(1)
	if d.blockRead != nil {
		if d.readStarted != nil {
			d.readStarted <- struct{}{}
		}
		select {
		case <-d.blockRead:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.Device.ReadTexture(ctx, id, x, y, w, h)
}

func (d *trackingDevice) ReadBuffer(ctx context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	err := d.readBufferErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.Device.ReadBuffer(ctx, id, offset, size)
}

func (d *trackingDevice) maxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

type trackingEncoder struct {
	gpucore.Encoder
	d *trackingDevice
}

func (e *trackingEncoder) Submit(ctx context.Context) error {
	d := e.d
	d.mu.Lock()
	d.active++
	d.submits++
	d.maxActive = max(d.maxActive, d.active)
	gate := d.gate
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}()
	if gate != nil {
		<-gate
	}
	return e.Encoder.Submit(ctx)
}
