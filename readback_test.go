package pipecheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/pipecheck/gpucore"
)

func newReadbackTexture(t *testing.T, dev gpucore.Device) gpucore.TextureID {
	t.Helper()
	id, err := dev.CreateTexture(&gpucore.TextureDescriptor{
		Label:  "readback",
		Width:  2,
		Height: 2,
		Format: gpucore.TextureFormatRGBA32Float,
		Usage:  gpucore.TextureUsageCopyDst | gpucore.TextureUsageCopySrc | gpucore.TextureUsageTextureBinding,
	})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	pix := []float32{
		0, 0, 0, 1, 1, 0, 0, 1,
		0, 1, 0, 1, 0, 0, 1, 1,
	}
	if err := dev.WriteTexture(id, float32Bytes(pix)); err != nil {
		t.Fatalf("WriteTexture: %v", err)
	}
	return id
}

func TestReadStatus_String(t *testing.T) {
	for st, want := range map[ReadStatus]string{
		ReadOK:          "ok",
		ReadSkipped:     "skipped",
		ReadOutOfBounds: "out of bounds",
		ReadStatus(9):   "unknown",
	} {
		if got := st.String(); got != want {
			t.Errorf("ReadStatus(%d) = %q, want %q", int(st), got, want)
		}
	}
}

func TestPixelReadback_Read(t *testing.T) {
	dev := newTestDevice(t)
	tex := newReadbackTexture(t, dev)
	rb := NewPixelReadback(dev, time.Second)

	px, st, err := rb.ReadPixel(context.Background(), tex, 2, 2, 1, 1)
	if err != nil || st != ReadOK {
		t.Fatalf("ReadPixel = %v, %v", st, err)
	}
	if px != [4]float32{0, 0, 1, 1} {
		t.Errorf("pixel (1, 1) = %v", px)
	}
	if rb.InFlight() {
		t.Error("read still marked in flight")
	}
}

func TestPixelReadback_OutOfBoundsIssuesNothing(t *testing.T) {
	dev := &trackingDevice{Device: newTestDevice(t)}
	tex := newReadbackTexture(t, dev)
	rb := NewPixelReadback(dev, 0)

	for _, c := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		_, st, err := rb.ReadPixel(context.Background(), tex, 2, 2, c[0], c[1])
		if err != nil || st != ReadOutOfBounds {
			t.Errorf("ReadPixel(%d, %d) = %v, %v", c[0], c[1], st, err)
		}
	}
	if rb.Issued() != 0 || dev.reads.Load() != 0 {
		t.Errorf("out of bounds reads reached the device: issued %d, reads %d", rb.Issued(), dev.reads.Load())
	}
}

func TestPixelReadback_DropsWhileBusy(t *testing.T) {
	dev := &trackingDevice{Device: newTestDevice(t)}
	tex := newReadbackTexture(t, dev)
	dev.blockRead = make(chan struct{})
	dev.readStarted = make(chan struct{}, 1)
	rb := NewPixelReadback(dev, 0)

	type result struct {
		st  ReadStatus
		err error
	}
	first := make(chan result, 1)
	go func() {
		_, st, err := rb.ReadPixel(context.Background(), tex, 2, 2, 0, 0)
		first <- result{st, err}
	}()
	<-dev.readStarted

	for range 5 {
		_, st, err := rb.ReadPixel(context.Background(), tex, 2, 2, 1, 0)
		if err != nil || st != ReadSkipped {
			t.Fatalf("ReadPixel while busy = %v, %v; want skipped", st, err)
		}
	}
	close(dev.blockRead)
	if r := <-first; r.err != nil || r.st != ReadOK {
		t.Fatalf("first read = %v, %v", r.st, r.err)
	}
	if got := dev.reads.Load(); got != 1 {
		t.Errorf("device reads = %d, want 1", got)
	}

	// Dropped requests were not queued; a new one goes through.
	if _, st, err := rb.ReadPixel(context.Background(), tex, 2, 2, 1, 0); err != nil || st != ReadOK {
		t.Errorf("ReadPixel after completion = %v, %v", st, err)
	}
	if rb.Issued() != 2 {
		t.Errorf("issued = %d, want 2", rb.Issued())
	}
}

func TestPixelReadback_Timeout(t *testing.T) {
	dev := &trackingDevice{Device: newTestDevice(t)}
	tex := newReadbackTexture(t, dev)
	dev.blockRead = make(chan struct{})
	defer close(dev.blockRead)
	rb := NewPixelReadback(dev, 10*time.Millisecond)

	_, _, err := rb.ReadPixel(context.Background(), tex, 2, 2, 0, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ReadPixel = %v, want deadline exceeded", err)
	}
	if rb.InFlight() {
		t.Error("timed out read still in flight")
	}
}
