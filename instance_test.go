package pipecheck

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/gogpu/pipecheck/backend/software"
	"github.com/gogpu/pipecheck/internal/bc"
	"github.com/gogpu/pipecheck/internal/colorsci"
)

func TestNewInstance_Errors(t *testing.T) {
	if _, err := NewInstance(nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("NewInstance(nil) = %v, want ErrNoDevice", err)
	}
	dev := newTestDevice(t)
	bad := DefaultSettings()
	bad.BCQuality = 2
	if _, err := NewInstance(dev, WithSettings(bad)); err == nil {
		t.Error("NewInstance accepted quality 2")
	}
}

func TestInstance_UnavailableBCIsGated(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice(t, software.WithBCSupport(false))
	inst := newTestInstance(t, dev, 4, 4, 0.5)

	if inst.CapabilityMessage() == "" {
		t.Error("no capability message without BC support")
	}
	if !inst.SelectStage(int(StageRRT)) {
		t.Fatal("SelectStage(RRT) refused")
	}
	for _, i := range []int{int(StageBCCompress), int(StageBCDecompress)} {
		if inst.SelectStage(i) {
			t.Errorf("SelectStage(%d) accepted an unavailable stage", i)
		}
		if inst.Selected() != int(StageRRT) {
			t.Errorf("selection changed to %d", inst.Selected())
		}
		if inst.ToggleStage(i, false) {
			t.Errorf("ToggleStage(%d) accepted an unavailable stage", i)
		}
	}
	if inst.SetStageAvailable(int(StageBCCompress), true) {
		t.Error("BC stages made available on a device without BC support")
	}

	if ok, err := inst.RefreshBC(ctx); ok || err != nil {
		t.Errorf("RefreshBC = %v, %v; want false, nil", ok, err)
	}
	if err := inst.Render(ctx); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, i := range []int{int(StageBCCompress), int(StageBCDecompress)} {
		if out, _ := inst.StageOutput(i); out != inst.source {
			t.Errorf("unavailable stage %d output = %d, want source", i, out)
		}
	}
	if _, err := inst.Metrics(ctx); !errors.Is(err, ErrNoBCResult) {
		t.Errorf("Metrics = %v, want ErrNoBCResult", err)
	}
}

func TestInstance_ToggleRules(t *testing.T) {
	dev := newTestDevice(t)
	inst := newTestInstance(t, dev, 4, 4, 0.5)

	for _, locked := range []int{int(StageSource), int(StageFinalDisplay)} {
		if inst.ToggleStage(locked, false) {
			t.Errorf("ToggleStage(%d) toggled a locked stage", locked)
		}
	}
	if inst.ToggleStage(-1, false) || inst.ToggleStage(NumStages, false) {
		t.Error("ToggleStage accepted an out of range index")
	}

	if !inst.ToggleStage(int(StageBCDecompress), false) {
		t.Fatal("ToggleStage(2, false) refused")
	}
	infos := inst.Stages()
	if infos[StageBCCompress].Enabled || infos[StageBCDecompress].Enabled {
		t.Error("BC stages did not toggle together")
	}
	if !infos[StageSource].Locked || !infos[StageFinalDisplay].Locked || infos[StageRRT].Locked {
		t.Error("Locked flags wrong")
	}
	inst.ToggleStage(int(StageBCCompress), true)
	infos = inst.Stages()
	if !infos[StageBCCompress].Enabled || !infos[StageBCDecompress].Enabled {
		t.Error("BC stages did not re-enable together")
	}
}

func TestInstance_SetStageAvailable(t *testing.T) {
	dev := newTestDevice(t)
	inst := newTestInstance(t, dev, 4, 4, 0.5)

	inst.SelectStage(int(StageODT))
	if !inst.SetStageAvailable(int(StageODT), false) {
		t.Fatal("SetStageAvailable refused")
	}
	if inst.Selected() != int(StageFinalDisplay) {
		t.Errorf("selection = %d, want final display after its stage went away", inst.Selected())
	}
	if inst.SelectStage(int(StageODT)) {
		t.Error("selected an unavailable stage")
	}
	if inst.SetStageAvailable(int(StageSource), false) {
		t.Error("made a locked stage unavailable")
	}
	if err := inst.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	got, _ := inst.StageOutput(int(StageODT))
	prev, _ := inst.StageOutput(int(StageRRT))
	if got != prev {
		t.Error("unavailable stage did not pass through")
	}
}

func TestInstance_SetSourceValidation(t *testing.T) {
	dev := newTestDevice(t)
	inst, err := NewInstance(dev)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	t.Cleanup(inst.Destroy)

	if err := inst.Render(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("Render without source = %v, want ErrNoSource", err)
	}
	if err := inst.SetSource(make([]float32, 3), 1, 1, colorsci.SRGB); err == nil {
		t.Error("SetSource accepted a short buffer")
	}
	if err := inst.SetSource(nil, 0, 1, colorsci.SRGB); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("SetSource(0x1) = %v, want ErrInvalidSize", err)
	}
	if err := inst.SetSource(flatImage(1, 1, 0), 1, 1, ColorSpace(99)); err == nil {
		t.Error("SetSource accepted an unknown space")
	}
}

func TestInstance_SetSourceInvalidatesBC(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice(t)
	inst := newTestInstance(t, dev, 4, 4, 0.5)
	if _, err := inst.RefreshBC(ctx); err != nil {
		t.Fatalf("RefreshBC: %v", err)
	}
	if _, err := inst.RefreshBC(ctx); err != nil {
		t.Fatalf("RefreshBC: %v", err)
	}
	if n := inst.BCDispatches(); n != 1 {
		t.Fatalf("dispatches = %d, want 1", n)
	}
	if err := inst.SetSource(flatImage(4, 4, 0.25), 4, 4, colorsci.LinearRec709); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if ok, err := inst.RefreshBC(ctx); !ok || err != nil {
		t.Fatalf("RefreshBC after new pixels = %v, %v", ok, err)
	}
	if n := inst.BCDispatches(); n != 2 {
		t.Errorf("dispatches = %d, want 2", n)
	}
}

func TestInstance_RenderDoesNotWaitForEncode(t *testing.T) {
	ctx := context.Background()
	base := newTestDevice(t)
	dev := &trackingDevice{Device: base}
	inst := newTestInstance(t, dev, 4, 4, 0.5)

	gate := make(chan struct{})
	dev.mu.Lock()
	dev.gate = gate
	dev.mu.Unlock()
	done := inst.RefreshBCAsync(ctx)
	// Wait for the encode to park in Submit, then let later submits through.
	for {
		dev.mu.Lock()
		parked := dev.active == 1
		if parked {
			dev.gate = nil
		}
		dev.mu.Unlock()
		if parked {
			break
		}
		runtime.Gosched()
	}

	if err := inst.Render(ctx); err != nil {
		t.Fatalf("Render during encode: %v", err)
	}
	if inst.BCResult() != nil {
		t.Error("a result was uploaded before the encode finished")
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("RefreshBCAsync: %v", err)
	}
	if inst.BCResult() == nil {
		t.Error("no result after the encode finished")
	}
}

func TestInstance_RefreshBCDropsEncodeOfReplacedSource(t *testing.T) {
	ctx := context.Background()
	dev := &trackingDevice{Device: newTestDevice(t)}
	inst := newTestInstance(t, dev, 4, 4, 0.5)

	gate := make(chan struct{})
	dev.mu.Lock()
	dev.gate = gate
	dev.mu.Unlock()
	type refresh struct {
		ok  bool
		err error
	}
	done := make(chan refresh, 1)
	go func() {
		ok, err := inst.RefreshBC(ctx)
		done <- refresh{ok, err}
	}()
	for {
		dev.mu.Lock()
		parked := dev.active == 1
		if parked {
			dev.gate = nil
		}
		dev.mu.Unlock()
		if parked {
			break
		}
		runtime.Gosched()
	}

	// Same size, so the source texture is reused under the encode.
	if err := inst.SetSource(flatImage(4, 4, 0.125), 4, 4, colorsci.LinearRec709); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	close(gate)
	r := <-done
	if r.err != nil {
		t.Fatalf("RefreshBC: %v", r.err)
	}
	if r.ok {
		t.Error("RefreshBC uploaded an encode that started before SetSource")
	}
	if inst.BCResult() != nil {
		t.Error("a result was uploaded for the replaced source")
	}

	ok, err := inst.RefreshBC(ctx)
	if !ok || err != nil {
		t.Fatalf("RefreshBC after SetSource = %v, %v; want true, nil", ok, err)
	}
	if n := inst.BCDispatches(); n != 2 {
		t.Errorf("dispatches = %d, want 2", n)
	}
}

func TestInstance_Metrics(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice(t)
	s := DefaultSettings()
	s.BCFormat = bc.BC7
	inst, err := NewInstance(dev, WithSettings(s))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	t.Cleanup(inst.Destroy)
	if err := inst.SetSource(ldrGradient(8, 8), 8, 8, colorsci.SRGB); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if _, err := inst.Metrics(ctx); !errors.Is(err, ErrNoBCResult) {
		t.Errorf("Metrics before encode = %v, want ErrNoBCResult", err)
	}
	if _, err := inst.RefreshBC(ctx); err != nil {
		t.Fatalf("RefreshBC: %v", err)
	}
	if err := inst.Render(ctx); err != nil {
		t.Fatalf("Render: %v", err)
	}
	m, err := inst.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if m.Width != 8 || m.Height != 8 {
		t.Errorf("metrics size = %dx%d", m.Width, m.Height)
	}
	if m.RGB.PSNR < 25 {
		t.Errorf("BC7 RGB PSNR = %.1f dB, want > 25", m.RGB.PSNR)
	}
	if m.RGB.MaxError > 0.1 {
		t.Errorf("BC7 max error = %v", m.RGB.MaxError)
	}
}

func TestInstance_ReadPixel(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice(t)
	inst := newTestInstance(t, dev, 4, 4, 0.18)
	if _, _, err := inst.ReadPixel(ctx, int(StageRRT), 0, 0); !errors.Is(err, ErrNoSource) {
		t.Errorf("ReadPixel before render = %v, want ErrNoSource", err)
	}
	if err := inst.Render(ctx); err != nil {
		t.Fatalf("Render: %v", err)
	}
	px, st, err := inst.ReadPixel(ctx, int(StageSource), 2, 3)
	if err != nil || st != ReadOK {
		t.Fatalf("ReadPixel = %v, %v", st, err)
	}
	if px != [4]float32{0.18, 0.18, 0.18, 1} {
		t.Errorf("source pixel = %v", px)
	}
	if _, st, _ := inst.ReadPixel(ctx, int(StageSource), 4, 0); st != ReadOutOfBounds {
		t.Errorf("ReadPixel(4, 0) status = %v, want out of bounds", st)
	}
	if _, _, err := inst.ReadPixel(ctx, NumStages, 0, 0); !errors.Is(err, ErrStageIndex) {
		t.Errorf("ReadPixel(stage 10) = %v, want ErrStageIndex", err)
	}
	px, _, err = inst.ReadInspectedPixel(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ReadInspectedPixel: %v", err)
	}
	final, _ := inst.StageOutput(int(StageFinalDisplay))
	want := readAll(t, dev, final, 1, 1)
	if px[0] != want[0] {
		t.Errorf("inspected pixel = %v, want final display %v", px[0], want[0])
	}
}

func TestInstance_Destroy(t *testing.T) {
	dev := newTestDevice(t)
	inst, err := NewInstance(dev, WithSize(4, 4))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if err := inst.SetSource(flatImage(4, 4, 1), 4, 4, colorsci.LinearRec709); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if _, err := inst.RefreshBC(context.Background()); err != nil {
		t.Fatalf("RefreshBC: %v", err)
	}
	inst.Destroy()
	inst.Destroy()
	if st := dev.Stats(); st.Textures != 0 || st.Buffers != 0 || st.Programs != 0 {
		t.Errorf("resources left after Destroy: %+v", st)
	}
	if err := inst.Render(context.Background()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Render after Destroy = %v, want ErrDestroyed", err)
	}
	if err := inst.SetSource(flatImage(1, 1, 0), 1, 1, colorsci.SRGB); !errors.Is(err, ErrDestroyed) {
		t.Errorf("SetSource after Destroy = %v, want ErrDestroyed", err)
	}
}

// ldrGradient stays inside [0, 1] so unorm formats can hold it.
func ldrGradient(w, h int) []float32 {
	pix := make([]float32, w*h*4)
	for y := range h {
		for x := range w {
			o := (y*w + x) * 4
			pix[o] = float32(x) / float32(w-1)
			pix[o+1] = float32(y) / float32(h-1)
			pix[o+2] = 0.5
			pix[o+3] = 1
		}
	}
	return pix
}
