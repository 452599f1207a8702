//go:build !nogpu

package native

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/pipecheck/backend"
	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
)

// newNoopDevice wraps a noop hal device.
func newNoopDevice(t *testing.T, bcSupport bool) *Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d := newDevice(openDev.Device, openDev.Queue, gpucore.Capabilities{
		Backend:              backend.BackendNative,
		DeviceName:           "noop",
		TextureCompressionBC: bcSupport,
		MaxTextureDimension:  1024,
	})
	d.instance = instance
	t.Cleanup(d.Close)
	return d
}

func TestRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendNative) {
		t.Fatal("native backend not registered")
	}
}

func TestCapabilities(t *testing.T) {
	d := newNoopDevice(t, true)
	if d.Name() != backend.BackendNative {
		t.Errorf("Name() = %q", d.Name())
	}
	c := d.Capabilities()
	if !c.TextureCompressionBC || c.MaxTextureDimension != 1024 || c.DeviceName != "noop" {
		t.Errorf("Capabilities() = %+v", c)
	}
}

func TestCreateTextureLimits(t *testing.T) {
	d := newNoopDevice(t, false)
	tests := []struct {
		name string
		desc *gpucore.TextureDescriptor
	}{
		{"nil", nil},
		{"zero width", &gpucore.TextureDescriptor{Width: 0, Height: 4, Format: gpucore.TextureFormatRGBA16Float}},
		{"too large", &gpucore.TextureDescriptor{Width: 2048, Height: 4, Format: gpucore.TextureFormatRGBA16Float}},
		{"bc unsupported", &gpucore.TextureDescriptor{Width: 4, Height: 4, Format: gpucore.TextureFormatBC7RGBAUnorm}},
		{"unknown format", &gpucore.TextureDescriptor{Width: 4, Height: 4, Format: gpucore.TextureFormat(99)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.CreateTexture(tt.desc); err == nil {
				t.Error("expected error")
			}
		})
	}
	var unsupported = []*gpucore.TextureDescriptor{tests[3].desc, tests[4].desc}
	for _, desc := range unsupported {
		if _, err := d.CreateTexture(desc); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%v: err = %v, want ErrUnsupported", desc.Format, err)
		}
	}
}

func TestTextureUploadSizes(t *testing.T) {
	d := newNoopDevice(t, true)
	tests := []struct {
		format        gpucore.TextureFormat
		width, height uint32
		want          int
	}{
		{gpucore.TextureFormatRGBA32Float, 3, 2, 3 * 2 * 16},
		{gpucore.TextureFormatRGBA16Float, 3, 2, 3 * 2 * 8},
		{gpucore.TextureFormatBC1RGBAUnorm, 5, 3, 2 * 1 * 8},
		{gpucore.TextureFormatBC7RGBAUnorm, 8, 8, 2 * 2 * 16},
		{gpucore.TextureFormatBC6HRGBUfloat, 1, 1, 16},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			id, err := d.CreateTexture(&gpucore.TextureDescriptor{
				Width: tt.width, Height: tt.height, Format: tt.format,
			})
			if err != nil {
				t.Fatalf("CreateTexture: %v", err)
			}
			tex, _ := d.texture(id)
			if got := tex.byteSize(); got != tt.want {
				t.Errorf("byteSize() = %d, want %d", got, tt.want)
			}
			if tt.format.IsCompressed() && (tex.width%4 != 0 || tex.height%4 != 0) {
				t.Errorf("block texture allocated at %dx%d", tex.width, tex.height)
			}
			if err := d.WriteTexture(id, make([]byte, tt.want)); err != nil {
				t.Errorf("WriteTexture: %v", err)
			}
			if err := d.WriteTexture(id, make([]byte, tt.want+1)); err == nil {
				t.Error("expected size mismatch error")
			}
		})
	}
}

func TestBufferBounds(t *testing.T) {
	d := newNoopDevice(t, true)
	id, err := d.CreateBuffer(&gpucore.BufferDescriptor{Label: "u", Size: 16, Usage: gpucore.BufferUsageUniform})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if err := d.WriteBuffer(id, 8, make([]byte, 8)); err != nil {
		t.Errorf("in-bounds write: %v", err)
	}
	if err := d.WriteBuffer(id, 12, make([]byte, 8)); err == nil {
		t.Error("expected overflow error")
	}
	if _, err := d.ReadBuffer(context.Background(), id, 8, 16); err == nil {
		t.Error("expected read overflow error")
	}
	if _, err := d.CreateBuffer(&gpucore.BufferDescriptor{Size: 0}); err == nil {
		t.Error("expected error for empty buffer")
	}
	d.DestroyBuffer(id)
	if err := d.WriteBuffer(id, 0, []byte{1}); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("write after destroy: %v", err)
	}
}

func TestReadTextureRegion(t *testing.T) {
	d := newNoopDevice(t, true)
	id, err := d.CreateTexture(&gpucore.TextureDescriptor{Width: 4, Height: 4, Format: gpucore.TextureFormatRGBA16Float})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReadTexture(context.Background(), id, 3, 3, 2, 1); err == nil {
		t.Error("expected out of bounds error")
	}
	bcID, err := d.CreateTexture(&gpucore.TextureDescriptor{Width: 4, Height: 4, Format: gpucore.TextureFormatBC1RGBAUnorm})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReadTexture(context.Background(), bcID, 0, 0, 1, 1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("compressed read: err = %v, want ErrUnsupported", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.ReadTexture(ctx, id, 0, 0, 1, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled read: err = %v", err)
	}
}

func TestCreateProgramRejectsBadSource(t *testing.T) {
	d := newNoopDevice(t, true)
	_, err := d.CreateProgram(&gpucore.ProgramDescriptor{
		Kind:   gpucore.ProgramColorGrade,
		Source: "this is not wgsl",
	})
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !strings.Contains(err.Error(), "compile") {
		t.Errorf("error %q does not mention compilation", err)
	}
	if _, err := d.CreateProgram(&gpucore.ProgramDescriptor{Kind: gpucore.ProgramBCEncode}); err == nil {
		t.Error("expected error for encode program without a format")
	}
}

func TestCreateProgramWithoutBC(t *testing.T) {
	d := newNoopDevice(t, false)
	_, err := d.CreateProgram(&gpucore.ProgramDescriptor{Kind: gpucore.ProgramBCSample, Format: bc.BC1})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestProgramSourceDefaults(t *testing.T) {
	src, entry, err := programSource(&gpucore.ProgramDescriptor{Kind: gpucore.ProgramBCEncode, Format: bc.BC6H})
	if err != nil {
		t.Fatal(err)
	}
	if entry != "encode_bc6h" || !strings.Contains(src, "fn encode_bc6h(") {
		t.Errorf("entry = %q", entry)
	}
	src, entry, err = programSource(&gpucore.ProgramDescriptor{Kind: gpucore.ProgramRRT})
	if err != nil {
		t.Fatal(err)
	}
	if entry != "fs_main" || !strings.Contains(src, "fn vs_main") {
		t.Errorf("render source missing entry points (entry %q)", entry)
	}
	src, _, _ = programSource(&gpucore.ProgramDescriptor{Kind: gpucore.ProgramRRT, Source: "custom"})
	if src != "custom" {
		t.Errorf("explicit source replaced: %q", src)
	}
}

func TestBindLayoutEntries(t *testing.T) {
	tests := []struct {
		kind gpucore.ProgramKind
		want int
	}{
		{gpucore.ProgramColorGrade, 2},
		{gpucore.ProgramDelta, 3},
		{gpucore.ProgramBCEncode, 3},
	}
	for _, tt := range tests {
		entries := bindLayoutEntries(tt.kind.Layout())
		if len(entries) != tt.want {
			t.Errorf("%s: %d entries, want %d", tt.kind, len(entries), tt.want)
			continue
		}
		for i, e := range entries {
			if e.Binding != uint32(i) {
				t.Errorf("%s: entry %d has binding %d", tt.kind, i, e.Binding)
			}
		}
		last := entries[len(entries)-1]
		if tt.kind == gpucore.ProgramBCEncode && (last.Buffer == nil || last.Buffer.Type != gputypes.BufferBindingTypeStorage) {
			t.Errorf("%s: last binding is not a storage buffer", tt.kind)
		}
	}
}

func TestEncoderMisuse(t *testing.T) {
	d := newNoopDevice(t, true)
	enc, err := d.NewEncoder("misuse")
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if err := enc.Draw(42, 1, gpucore.Bindings{}); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("unknown program: %v", err)
	}
	enc.Discard()
	if err := enc.Submit(context.Background()); err == nil {
		t.Error("expected error submitting a discarded encoder")
	}
	enc.Discard()
}

func TestCloseIsIdempotent(t *testing.T) {
	d := newNoopDevice(t, true)
	if _, err := d.CreateBuffer(&gpucore.BufferDescriptor{Size: 4}); err != nil {
		t.Fatal(err)
	}
	d.Close()
	d.Close()
	if _, err := d.CreateBuffer(&gpucore.BufferDescriptor{Size: 4}); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateBuffer after Close: %v", err)
	}
	if _, err := d.NewEncoder("closed"); !errors.Is(err, ErrClosed) {
		t.Errorf("NewEncoder after Close: %v", err)
	}
}

func TestNewFromProviderRejectsPlainProvider(t *testing.T) {
	if _, err := NewFromProvider(nil, true); err == nil {
		t.Error("expected error for provider without HAL access")
	}
}
