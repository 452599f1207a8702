package pipecheck

import (
	"context"
	"testing"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/bc"
	"github.com/gogpu/pipecheck/internal/colorsci"
)

func TestUploadBCData_Identity(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice(t)
	inst := newTestInstance(t, dev, 4, 4, 0.5)
	ds := inst.decompress

	if ok, err := ds.UploadBCData(nil); ok || err != nil {
		t.Errorf("UploadBCData(nil) = %v, %v; want false, nil", ok, err)
	}
	res, err := inst.compress.RunEncode(ctx, inst.source, EncodeKey{Format: bc.BC1, Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("RunEncode: %v", err)
	}
	if ok, err := ds.UploadBCData(res); !ok || err != nil {
		t.Fatalf("first UploadBCData = %v, %v; want true, nil", ok, err)
	}
	tex := ds.bcTex
	if ok, _ := ds.UploadBCData(res); ok {
		t.Error("re-uploading the same result reported true")
	}
	if ds.bcTex != tex {
		t.Error("re-uploading the same result replaced the texture")
	}

	// Same format and size reuse the texture; a new format replaces it.
	res2, err := inst.compress.RunEncode(ctx, inst.source, EncodeKey{Format: bc.BC1, Quality: 1, Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("RunEncode: %v", err)
	}
	if ok, _ := ds.UploadBCData(res2); !ok || ds.bcTex != tex {
		t.Errorf("same-format upload: ok=%v, texture %d -> %d", ok, tex, ds.bcTex)
	}
	res3, err := inst.compress.RunEncode(ctx, inst.source, EncodeKey{Format: bc.BC7, Width: 4, Height: 4})
	if err != nil {
		t.Fatalf("RunEncode: %v", err)
	}
	if ok, _ := ds.UploadBCData(res3); !ok || ds.bcTex == tex {
		t.Errorf("format change: ok=%v, texture kept=%v", ok, ds.bcTex == tex)
	}
	if ds.Uploaded() != res3 {
		t.Error("Uploaded() is not the last result")
	}
}

func TestBC6H_MidGrayRoundTrip(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice(t)
	settings := DefaultSettings()
	settings.BCFormat = bc.BC6H
	inst := newTestInstance(t, dev, 4, 4, 0.18, WithSettings(settings))

	if ok, err := inst.RefreshBC(ctx); !ok || err != nil {
		t.Fatalf("RefreshBC = %v, %v; want true, nil", ok, err)
	}
	if err := inst.Render(ctx); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out, _ := inst.StageOutput(int(StageBCDecompress))
	if out == inst.source {
		t.Fatal("decompress stage passed the source through")
	}
	pix := readAll(t, dev, out, 4, 4)
	for i := 0; i < len(pix); i += 4 {
		for c := range 3 {
			if !near(pix[i+c], 0.18, 0.01) {
				t.Fatalf("texel %d channel %d = %v, want 0.18 +- 0.01", i/4, c, pix[i+c])
			}
		}
	}
}

func TestDecompress_EveryFormatDecodes(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice(t)
	for _, f := range bc.Formats() {
		t.Run(f.String(), func(t *testing.T) {
			settings := DefaultSettings()
			settings.BCFormat = f
			inst := newTestInstance(t, dev, 8, 4, 0.5, WithSettings(settings))
			if _, err := inst.RefreshBC(ctx); err != nil {
				t.Fatalf("RefreshBC: %v", err)
			}
			if err := inst.Render(ctx); err != nil {
				t.Fatalf("Render: %v", err)
			}
			out, _ := inst.StageOutput(int(StageBCDecompress))
			pix := readAll(t, dev, out, 8, 4)
			if !near(pix[0], 0.5, 0.02) {
				t.Errorf("decoded red = %v, want about 0.5", pix[0])
			}
		})
	}
}

func TestDelta_IdenticalIsZero(t *testing.T) {
	dev := newTestDevice(t)
	inst := newTestInstance(t, dev, 4, 4, 0.5)
	ds := inst.decompress
	if err := ds.ensureDelta(); err != nil {
		t.Fatalf("ensureDelta: %v", err)
	}
	for _, perceptual := range []bool{false, true} {
		enc, err := dev.NewEncoder("delta")
		if err != nil {
			t.Fatalf("NewEncoder: %v", err)
		}
		u := gpucore.DeltaUniforms{Amplification: 100}
		if perceptual {
			u.Perceptual = 1
		}
		if err := ds.deltaUniform.write(u.Bytes()); err != nil {
			t.Fatalf("write uniform: %v", err)
		}
		err = enc.Draw(ds.deltaProg, ds.deltaTex, gpucore.Bindings{
			Uniform:  ds.deltaUniform.id,
			Textures: []gpucore.TextureID{inst.source, inst.source},
		})
		if err != nil {
			t.Fatalf("Draw: %v", err)
		}
		if err := enc.Submit(context.Background()); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		pix := readAll(t, dev, ds.deltaTex, 4, 4)
		for i := 0; i < len(pix); i += 4 {
			if pix[i] != 0 || pix[i+1] != 0 || pix[i+2] != 0 {
				t.Fatalf("perceptual=%v: delta of identical data = %v", perceptual, pix[i:i+3])
			}
		}
	}
}

func TestDelta_PerceptualFollowsEffectiveSpace(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		space  ColorSpace
		format BCFormat
		want   bool
	}{
		{"linear input", colorsci.LinearRec709, bc.BC7, true},
		{"encoded input", colorsci.SRGB, bc.BC7, false},
		{"encoded input linearized for BC6H", colorsci.SRGB, bc.BC6H, true},
		{"PQ input linearized for BC6H", colorsci.PQRec2020, bc.BC6H, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newTestDevice(t)
			s := DefaultSettings()
			s.BCFormat = tt.format
			s.DeltaEnabled = true
			inst, err := NewInstance(dev, WithSettings(s))
			if err != nil {
				t.Fatalf("NewInstance: %v", err)
			}
			t.Cleanup(inst.Destroy)
			if err := inst.SetSource(flatImage(4, 4, 0.4), 4, 4, tt.space); err != nil {
				t.Fatalf("SetSource: %v", err)
			}
			if _, err := inst.RefreshBC(ctx); err != nil {
				t.Fatalf("RefreshBC: %v", err)
			}
			if err := inst.Render(ctx); err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got := inst.decompress.Perceptual(); got != tt.want {
				t.Errorf("Perceptual() = %v, want %v", got, tt.want)
			}
			if !inst.SelectStage(int(StageBCDecompress)) {
				t.Fatal("SelectStage(2) refused")
			}
			if got := inst.InspectedTexture(); got != inst.decompress.DeltaOutput() || got == gpucore.InvalidID {
				t.Errorf("InspectedTexture() = %d, want the delta texture", got)
			}
		})
	}
}

func TestDelta_ReferenceIsLinearIntermediate(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice(t)
	s := DefaultSettings()
	s.BCFormat = bc.BC6H
	s.DeltaEnabled = true
	s.DeltaAmplification = 1
	inst, err := NewInstance(dev, WithSettings(s))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	t.Cleanup(inst.Destroy)
	if err := inst.SetSource(flatImage(4, 4, 0.5), 4, 4, colorsci.SRGB); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if _, err := inst.RefreshBC(ctx); err != nil {
		t.Fatalf("RefreshBC: %v", err)
	}
	if err := inst.Render(ctx); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := inst.EffectiveInputSpace(); got != colorsci.LinearRec709 {
		t.Errorf("EffectiveInputSpace() = %v, want Linear Rec.709", got)
	}
	// Against the encoded source (0.5) the error would be about 0.3; the
	// linear reference leaves only the compression error.
	pix := readAll(t, dev, inst.decompress.DeltaOutput(), 4, 4)
	if pix[0] > 0.02 {
		t.Errorf("delta = %v, want compression error only", pix[0])
	}
}
