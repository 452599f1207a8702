package gpucore

import (
	"context"
	"fmt"
	"structs"

	"honnef.co/go/safeish"

	"github.com/gogpu/pipecheck/internal/bc"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ProgramID is an opaque handle to a compiled pipeline.
type ProgramID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageMapRead BufferUsage = 1 << 0
	BufferUsageCopySrc BufferUsage = 1 << 2
	BufferUsageCopyDst BufferUsage = 1 << 3
	BufferUsageUniform BufferUsage = 1 << 6
	BufferUsageStorage BufferUsage = 1 << 7
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA32Float is 32-bit float RGBA.
	TextureFormatRGBA32Float TextureFormat = iota + 1

	// TextureFormatRGBA16Float is 16-bit float RGBA, the render target
	// format of every stage.
	TextureFormatRGBA16Float

	TextureFormatBC1RGBAUnorm
	TextureFormatBC2RGBAUnorm
	TextureFormatBC3RGBAUnorm
	TextureFormatBC4RUnorm
	TextureFormatBC5RGUnorm
	TextureFormatBC6HRGBUfloat
	TextureFormatBC7RGBAUnorm
)

var textureFormatNames = [...]string{
	TextureFormatRGBA32Float:   "rgba32float",
	TextureFormatRGBA16Float:   "rgba16float",
	TextureFormatBC1RGBAUnorm:  "bc1-rgba-unorm",
	TextureFormatBC2RGBAUnorm:  "bc2-rgba-unorm",
	TextureFormatBC3RGBAUnorm:  "bc3-rgba-unorm",
	TextureFormatBC4RUnorm:     "bc4-r-unorm",
	TextureFormatBC5RGUnorm:    "bc5-rg-unorm",
	TextureFormatBC6HRGBUfloat: "bc6h-rgb-ufloat",
	TextureFormatBC7RGBAUnorm:  "bc7-rgba-unorm",
}

func (f TextureFormat) String() string {
	if int(f) < len(textureFormatNames) && textureFormatNames[f] != "" {
		return textureFormatNames[f]
	}
	return fmt.Sprintf("TextureFormat(%d)", uint32(f))
}

// IsCompressed reports whether f is a BC block format.
func (f TextureFormat) IsCompressed() bool {
	return f >= TextureFormatBC1RGBAUnorm && f <= TextureFormatBC7RGBAUnorm
}

// BlockFormat returns the block codec of a compressed format, or
// bc.FormatNone.
func (f TextureFormat) BlockFormat() bc.Format {
	if !f.IsCompressed() {
		return bc.FormatNone
	}
	return bc.Format(f-TextureFormatBC1RGBAUnorm) + bc.BC1
}

// BytesPerPixel returns the texel size of an uncompressed format, or 0.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatRGBA32Float:
		return 16
	case TextureFormatRGBA16Float:
		return 8
	}
	return 0
}

// CompressedFormat returns the texture format sampling blocks of f.
func CompressedFormat(f bc.Format) TextureFormat {
	if !f.Valid() {
		return 0
	}
	return TextureFormat(f-bc.BC1) + TextureFormatBC1RGBAUnorm
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	TextureUsageCopySrc          TextureUsage = 1 << 0
	TextureUsageCopyDst          TextureUsage = 1 << 1
	TextureUsageTextureBinding   TextureUsage = 1 << 2
	TextureUsageStorageBinding   TextureUsage = 1 << 3
	TextureUsageRenderAttachment TextureUsage = 1 << 4
)

// TextureDescriptor describes a 2D texture.
type TextureDescriptor struct {
	// Label is an optional debug label.
	Label string

	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
}

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Size in bytes.
	Size  uint64
	Usage BufferUsage
}

// Capabilities reports what a device supports.
type Capabilities struct {
	// Backend names the implementation ("native", "software").
	Backend string

	// DeviceName is the adapter name reported by the driver.
	DeviceName string

	// TextureCompressionBC reports whether BC textures can be sampled.
	TextureCompressionBC bool

	// MaxTextureDimension is the largest supported texture side.
	MaxTextureDimension uint32
}

// Bindings lists the resources bound to one pass. The uniform buffer is
// binding 0, textures follow from binding 1, the storage buffer (compute
// only) comes last.
type Bindings struct {
	Uniform  BufferID
	Textures []TextureID
	Storage  BufferID
}

// Device creates resources and records work.
type Device interface {
	// Name returns the backend identifier.
	Name() string

	// Capabilities reports the device limits and features.
	Capabilities() Capabilities

	CreateTexture(desc *TextureDescriptor) (TextureID, error)
	// WriteTexture replaces the whole texture. Uncompressed data is tightly
	// packed rows of texels; compressed data is rows of blocks.
	WriteTexture(id TextureID, data []byte) error
	DestroyTexture(id TextureID)

	CreateBuffer(desc *BufferDescriptor) (BufferID, error)
	WriteBuffer(id BufferID, offset uint64, data []byte) error
	DestroyBuffer(id BufferID)

	// CreateProgram compiles a pipeline. A compile failure returns an
	// error and no program.
	CreateProgram(desc *ProgramDescriptor) (ProgramID, error)
	DestroyProgram(id ProgramID)

	// NewEncoder starts recording a command buffer.
	NewEncoder(label string) (Encoder, error)

	// ReadTexture copies a region of an uncompressed texture back as
	// RGBA float32 values.
	ReadTexture(ctx context.Context, id TextureID, x, y, w, h uint32) ([]float32, error)

	// ReadBuffer copies size bytes starting at offset back to the host.
	ReadBuffer(ctx context.Context, id BufferID, offset, size uint64) ([]byte, error)

	// Close releases every resource. The device must not be used after.
	Close()
}

// Encoder records passes for a single submission.
type Encoder interface {
	// Draw runs a full-screen render program into target.
	Draw(p ProgramID, target TextureID, b Bindings) error

	// Dispatch runs a compute program over groupsX x groupsY workgroups.
	Dispatch(p ProgramID, groupsX, groupsY uint32, b Bindings) error

	// Submit submits all recorded work and waits for it to complete.
	Submit(ctx context.Context) error

	// Discard drops the recorded work.
	Discard()
}

// EncodeUniforms is the uniform block of the block-compression kernels.
type EncodeUniforms struct {
	_ structs.HostLayout

	Width        uint32
	Height       uint32
	BlocksPerRow uint32
	Iterations   uint32
}

// Bytes returns the std140 bytes of u.
func (u *EncodeUniforms) Bytes() []byte {
	return append([]byte(nil), safeish.AsBytes(u)...)
}

// DeltaUniforms is the uniform block of the delta pass.
type DeltaUniforms struct {
	_ structs.HostLayout

	Amplification float32
	Perceptual    uint32
	_             [2]uint32
}

// Bytes returns the std140 bytes of u.
func (u *DeltaUniforms) Bytes() []byte {
	return append([]byte(nil), safeish.AsBytes(u)...)
}

// SampleUniforms is the uniform block of the block-sampling pass. Width
// and Height are the image size inside the block-aligned allocation.
type SampleUniforms struct {
	_      structs.HostLayout
	Width  float32
	Height float32
	_      [2]uint32
}

// Bytes returns the std140 bytes of u.
func (u *SampleUniforms) Bytes() []byte {
	return append([]byte(nil), safeish.AsBytes(u)...)
}
