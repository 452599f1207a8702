//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipecheck/backend"
	"github.com/gogpu/pipecheck/gpucore"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	backend.Register(backend.BackendNative, func() (gpucore.Device, error) {
		return New()
	})
}

// Errors returned by the native device.
var (
	ErrClosed          = errors.New("native: device closed")
	ErrUnknownResource = errors.New("native: unknown resource")
	ErrUnsupported     = errors.New("native: unsupported operation")
	ErrNoAdapter       = errors.New("native: no GPU adapter")
)

// DefaultTimeout bounds a fence wait when the context has no deadline.
const DefaultTimeout = 5 * time.Second

// Device implements gpucore.Device with a hal device and queue.
//
// Resource maps are guarded by mu. Queue access (submits, uploads and
// readbacks) is serialized by queueMu, so encoders may be recorded from
// several goroutines.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	caps     gpucore.Capabilities

	mu       sync.RWMutex
	nextID   uint64
	textures map[gpucore.TextureID]*texture
	buffers  map[gpucore.BufferID]*buffer
	programs map[gpucore.ProgramID]*program
	closed   bool

	queueMu sync.Mutex

	logger *slog.Logger
}

var _ gpucore.Device = (*Device)(nil)

// New opens a Vulkan adapter, preferring discrete and integrated GPUs.
// BC texture compression is requested when the adapter supports it.
func New() (*Device, error) {
	hb, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoAdapter)
	}
	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	d, err := openInstance(instance)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	return d, nil
}

func openInstance(instance hal.Instance) (*Device, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	var features gputypes.Features
	hasBC := selected.Features&gputypes.Features(gputypes.FeatureTextureCompressionBC) != 0
	if hasBC {
		features |= gputypes.Features(gputypes.FeatureTextureCompressionBC)
	}
	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(features, limits)
	if err != nil {
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	d := newDevice(openDev.Device, openDev.Queue, gpucore.Capabilities{
		Backend:              backend.BackendNative,
		DeviceName:           selected.Info.Name,
		TextureCompressionBC: hasBC,
		MaxTextureDimension:  limits.MaxTextureDimension2D,
	})
	d.instance = instance
	slogger().Info("native: device opened", "adapter", selected.Info.Name, "bc", hasBC)
	return d, nil
}

// NewFromProvider wraps a device owned by provider, for example a gogpu
// window. The provider must expose HalDevice() and HalQueue(); the
// device is not destroyed on Close. bc reports whether the shared device
// was opened with BC texture compression.
func NewFromProvider(provider gpucontext.DeviceProvider, bc bool) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("native: provider does not expose HAL types")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("native: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("native: provider HalQueue is not hal.Queue")
	}
	d := newDevice(dev, queue, gpucore.Capabilities{
		Backend:              backend.BackendNative,
		DeviceName:           "shared",
		TextureCompressionBC: bc,
		MaxTextureDimension:  gputypes.DefaultLimits().MaxTextureDimension2D,
	})
	d.external = true
	return d, nil
}

func newDevice(dev hal.Device, queue hal.Queue, caps gpucore.Capabilities) *Device {
	return &Device{
		device:   dev,
		queue:    queue,
		caps:     caps,
		textures: make(map[gpucore.TextureID]*texture),
		buffers:  make(map[gpucore.BufferID]*buffer),
		programs: make(map[gpucore.ProgramID]*program),
	}
}

// SetLogger overrides the package logger for this device.
func (d *Device) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	d.logger = l
	d.mu.Unlock()
}

func (d *Device) log() *slog.Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.logger != nil {
		return d.logger
	}
	return slogger()
}

// Name returns the backend identifier.
func (d *Device) Name() string { return backend.BackendNative }

// Capabilities reports the device limits and features.
func (d *Device) Capabilities() gpucore.Capabilities { return d.caps }

func (d *Device) allocID() uint64 {
	d.nextID++
	return d.nextID
}

// CreateTexture creates a sampleable texture. Float formats are also
// render targets and copy sources; block formats are padded to whole
// blocks.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: invalid texture descriptor")
	}
	limit := d.caps.MaxTextureDimension
	if desc.Width > limit || desc.Height > limit {
		return gpucore.InvalidID, fmt.Errorf("native: texture %dx%d exceeds limit %d", desc.Width, desc.Height, limit)
	}
	if desc.Format.IsCompressed() && !d.caps.TextureCompressionBC {
		return gpucore.InvalidID, fmt.Errorf("%w: %v textures", ErrUnsupported, desc.Format)
	}
	if err := d.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	t, err := d.newTexture(desc)
	if err != nil {
		return gpucore.InvalidID, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		t.destroy(d.device)
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.TextureID(d.allocID())
	d.textures[id] = t
	return id, nil
}

// WriteTexture uploads the whole texture.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte) error {
	t, err := d.texture(id)
	if err != nil {
		return err
	}
	if want := t.byteSize(); len(data) != want {
		return fmt.Errorf("native: %v write of %d bytes, want %d", t.desc.Format, len(data), want)
	}
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: t.bytesPerRow(), RowsPerImage: t.rows()},
		&hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	)
	t.mu.Lock()
	t.usage = gputypes.TextureUsageCopyDst
	t.mu.Unlock()
	return nil
}

// DestroyTexture releases a texture. Unknown IDs are ignored.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()
	if ok {
		t.destroy(d.device)
	}
}

// CreateBuffer creates a buffer. Sizes are rounded up to four bytes.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer size must be positive")
	}
	if err := d.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	size := (desc.Size + 3) &^ 3
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: convertBufferUsage(desc.Usage) | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.device.DestroyBuffer(buf)
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.BufferID(d.allocID())
	d.buffers[id] = &buffer{desc: *desc, buf: buf, size: desc.Size}
	return id, nil
}

// WriteBuffer writes data at offset.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b, err := d.buffer(id)
	if err != nil {
		return err
	}
	if offset > b.size || uint64(len(data)) > b.size-offset {
		return fmt.Errorf("native: write of %d bytes at %d overflows %d byte buffer", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	d.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

// DestroyBuffer releases a buffer. Unknown IDs are ignored.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBuffer(b.buf)
	}
}

// CreateProgram compiles desc.Source and builds its pipeline.
func (d *Device) CreateProgram(desc *gpucore.ProgramDescriptor) (gpucore.ProgramID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: nil program descriptor")
	}
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.Kind == gpucore.ProgramBCSample && !d.caps.TextureCompressionBC {
		return gpucore.InvalidID, fmt.Errorf("%w: %s without BC texture support", ErrUnsupported, desc.Kind)
	}
	if err := d.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	p, err := d.newProgram(desc)
	if err != nil {
		d.log().Warn("native: program build failed", "kind", desc.Kind, "label", desc.Label, "err", err)
		return gpucore.InvalidID, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		p.destroy(d.device)
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.ProgramID(d.allocID())
	d.programs[id] = p
	return id, nil
}

// DestroyProgram releases a program. Unknown IDs are ignored.
func (d *Device) DestroyProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	p, ok := d.programs[id]
	delete(d.programs, id)
	d.mu.Unlock()
	if ok {
		p.destroy(d.device)
	}
}

// NewEncoder starts a command encoder.
func (d *Device) NewEncoder(label string) (gpucore.Encoder, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &encoder{d: d, enc: enc, label: label}, nil
}

// Close destroys every resource and, unless the device is shared, the
// device itself. It is safe to call more than once.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	textures, buffers, programs := d.textures, d.buffers, d.programs
	d.textures, d.buffers, d.programs = nil, nil, nil
	d.mu.Unlock()

	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	for _, p := range programs {
		p.destroy(d.device)
	}
	for _, t := range textures {
		t.destroy(d.device)
	}
	for _, b := range buffers {
		d.device.DestroyBuffer(b.buf)
	}
	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.log().Debug("native: device closed",
		"textures", len(textures), "buffers", len(buffers), "programs", len(programs))
}

func (d *Device) checkOpen() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

func (d *Device) texture(id gpucore.TextureID) (*texture, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	t, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	return t, nil
}

func (d *Device) buffer(id gpucore.BufferID) (*buffer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	return b, nil
}

func (d *Device) program(id gpucore.ProgramID) (*program, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	p, ok := d.programs[id]
	if !ok {
		return nil, fmt.Errorf("%w: program %d", ErrUnknownResource, id)
	}
	return p, nil
}
