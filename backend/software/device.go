package software

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/pipecheck/backend"
	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/parallel"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.Device, error) {
		return New(), nil
	})
}

// Errors returned by the software device.
var (
	ErrClosed          = errors.New("software: device closed")
	ErrUnknownResource = errors.New("software: unknown resource")
	ErrUnsupported     = errors.New("software: unsupported operation")
)

// DefaultMaxTextureDimension matches the WebGPU default limit.
const DefaultMaxTextureDimension = 8192

// Option configures a Device.
type Option func(*options)

type options struct {
	bc      bool
	workers int
	maxDim  uint32
}

// WithBCSupport controls whether the device reports BC texture sampling.
// Disabling it models hardware without the feature.
func WithBCSupport(enabled bool) Option {
	return func(o *options) { o.bc = enabled }
}

// WithWorkers sets the number of pixel workers. 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithMaxTextureDimension overrides the texture size limit.
func WithMaxTextureDimension(n uint32) Option {
	return func(o *options) { o.maxDim = n }
}

// Device is a CPU implementation of gpucore.Device.
type Device struct {
	opts options
	pool *parallel.Pool

	mu       sync.RWMutex
	nextID   uint64
	textures map[gpucore.TextureID]*texture
	buffers  map[gpucore.BufferID]*buffer
	programs map[gpucore.ProgramID]*program
	closed   bool

	// queue serializes submissions like a single device queue.
	queue sync.Mutex

	logger *slog.Logger
}

var _ gpucore.Device = (*Device)(nil)

// New creates a software device.
func New(opts ...Option) *Device {
	o := options{bc: true, maxDim: DefaultMaxTextureDimension}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		opts:     o,
		pool:     parallel.NewPool(o.workers),
		textures: make(map[gpucore.TextureID]*texture),
		buffers:  make(map[gpucore.BufferID]*buffer),
		programs: make(map[gpucore.ProgramID]*program),
	}
	slogger().Debug("software: device created", "workers", d.pool.Workers(), "bc", o.bc)
	return d
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
func (d *Device) Name() string { return backend.BackendSoftware }

// Capabilities reports the device limits and features.
func (d *Device) Capabilities() gpucore.Capabilities {
	return gpucore.Capabilities{
		Backend:              backend.BackendSoftware,
		DeviceName:           "CPU",
		TextureCompressionBC: d.opts.bc,
		MaxTextureDimension:  d.opts.maxDim,
	}
}

func (d *Device) allocID() uint64 {
	d.nextID++
	return d.nextID
}

// CreateTexture allocates a zeroed texture.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: invalid texture descriptor")
	}
	if desc.Width > d.opts.maxDim || desc.Height > d.opts.maxDim {
		return gpucore.InvalidID, fmt.Errorf("software: texture %dx%d exceeds limit %d",
			desc.Width, desc.Height, d.opts.maxDim)
	}
	if desc.Format.IsCompressed() && !d.opts.bc {
		return gpucore.InvalidID, fmt.Errorf("%w: %v textures", ErrUnsupported, desc.Format)
	}
	t, err := newTexture(desc)
	if err != nil {
		return gpucore.InvalidID, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.TextureID(d.allocID())
	d.textures[id] = t
	return id, nil
}

// WriteTexture replaces the contents of a texture.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte) error {
	t, err := d.texture(id)
	if err != nil {
		return err
	}
	return t.write(data)
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: invalid buffer descriptor")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.BufferID(d.allocID())
	d.buffers[id] = &buffer{desc: *desc, data: make([]byte, desc.Size)}
	return id, nil
}

// WriteBuffer copies data into a buffer at offset.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b, err := d.buffer(id)
	if err != nil {
		return err
	}
	return b.write(offset, data)
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, id)
}

// CreateProgram validates desc. The WGSL source is not used.
func (d *Device) CreateProgram(desc *gpucore.ProgramDescriptor) (gpucore.ProgramID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil program descriptor")
	}
	if err := desc.Validate(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.Kind == gpucore.ProgramBCSample && !d.opts.bc {
		return gpucore.InvalidID, fmt.Errorf("%w: BC sampling", ErrUnsupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.ProgramID(d.allocID())
	d.programs[id] = &program{desc: *desc}
	return id, nil
}

// DestroyProgram releases a program.
func (d *Device) DestroyProgram(id gpucore.ProgramID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.programs, id)
}

// NewEncoder starts recording.
func (d *Device) NewEncoder(label string) (gpucore.Encoder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	return &encoder{dev: d, label: label}, nil
}

// ReadTexture copies a region of an uncompressed texture.
func (d *Device) ReadTexture(ctx context.Context, id gpucore.TextureID, x, y, w, h uint32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := d.texture(id)
	if err != nil {
		return nil, err
	}
	if t.desc.Format.IsCompressed() {
		return nil, fmt.Errorf("%w: reading %v texture", ErrUnsupported, t.desc.Format)
	}
	// Wait for in-flight submissions, as a mapped staging buffer would.
	d.queue.Lock()
	defer d.queue.Unlock()
	return t.read(x, y, w, h)
}

// ReadBuffer copies bytes out of a buffer.
func (d *Device) ReadBuffer(ctx context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := d.buffer(id)
	if err != nil {
		return nil, err
	}
	d.queue.Lock()
	defer d.queue.Unlock()
	return b.read(offset, size)
}

// Close releases every resource and stops the workers.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	clear(d.textures)
	clear(d.buffers)
	clear(d.programs)
	d.mu.Unlock()
	d.pool.Close()
}

// Stats reports live resource counts.
type Stats struct {
	Textures int
	Buffers  int
	Programs int
}

// Stats returns the number of live resources.
func (d *Device) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{Textures: len(d.textures), Buffers: len(d.buffers), Programs: len(d.programs)}
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
