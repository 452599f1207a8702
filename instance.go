package pipecheck

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"honnef.co/go/safeish"

	"github.com/gogpu/pipecheck/gpucore"
)

// StageInfo describes one stage of an Instance.
type StageInfo struct {
	Index     int
	Kind      StageKind
	Name      string
	Enabled   bool
	Available bool
	// Locked stages cannot be toggled.
	Locked bool
	Output OutputRef
}

// Instance is one complete pipeline: a source image, the fixed stage list
// and the settings it renders with. Instances on the same device share
// nothing else. All methods are safe for concurrent use.
type Instance struct {
	dev   gpucore.Device
	label string

	mu         sync.Mutex
	renderer   *Renderer
	stages     [NumStages]Stage
	compress   *BCCompressStage
	decompress *BCDecompressStage
	readback   *PixelReadback

	source        gpucore.TextureID
	width, height uint32
	space         ColorSpace
	settings      Settings
	selected      int
	capMsg        string
	destroyed     bool
}

// NewInstance builds the stage list on dev. Only a missing device or
// invalid options fail; a stage whose program does not compile is kept
// and reports its error when rendered.
func NewInstance(dev gpucore.Device, opts ...InstanceOption) (*Instance, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	o := defaultInstanceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}

	r, err := NewRenderer(dev)
	if err != nil {
		return nil, err
	}
	r.label = o.label
	inst := &Instance{
		dev:        dev,
		label:      o.label,
		renderer:   r,
		compress:   NewBCCompressStage(),
		decompress: NewBCDecompressStage(),
		readback:   NewPixelReadback(dev, o.readbackTimeout),
		settings:   o.settings,
		selected:   int(StageFinalDisplay),
	}
	inst.stages = [NumStages]Stage{
		NewSourceStage(),
		inst.compress,
		inst.decompress,
		NewTransformStage(StageInputConvert),
		NewTransformStage(StageColorGrade),
		NewTransformStage(StageRRT),
		NewTransformStage(StageODT),
		NewTransformStage(StageOutputEncode),
		NewTransformStage(StageDisplayRemap),
		NewTransformStage(StageFinalDisplay),
	}
	if !dev.Capabilities().TextureCompressionBC {
		inst.compress.SetAvailable(false)
		inst.decompress.SetAvailable(false)
		inst.capMsg = "Block compression preview unavailable: this device cannot sample BC textures."
	}

	if o.width > 0 || o.height > 0 {
		if err := r.SetSize(o.width, o.height); err != nil {
			r.Destroy()
			return nil, err
		}
	}
	if err := r.SetStages(inst.stages[:]...); err != nil {
		r.Destroy()
		return nil, err
	}
	trackDevice(dev)
	inst.log().Info("pipecheck: instance created", "backend", dev.Name(), "bc", inst.capMsg == "")
	return inst, nil
}

func (i *Instance) log() *slog.Logger {
	return Logger().With("instance", i.label)
}

// Label returns the instance label.
func (i *Instance) Label() string { return i.label }

// CapabilityMessage explains why stages are unavailable on this device,
// or is empty.
func (i *Instance) CapabilityMessage() string { return i.capMsg }

// Size returns the source size.
func (i *Instance) Size() (width, height uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.width, i.height
}

// SetSource uploads a decoded RGBA float image in the given color space.
// It resizes every stage target when the size changes and invalidates the
// compressed result.
func (i *Instance) SetSource(pixels []float32, width, height uint32, space ColorSpace) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if want := int(width) * int(height) * 4; len(pixels) != want {
		return fmt.Errorf("pipecheck: source has %d values, want %d", len(pixels), want)
	}
	if !space.Valid() {
		return fmt.Errorf("pipecheck: invalid input space %d", space)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return ErrDestroyed
	}
	if err := i.renderer.SetSize(width, height); err != nil {
		return err
	}
	if i.source != gpucore.InvalidID && (i.width != width || i.height != height) {
		i.dev.DestroyTexture(i.source)
		i.source = gpucore.InvalidID
	}
	if i.source == gpucore.InvalidID {
		id, err := i.dev.CreateTexture(&gpucore.TextureDescriptor{
			Label:  i.label + " source",
			Width:  width,
			Height: height,
			Format: gpucore.TextureFormatRGBA32Float,
			Usage: gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst |
				gpucore.TextureUsageCopySrc,
		})
		if err != nil {
			return fmt.Errorf("pipecheck: create source: %w", err)
		}
		i.source = id
	}
	if err := i.dev.WriteTexture(i.source, safeish.SliceCast[[]byte](pixels)); err != nil {
		return fmt.Errorf("pipecheck: upload source: %w", err)
	}
	i.width, i.height, i.space = width, height, space
	i.compress.Invalidate()
	i.log().Info("pipecheck: source loaded", "width", width, "height", height, "space", space)
	return nil
}

// InputSpace returns the declared input color space.
func (i *Instance) InputSpace() ColorSpace {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.space
}

// EffectiveInputSpace returns the space Input Convert reads: the
// linearized space when the compression round trip is active and
// linearized the source, otherwise the declared one.
func (i *Instance) EffectiveInputSpace() ColorSpace {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.effectiveSpace()
}

func (i *Instance) effectiveSpace() ColorSpace {
	if i.bcActive() {
		if res := i.decompress.Uploaded(); res != nil && res.Linearized {
			return res.Space
		}
	}
	return i.space
}

func (i *Instance) bcActive() bool {
	return i.compress.Enabled() && i.compress.Available() &&
		i.decompress.Enabled() && i.decompress.Available()
}

// Settings returns a copy of the current settings.
func (i *Instance) Settings() Settings {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.settings
}

// SetSettings replaces the settings. They take effect at the next Render.
func (i *Instance) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.settings = s
	return nil
}

// UpdateSettings applies fn to a copy of the settings and keeps the
// result if it validates.
func (i *Instance) UpdateSettings(fn func(*Settings)) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.settings
	fn(&s)
	if err := s.Validate(); err != nil {
		return err
	}
	i.settings = s
	return nil
}

func stageLocked(idx int) bool {
	return idx == int(StageSource) || idx == int(StageFinalDisplay)
}

// stageGroup returns the stages that change together with idx.
func stageGroup(idx int) []int {
	if idx == int(StageBCCompress) || idx == int(StageBCDecompress) {
		return []int{int(StageBCCompress), int(StageBCDecompress)}
	}
	return []int{idx}
}

// SelectStage makes stage idx the inspected stage. It reports false and
// leaves the selection unchanged for an unknown or unavailable stage.
func (i *Instance) SelectStage(idx int) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if idx < 0 || idx >= NumStages || !i.stages[idx].Available() {
		return false
	}
	i.selected = idx
	return true
}

// Selected returns the inspected stage index.
func (i *Instance) Selected() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.selected
}

// ToggleStage enables or disables stage idx. The compress and decompress
// stages toggle together. Locked and unavailable stages are left alone
// and false is returned.
func (i *Instance) ToggleStage(idx int, on bool) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if idx < 0 || idx >= NumStages || stageLocked(idx) {
		return false
	}
	group := stageGroup(idx)
	for _, j := range group {
		if !i.stages[j].Available() {
			return false
		}
	}
	for _, j := range group {
		i.stages[j].SetEnabled(on)
	}
	return true
}

// SetStageAvailable marks stage idx available or not, for example when
// the loaded file makes it inapplicable. Locked stages are always
// available. An unavailable selected stage hands the selection to the
// final display stage.
func (i *Instance) SetStageAvailable(idx int, ok bool) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if idx < 0 || idx >= NumStages || stageLocked(idx) {
		return false
	}
	if ok && (idx == int(StageBCCompress) || idx == int(StageBCDecompress)) && i.capMsg != "" {
		return false
	}
	for _, j := range stageGroup(idx) {
		i.stages[j].SetAvailable(ok)
		if !ok && i.selected == j {
			i.selected = int(StageFinalDisplay)
		}
	}
	return true
}

// Stages describes every stage.
func (i *Instance) Stages() []StageInfo {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]StageInfo, NumStages)
	for idx, st := range i.stages {
		ref, _ := i.renderer.Output(idx)
		out[idx] = StageInfo{
			Index:     idx,
			Kind:      st.Kind(),
			Name:      st.Name(),
			Enabled:   st.Enabled(),
			Available: st.Available(),
			Locked:    stageLocked(idx),
			Output:    ref,
		}
	}
	return out
}

// Render serializes the settings and renders the whole chain. It never
// waits for a compression round trip; the last uploaded result is used.
// Stage failures are returned joined, after the rest of the chain ran.
func (i *Instance) Render(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return ErrDestroyed
	}
	if i.source == gpucore.InvalidID {
		return ErrNoSource
	}
	space := i.effectiveSpace()
	i.decompress.SetDelta(i.settings.DeltaEnabled, i.settings.DeltaAmplification, !space.IsEncoded())
	p := i.settings.Params(space)
	if err := i.renderer.UpdateUniforms(paramsBytes(&p)); err != nil {
		return err
	}
	return i.renderer.Render(ctx, i.source)
}

// RefreshBC brings the compressed texture up to date with the current
// source and settings. It reports whether new data was uploaded. It does
// not hold the instance while encoding, so Render keeps running with the
// previous result. An encode that outlives a SetSource is not uploaded.
func (i *Instance) RefreshBC(ctx context.Context) (bool, error) {
	i.mu.Lock()
	if i.destroyed {
		i.mu.Unlock()
		return false, ErrDestroyed
	}
	if i.source == gpucore.InvalidID {
		i.mu.Unlock()
		return false, ErrNoSource
	}
	if !i.bcActive() {
		i.mu.Unlock()
		return false, nil
	}
	key := i.settings.encodeKey(i.width, i.height, i.space)
	src := i.source
	gen := i.compress.Generation()
	i.mu.Unlock()

	res, err := i.compress.RunEncode(ctx, src, key)
	if err != nil {
		return false, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return false, ErrDestroyed
	}
	if i.compress.Generation() != gen {
		// New pixels arrived while encoding.
		i.log().Debug("pipecheck: dropping BC result for replaced source")
		return false, nil
	}
	return i.decompress.UploadBCData(res)
}

// RefreshBCAsync runs RefreshBC in the background. The channel receives
// its error, or nil, and is closed.
func (i *Instance) RefreshBCAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		_, err := i.RefreshBC(ctx)
		ch <- err
	}()
	return ch
}

// BCResult returns the compressed result currently uploaded, or nil.
func (i *Instance) BCResult() *BCEncodeResult {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.decompress.Uploaded()
}

// BCDispatches returns the number of encode dispatches issued.
func (i *Instance) BCDispatches() int64 { return i.compress.Dispatches() }

// StageOutput returns the texture stage idx exposed in the last render.
func (i *Instance) StageOutput(idx int) (gpucore.TextureID, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.renderer.StageOutput(idx)
}

// StageOutputRef returns how stage idx's output was produced.
func (i *Instance) StageOutputRef(idx int) (OutputRef, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.renderer.Output(idx)
}

// InspectedTexture returns the texture of the selected stage. With the
// decompress stage selected and delta on, that is the delta texture.
func (i *Instance) InspectedTexture() gpucore.TextureID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inspected()
}

func (i *Instance) inspected() gpucore.TextureID {
	if i.selected == int(StageBCDecompress) && i.bcActive() {
		if d := i.decompress.DeltaOutput(); d != gpucore.InvalidID {
			return d
		}
	}
	return i.stages[i.selected].Output()
}

// ReadPixel reads one pixel of stage idx's last output. A request made
// while another read is pending is skipped.
func (i *Instance) ReadPixel(ctx context.Context, idx, x, y int) ([4]float32, ReadStatus, error) {
	i.mu.Lock()
	if idx < 0 || idx >= NumStages {
		i.mu.Unlock()
		return [4]float32{}, ReadOK, fmt.Errorf("%w: %d", ErrStageIndex, idx)
	}
	tex := i.stages[idx].Output()
	w, h := i.width, i.height
	i.mu.Unlock()

	if tex == gpucore.InvalidID {
		return [4]float32{}, ReadOK, fmt.Errorf("%w: stage %d has not rendered", ErrNoSource, idx)
	}
	return i.readback.ReadPixel(ctx, tex, w, h, x, y)
}

// ReadInspectedPixel reads one pixel of InspectedTexture.
func (i *Instance) ReadInspectedPixel(ctx context.Context, x, y int) ([4]float32, ReadStatus, error) {
	i.mu.Lock()
	tex := i.inspected()
	w, h := i.width, i.height
	i.mu.Unlock()
	if tex == gpucore.InvalidID {
		return [4]float32{}, ReadOK, fmt.Errorf("%w: nothing rendered", ErrNoSource)
	}
	return i.readback.ReadPixel(ctx, tex, w, h, x, y)
}

// Metrics compares the decoded texture of the last render with its
// reference: the linearized intermediate when the encoder made one,
// otherwise the source.
func (i *Instance) Metrics(ctx context.Context) (BCMetrics, error) {
	i.mu.Lock()
	res := i.decompress.Uploaded()
	decoded := i.decompress.DecodedTexture()
	if res == nil || !i.bcActive() || i.decompress.Output() != decoded {
		i.mu.Unlock()
		return BCMetrics{}, ErrNoBCResult
	}
	ref := i.source
	if res.Linearized && res.reference != gpucore.InvalidID {
		ref = res.reference
	}
	w, h := i.width, i.height
	timeout := i.readback.timeout
	i.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	refPix, err := i.dev.ReadTexture(ctx, ref, 0, 0, w, h)
	if err != nil {
		return BCMetrics{}, fmt.Errorf("pipecheck: read reference: %w", err)
	}
	decPix, err := i.dev.ReadTexture(ctx, decoded, 0, 0, w, h)
	if err != nil {
		return BCMetrics{}, fmt.Errorf("pipecheck: read decoded: %w", err)
	}
	return ComputeBCMetrics(refPix, decPix, int(w), int(h))
}

// Destroy releases every GPU resource of the instance. Further calls
// return ErrDestroyed.
func (i *Instance) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.destroyed {
		return
	}
	i.destroyed = true
	i.renderer.Destroy()
	if i.source != gpucore.InvalidID {
		i.dev.DestroyTexture(i.source)
		i.source = gpucore.InvalidID
	}
	untrackDevice(i.dev)
	i.log().Info("pipecheck: instance destroyed")
}
