package pipecheck

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/parallel"
)

// InstanceID identifies an Instance inside a Manager.
type InstanceID uint64

// Manager runs several instances side by side on one shared device. In
// linked mode settings and stage toggles apply to all of them; selection
// stays per instance.
type Manager struct {
	dev  gpucore.Device
	opts managerOptions
	pool *parallel.Pool

	mu        sync.RWMutex
	nextID    InstanceID
	instances map[InstanceID]*Instance
	order     []InstanceID
	linked    bool
	closed    bool
}

// NewManager returns an empty manager on dev.
func NewManager(dev gpucore.Device, opts ...ManagerOption) (*Manager, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	var o managerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager{
		dev:       dev,
		opts:      o,
		pool:      parallel.NewPool(o.concurrency),
		instances: make(map[InstanceID]*Instance),
		linked:    o.linked,
	}, nil
}

// Device returns the shared device.
func (m *Manager) Device() gpucore.Device { return m.dev }

// Add creates an instance. In linked mode it starts with the settings of
// the first instance.
func (m *Manager) Add(opts ...InstanceOption) (InstanceID, *Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil, ErrDestroyed
	}
	id := m.nextID + 1
	all := []InstanceOption{WithLabel(fmt.Sprintf("pipeline %d", id))}
	all = append(all, m.opts.instance...)
	all = append(all, opts...)
	if m.linked && len(m.order) > 0 {
		all = append(all, WithSettings(m.instances[m.order[0]].Settings()))
	}
	inst, err := NewInstance(m.dev, all...)
	if err != nil {
		return 0, nil, err
	}
	m.nextID = id
	m.instances[id] = inst
	m.order = append(m.order, id)
	Logger().Info("pipecheck: instance added", "id", id, "count", len(m.order))
	return id, inst, nil
}

// Remove destroys and forgets instance id.
func (m *Manager) Remove(id InstanceID) error {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if ok {
		delete(m.instances, id)
		m.order = slices.DeleteFunc(m.order, func(x InstanceID) bool { return x == id })
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	inst.Destroy()
	return nil
}

// Get returns instance id.
func (m *Manager) Get(id InstanceID) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// Instances returns the IDs in the order they were added.
func (m *Manager) Instances() []InstanceID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Len returns the number of instances.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// SetLinked switches linked mode. Linking copies the first instance's
// settings to the others.
func (m *Manager) SetLinked(on bool) error {
	m.mu.Lock()
	m.linked = on
	targets := m.snapshot()
	m.mu.Unlock()
	if !on || len(targets) < 2 {
		return nil
	}
	s := targets[0].Settings()
	var errs []error
	for _, inst := range targets[1:] {
		errs = append(errs, inst.SetSettings(s))
	}
	return errors.Join(errs...)
}

// Linked reports whether linked mode is on.
func (m *Manager) Linked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.linked
}

func (m *Manager) snapshot() []*Instance {
	out := make([]*Instance, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.instances[id])
	}
	return out
}

// targets returns the instances an edit of id reaches.
func (m *Manager) targets(id InstanceID) ([]*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstance, id)
	}
	if m.linked {
		return m.snapshot(), nil
	}
	return []*Instance{inst}, nil
}

// UpdateSettings applies fn to instance id, or to every instance in
// linked mode.
func (m *Manager) UpdateSettings(id InstanceID, fn func(*Settings)) error {
	targets, err := m.targets(id)
	if err != nil {
		return err
	}
	var errs []error
	for _, inst := range targets {
		errs = append(errs, inst.UpdateSettings(fn))
	}
	return errors.Join(errs...)
}

// ToggleStage toggles stage idx of instance id, or of every instance in
// linked mode. It reports whether instance id accepted the toggle.
func (m *Manager) ToggleStage(id InstanceID, idx int, on bool) bool {
	targets, err := m.targets(id)
	if err != nil {
		return false
	}
	self, _ := m.Get(id)
	ok := false
	for _, inst := range targets {
		if inst.ToggleStage(idx, on) && inst == self {
			ok = true
		}
	}
	return ok
}

// SelectStage selects stage idx of instance id only.
func (m *Manager) SelectStage(id InstanceID, idx int) bool {
	inst, ok := m.Get(id)
	if !ok {
		return false
	}
	return inst.SelectStage(idx)
}

// RenderAll renders every instance on the manager's workers. Instances
// own disjoint resources, so no order between them is kept.
func (m *Manager) RenderAll(ctx context.Context) error {
	return m.each(func(inst *Instance) error { return inst.Render(ctx) })
}

// RefreshAll brings every instance's compressed texture up to date.
func (m *Manager) RefreshAll(ctx context.Context) error {
	return m.each(func(inst *Instance) error {
		_, err := inst.RefreshBC(ctx)
		return err
	})
}

func (m *Manager) each(fn func(*Instance) error) error {
	m.mu.RLock()
	ids := slices.Clone(m.order)
	targets := m.snapshot()
	m.mu.RUnlock()

	errs := make([]error, len(targets))
	m.pool.Dispatch(len(targets), func(n int) {
		if err := fn(targets[n]); err != nil {
			errs[n] = fmt.Errorf("instance %d: %w", ids[n], err)
		}
	})
	return errors.Join(errs...)
}

// Close destroys every instance and stops the workers. The device is
// left open.
func (m *Manager) Close() {
	m.mu.Lock()
	targets := m.snapshot()
	m.instances = make(map[InstanceID]*Instance)
	m.order = nil
	m.closed = true
	m.mu.Unlock()
	for _, inst := range targets {
		inst.Destroy()
	}
	m.pool.Close()
}
