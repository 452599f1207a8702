package pipecheck

import "time"

// InstanceOption configures an Instance during creation.
//
// Example:
//
//	inst, err := pipecheck.NewInstance(dev,
//	    pipecheck.WithSize(1920, 1080),
//	    pipecheck.WithReadbackTimeout(2*time.Second))
type InstanceOption func(*instanceOptions)

// instanceOptions holds optional configuration for Instance creation.
type instanceOptions struct {
	width, height   uint32
	settings        Settings
	readbackTimeout time.Duration
	label           string
}

// defaultInstanceOptions returns the default instance options.
func defaultInstanceOptions() instanceOptions {
	return instanceOptions{
		settings: DefaultSettings(),
		label:    "pipeline",
	}
}

// WithSize allocates the stage targets up front. Without it they are
// created by the first SetSource.
func WithSize(width, height uint32) InstanceOption {
	return func(o *instanceOptions) {
		o.width, o.height = width, height
	}
}

// WithSettings sets the initial settings.
func WithSettings(s Settings) InstanceOption {
	return func(o *instanceOptions) {
		o.settings = s
	}
}

// WithReadbackTimeout bounds every pixel and metrics readback. Zero, the
// default, waits as long as the context allows.
func WithReadbackTimeout(d time.Duration) InstanceOption {
	return func(o *instanceOptions) {
		o.readbackTimeout = d
	}
}

// WithLabel names the instance in logs and GPU debug labels.
func WithLabel(label string) InstanceOption {
	return func(o *instanceOptions) {
		o.label = label
	}
}

// ManagerOption configures a Manager during creation.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	linked      bool
	concurrency int
	instance    []InstanceOption
}

// WithLinked starts the manager in linked mode, where settings and stage
// toggles apply to every instance.
func WithLinked(linked bool) ManagerOption {
	return func(o *managerOptions) {
		o.linked = linked
	}
}

// WithConcurrency caps how many instances RenderAll and RefreshAll drive
// at once. Zero or less means GOMAXPROCS.
func WithConcurrency(n int) ManagerOption {
	return func(o *managerOptions) {
		o.concurrency = n
	}
}

// WithInstanceOptions sets options applied to every added instance before
// the options passed to Add.
func WithInstanceOptions(opts ...InstanceOption) ManagerOption {
	return func(o *managerOptions) {
		o.instance = append(o.instance, opts...)
	}
}
