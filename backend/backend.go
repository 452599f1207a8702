package backend

import (
	"errors"

	"github.com/gogpu/pipecheck/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoBackends is returned by Default when nothing is registered.
	ErrNoBackends = errors.New("backend: no backends registered")
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU backend.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU backend (gogpu/wgpu).
	BackendNative = "native"
)

// Factory opens a new device.
type Factory func() (gpucore.Device, error)
