// Package backend selects the device the pipeline renders on.
//
// Device implementations register themselves from init() functions and
// are selected at runtime. Importing a backend package is enough to make
// it available:
//
//	import (
//		_ "github.com/gogpu/pipecheck/backend/native"
//		_ "github.com/gogpu/pipecheck/backend/software"
//	)
//
// # Backend Selection
//
// Use Default() to open the best available device, or Open() to request
// a specific backend by name:
//
//	dev, err := backend.Default()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Available Backends
//
//   - "native": gogpu/wgpu HAL device (Vulkan)
//   - "software": CPU implementation of every program (always available)
package backend
