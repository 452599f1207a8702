//go:build !nogpu

package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipecheck/gpucore"
	"github.com/gogpu/pipecheck/internal/shaders"
)

// program owns the shader module, layouts and pipeline of one kind.
type program struct {
	desc   gpucore.ProgramDescriptor
	layout gpucore.Layout

	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	render     hal.RenderPipeline
	compute    hal.ComputePipeline
}

// compileWGSL compiles WGSL to little-endian SPIR-V words.
func compileWGSL(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// programSource returns desc.Source, or the built-in module for the kind
// when it is empty.
func programSource(desc *gpucore.ProgramDescriptor) (src, entry string, err error) {
	entry = desc.EntryPoint
	src = desc.Source
	if desc.Kind == gpucore.ProgramBCEncode {
		builtin, builtinEntry, err := shaders.EncodeSource(desc.Format)
		if err != nil {
			return "", "", err
		}
		if src == "" {
			src = builtin
		}
		if entry == "" {
			entry = builtinEntry
		}
		return src, entry, nil
	}
	if src == "" {
		src, err = shaders.Source(desc.Kind, desc.Format)
	}
	return src, "fs_main", err
}

func (d *Device) newProgram(desc *gpucore.ProgramDescriptor) (*program, error) {
	src, entry, err := programSource(desc)
	if err != nil {
		return nil, err
	}
	spirv, err := compileWGSL(src)
	if err != nil {
		return nil, fmt.Errorf("native: compile %s: %w", desc.Kind, err)
	}

	p := &program{desc: *desc, layout: desc.Kind.Layout()}
	ok := false
	defer func() {
		if !ok {
			p.destroy(d.device)
		}
	}()

	label := desc.Label
	if label == "" {
		label = desc.Kind.String()
	}
	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create shader module %s: %w", label, err)
	}

	p.bindLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bind_layout",
		Entries: bindLayoutEntries(p.layout),
	})
	if err != nil {
		return nil, fmt.Errorf("native: create bind group layout %s: %w", label, err)
	}
	p.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create pipeline layout %s: %w", label, err)
	}

	if p.layout.Compute {
		p.compute, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:   label + "_pipeline",
			Layout:  p.pipeLayout,
			Compute: hal.ComputeState{Module: p.module, EntryPoint: entry},
		})
		if err != nil {
			return nil, fmt.Errorf("native: create compute pipeline %s: %w", label, err)
		}
		ok = true
		return p, nil
	}

	target, supported := convertTextureFormat(desc.TargetFormat)
	if desc.TargetFormat == 0 {
		target, supported = gputypes.TextureFormatRGBA16Float, true
	}
	if !supported || desc.TargetFormat.IsCompressed() {
		return nil, fmt.Errorf("%w: render target %v", ErrUnsupported, desc.TargetFormat)
	}
	p.render, err = d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label + "_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.module,
			EntryPoint: entry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    target,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create render pipeline %s: %w", label, err)
	}
	ok = true
	return p, nil
}

// bindLayoutEntries lays out binding 0 as the uniform block, then the
// textures, then the storage buffer of compute kinds.
func bindLayoutEntries(l gpucore.Layout) []gputypes.BindGroupLayoutEntry {
	stage := gputypes.ShaderStageFragment
	if l.Compute {
		stage = gputypes.ShaderStageCompute
	}
	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: stage,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	for i := 0; i < l.Textures; i++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1), //nolint:gosec // at most two textures
			Visibility: stage,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	if l.Compute {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(l.Textures + 1), //nolint:gosec // small
			Visibility: stage,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		})
	}
	return entries
}

func (p *program) destroy(dev hal.Device) {
	if p.render != nil {
		dev.DestroyRenderPipeline(p.render)
	}
	if p.compute != nil {
		dev.DestroyComputePipeline(p.compute)
	}
	if p.pipeLayout != nil {
		dev.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		dev.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.module != nil {
		dev.DestroyShaderModule(p.module)
	}
}
