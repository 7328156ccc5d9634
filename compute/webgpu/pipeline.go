package webgpu

import (
	"github.com/openfluke/webgpu/wgpu"
)

// kernels holds the two compiled compute pipelines and their bind groups.
// Both dispatch exactly one workgroup; the in-kernel barriers only order
// invocations inside a workgroup, which is why Config.Validate bounds the
// layer widths at the workgroup size.
type kernels struct {
	forward      *wgpu.ComputePipeline
	backward     *wgpu.ComputePipeline
	forwardBind  *wgpu.BindGroup
	backwardBind *wgpu.BindGroup
}

func ro(binding uint32) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
	}
}

func rw(binding uint32) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage},
	}
}

func bind(binding uint32, buf *wgpu.Buffer) wgpu.BindGroupEntry {
	return wgpu.BindGroupEntry{Binding: binding, Buffer: buf, Size: buf.GetSize()}
}

// buildPipeline compiles one kernel and wires its bind group.
func buildPipeline(s *session, name, source string,
	layoutEntries []wgpu.BindGroupLayoutEntry,
	bindEntries []wgpu.BindGroupEntry) (*wgpu.ComputePipeline, *wgpu.BindGroup, error) {

	module, err := s.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          s.label(name + "_Shader"),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, nil, err
	}
	defer module.Release()

	bindGroupLayout, err := s.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   s.label(name + "_Layout"),
		Entries: layoutEntries,
	})
	if err != nil {
		return nil, nil, err
	}
	defer bindGroupLayout.Release()

	pipelineLayout, err := s.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            s.label(name + "_PipeLayout"),
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	if err != nil {
		return nil, nil, err
	}
	defer pipelineLayout.Release()

	pipeline, err := s.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  s.label(name + "_Pipe"),
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return nil, nil, err
	}

	bindGroup, err := s.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   s.label(name + "_Bind"),
		Layout:  bindGroupLayout,
		Entries: bindEntries,
	})
	if err != nil {
		pipeline.Release()
		return nil, nil, err
	}
	return pipeline, bindGroup, nil
}

func buildKernels(s *session, st *store) (*kernels, error) {
	fwdSrc, bwdSrc := kernelSources(st.cfg)

	forward, forwardBind, err := buildPipeline(s, "Forward", fwdSrc,
		[]wgpu.BindGroupLayoutEntry{ro(0), ro(1), ro(2), rw(3), rw(4)},
		[]wgpu.BindGroupEntry{
			bind(0, st.sample),
			bind(1, st.hiddenParams),
			bind(2, st.outputParams),
			bind(3, st.hidden),
			bind(4, st.output),
		})
	if err != nil {
		return nil, err
	}

	backward, backwardBind, err := buildPipeline(s, "Backward", bwdSrc,
		[]wgpu.BindGroupLayoutEntry{ro(0), ro(1), ro(2), rw(3), rw(4), rw(5), rw(6)},
		[]wgpu.BindGroupEntry{
			bind(0, st.sample),
			bind(1, st.hidden),
			bind(2, st.output),
			bind(3, st.hiddenParams),
			bind(4, st.outputParams),
			bind(5, st.grads),
			bind(6, st.loss),
		})
	if err != nil {
		forward.Release()
		forwardBind.Release()
		return nil, err
	}

	return &kernels{
		forward:      forward,
		backward:     backward,
		forwardBind:  forwardBind,
		backwardBind: backwardBind,
	}, nil
}

// dispatch submits one kernel as a single workgroup and waits for the device
// to drain, the completion barrier between the step's sub-steps.
func (k *kernels) dispatch(s *session, pipeline *wgpu.ComputePipeline, bg *wgpu.BindGroup, label string) error {
	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := encoder.BeginComputePass(&wgpu.ComputePassDescriptor{
		Label: s.label(label),
	})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(1, 1, 1)
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	s.queue.Submit(cmd)
	s.device.Poll(true, nil)
	return nil
}

func (k *kernels) release() {
	if k.forward != nil {
		k.forward.Release()
		k.forward = nil
	}
	if k.forwardBind != nil {
		k.forwardBind.Release()
		k.forwardBind = nil
	}
	if k.backward != nil {
		k.backward.Release()
		k.backward = nil
	}
	if k.backwardBind != nil {
		k.backwardBind.Release()
		k.backwardBind = nil
	}
}
