package webgpu

import (
	"github.com/neurlang/gradnet/net/mlp"
	"github.com/openfluke/webgpu/wgpu"
	"github.com/pkg/errors"
)

// store owns the device-resident training state. Weights and biases are
// packed one buffer per layer, matrix first, biases after it, which keeps
// both kernels inside the default maxStorageBuffersPerShaderStage limit of 8.
type store struct {
	cfg mlp.Config

	sample       *wgpu.Buffer // [input | target], uploaded every step
	hiddenParams *wgpu.Buffer // [Wh | biasH]
	outputParams *wgpu.Buffer // [Wo | biasO]
	hidden       *wgpu.Buffer // hidden activations
	output       *wgpu.Buffer // output activations
	grads        *wgpu.Buffer // [gradOutput | gradHidden], device-only
	loss         *wgpu.Buffer // one f32 accumulated as bit-packed atomic<u32>
	staging      *wgpu.Buffer // MapRead, [hidden | output | loss]

	sampleScratch []float32
	lossZero      []float32
}

func newStore(s *session, cfg mlp.Config, w *mlp.Weights) (*store, error) {
	st := &store{
		cfg:           cfg,
		sampleScratch: make([]float32, cfg.InputSize+cfg.OutputSize),
		lossZero:      []float32{0},
	}

	var allocErr error
	mk := func(name string, floats int, usage wgpu.BufferUsage) *wgpu.Buffer {
		if allocErr != nil {
			return nil
		}
		buf, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: s.label(name),
			Size:  uint64(floats * 4),
			Usage: usage,
		})
		if err != nil {
			allocErr = errors.Wrapf(err, "allocating %s buffer", name)
		}
		return buf
	}

	st.sample = mk("Sample", cfg.InputSize+cfg.OutputSize,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	st.hiddenParams = mk("HiddenParams", cfg.HiddenParamLen(),
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst|wgpu.BufferUsageCopySrc)
	st.outputParams = mk("OutputParams", cfg.OutputParamLen(),
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst|wgpu.BufferUsageCopySrc)
	st.hidden = mk("Hidden", cfg.HiddenSize,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	st.output = mk("Output", cfg.OutputSize,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	st.grads = mk("Grads", cfg.OutputSize+cfg.HiddenSize,
		wgpu.BufferUsageStorage)
	st.loss = mk("Loss", 1,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst|wgpu.BufferUsageCopySrc)
	st.staging = mk("Staging", cfg.HiddenSize+cfg.OutputSize+1,
		wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst)
	if allocErr != nil {
		st.destroy()
		return nil, allocErr
	}

	// initial weights land on the device before the store is handed out
	if err := s.queue.WriteBuffer(st.hiddenParams, 0, wgpu.ToBytes(w.PackHidden(cfg))); err != nil {
		st.destroy()
		return nil, errors.Wrap(err, "uploading hidden parameters")
	}
	if err := s.queue.WriteBuffer(st.outputParams, 0, wgpu.ToBytes(w.PackOutput(cfg))); err != nil {
		st.destroy()
		return nil, errors.Wrap(err, "uploading output parameters")
	}
	s.device.Poll(true, nil)

	return st, nil
}

// resetLoss zeroes the loss accumulator ahead of the next step.
func (st *store) resetLoss(s *session) error {
	return s.queue.WriteBuffer(st.loss, 0, wgpu.ToBytes(st.lossZero))
}

// writeSample uploads one input/target pair into the sample buffer.
func (st *store) writeSample(s *session, input, target []float32) error {
	n := copy(st.sampleScratch, input)
	copy(st.sampleScratch[n:], target)
	return s.queue.WriteBuffer(st.sample, 0, wgpu.ToBytes(st.sampleScratch))
}

// readSnapshot copies activations and the loss scalar into staging with one
// submit and suspends until the readback lands.
func (st *store) readSnapshot(s *session) (hidden, output []float32, loss float32, err error) {
	h := st.cfg.HiddenSize
	o := st.cfg.OutputSize

	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, nil, 0, err
	}
	encoder.CopyBufferToBuffer(st.hidden, 0, st.staging, 0, uint64(h*4))
	encoder.CopyBufferToBuffer(st.output, 0, st.staging, uint64(h*4), uint64(o*4))
	encoder.CopyBufferToBuffer(st.loss, 0, st.staging, uint64((h+o)*4), 4)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, nil, 0, err
	}
	s.queue.Submit(cmd)

	if err := s.await(st.staging); err != nil {
		return nil, nil, 0, err
	}
	defer st.staging.Unmap()

	data := st.staging.GetMappedRange(0, uint((h+o+1)*4))
	if data == nil {
		return nil, nil, 0, errors.New("mapped range unavailable")
	}
	floats := wgpu.FromBytes[float32](data)
	hidden = append([]float32(nil), floats[:h]...)
	output = append([]float32(nil), floats[h:h+o]...)
	loss = floats[h+o]
	return hidden, output, loss, nil
}

// readWeights downloads both parameter buffers into a fresh host copy. The
// one-shot staging buffer lives only for this call.
func (st *store) readWeights(s *session) (*mlp.Weights, error) {
	hl := st.cfg.HiddenParamLen()
	ol := st.cfg.OutputParamLen()

	stagingBuf, err := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: s.label("ParamsStaging"),
		Size:  uint64((hl + ol) * 4),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	defer stagingBuf.Destroy()

	encoder, err := s.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	encoder.CopyBufferToBuffer(st.hiddenParams, 0, stagingBuf, 0, uint64(hl*4))
	encoder.CopyBufferToBuffer(st.outputParams, 0, stagingBuf, uint64(hl*4), uint64(ol*4))
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	s.queue.Submit(cmd)

	if err := s.await(stagingBuf); err != nil {
		return nil, err
	}
	defer stagingBuf.Unmap()

	data := stagingBuf.GetMappedRange(0, uint((hl+ol)*4))
	if data == nil {
		return nil, errors.New("mapped range unavailable")
	}
	floats := wgpu.FromBytes[float32](data)

	cfg := st.cfg
	w := &mlp.Weights{
		Hidden:     make([]float32, cfg.InputSize*cfg.HiddenSize),
		HiddenBias: make([]float32, cfg.HiddenSize),
		Output:     make([]float32, cfg.HiddenSize*cfg.OutputSize),
		OutputBias: make([]float32, cfg.OutputSize),
	}
	w.UnpackHidden(cfg, floats[:hl])
	w.UnpackOutput(cfg, floats[hl:hl+ol])
	return w, nil
}

// destroy releases every buffer exactly once.
func (st *store) destroy() {
	bufs := []*wgpu.Buffer{
		st.sample, st.hiddenParams, st.outputParams,
		st.hidden, st.output, st.grads, st.loss, st.staging,
	}
	st.sample, st.hiddenParams, st.outputParams = nil, nil, nil
	st.hidden, st.output, st.grads, st.loss, st.staging = nil, nil, nil, nil, nil
	for _, b := range bufs {
		if b != nil {
			b.Destroy()
		}
	}
}
