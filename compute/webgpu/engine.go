// Package webgpu implements the training engine on a WebGPU device. One
// engine owns one device session: the network parameters live in device
// buffers for the whole run, and every training step is two single-workgroup
// kernel dispatches with a full device drain between them, then one readback.
package webgpu

import (
	"math"

	"github.com/neurlang/gradnet/compute"
	"github.com/neurlang/gradnet/net/mlp"
	"github.com/pkg/errors"
)

type engine struct {
	cfg     mlp.Config
	session *session
	store   *store
	kernels *kernels
}

// Open acquires a device, allocates the parameter store seeded from w and
// compiles both kernels. It satisfies compute.Factory.
func Open(cfg mlp.Config, w *mlp.Weights) (compute.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(w.Hidden) != cfg.InputSize*cfg.HiddenSize || len(w.HiddenBias) != cfg.HiddenSize ||
		len(w.Output) != cfg.HiddenSize*cfg.OutputSize || len(w.OutputBias) != cfg.OutputSize {
		return nil, errors.New("weights shape does not match config")
	}

	s, err := acquire()
	if err != nil {
		return nil, err
	}
	st, err := newStore(s, cfg, w)
	if err != nil {
		s.release()
		return nil, err
	}
	k, err := buildKernels(s, st)
	if err != nil {
		st.destroy()
		s.release()
		return nil, errors.Wrap(err, "compiling kernels")
	}
	return &engine{cfg: cfg, session: s, store: st, kernels: k}, nil
}

// SessionID exposes the device session identity for diagnostics.
func (e *engine) SessionID() string {
	if e.session == nil {
		return ""
	}
	return e.session.id.String()
}

func (e *engine) check(input, target []float32) error {
	if e.session == nil {
		return errors.New("engine released")
	}
	if len(input) != e.cfg.InputSize {
		return errors.Errorf("input length %d, want %d", len(input), e.cfg.InputSize)
	}
	if target != nil && len(target) != e.cfg.OutputSize {
		return errors.Errorf("target length %d, want %d", len(target), e.cfg.OutputSize)
	}
	return nil
}

// Step runs the strictly ordered sub-steps of one training step. Any failure
// comes back as a *compute.DeviceFault naming the stage; a failed step is
// treated as never having happened.
func (e *engine) Step(input, target []float32) (compute.StepResult, error) {
	var zero compute.StepResult
	if err := e.check(input, target); err != nil {
		return zero, err
	}
	if target == nil {
		return zero, errors.New("step needs a target")
	}

	if err := e.store.resetLoss(e.session); err != nil {
		return zero, compute.Fault("loss reset", err)
	}
	if err := e.store.writeSample(e.session, input, target); err != nil {
		return zero, compute.Fault("sample upload", err)
	}
	if err := e.kernels.dispatch(e.session, e.kernels.forward, e.kernels.forwardBind, "ForwardPass"); err != nil {
		return zero, compute.Fault("forward dispatch", err)
	}
	if err := e.kernels.dispatch(e.session, e.kernels.backward, e.kernels.backwardBind, "BackwardPass"); err != nil {
		return zero, compute.Fault("backward dispatch", err)
	}
	hidden, output, loss, err := e.store.readSnapshot(e.session)
	if err != nil {
		return zero, compute.Fault("snapshot readback", err)
	}

	res := compute.StepResult{
		Loss:   float64(loss) / float64(e.cfg.OutputSize),
		Hidden: hidden,
		Output: output,
	}
	if math.Round(float64(output[0])) == float64(target[0]) {
		res.Accuracy = 1
	}
	return res, nil
}

// Infer uploads the input with a zeroed target slot and runs the forward
// kernel only.
func (e *engine) Infer(input []float32) ([]float32, error) {
	if err := e.check(input, nil); err != nil {
		return nil, err
	}
	if err := e.store.writeSample(e.session, input, make([]float32, e.cfg.OutputSize)); err != nil {
		return nil, compute.Fault("sample upload", err)
	}
	if err := e.kernels.dispatch(e.session, e.kernels.forward, e.kernels.forwardBind, "InferPass"); err != nil {
		return nil, compute.Fault("forward dispatch", err)
	}
	_, output, _, err := e.store.readSnapshot(e.session)
	if err != nil {
		return nil, compute.Fault("snapshot readback", err)
	}
	return output, nil
}

func (e *engine) Weights() (*mlp.Weights, error) {
	if e.session == nil {
		return nil, errors.New("engine released")
	}
	w, err := e.store.readWeights(e.session)
	if err != nil {
		return nil, compute.Fault("weights readback", err)
	}
	return w, nil
}

// Release tears down kernels, buffers and the device session, in that order.
// Safe to call more than once.
func (e *engine) Release() {
	if e.session == nil {
		return
	}
	e.kernels.release()
	e.store.destroy()
	e.session.release()
	e.session = nil
}
