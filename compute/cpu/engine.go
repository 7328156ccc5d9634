// Package cpu implements the training engine on the host processor. It runs
// the same phases as the webgpu kernels, one bounded goroutine sweep per
// phase, so training behaves the same with and without a GPU.
package cpu

import (
	"math"

	"github.com/neurlang/gradnet/compute"
	"github.com/neurlang/gradnet/net/mlp"
	"github.com/neurlang/gradnet/parallel"
	"github.com/pkg/errors"
)

type engine struct {
	cfg  mlp.Config
	rate float32

	// engine-owned parameter copy, mutated in place by Step
	w *mlp.Weights

	// scratch reused across steps
	hidden  []float32
	output  []float32
	gradOut []float32
	gradHid []float32
}

// Open creates a host engine seeded with a copy of w. It satisfies
// compute.Factory.
func Open(cfg mlp.Config, w *mlp.Weights) (compute.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(w.Hidden) != cfg.InputSize*cfg.HiddenSize || len(w.HiddenBias) != cfg.HiddenSize ||
		len(w.Output) != cfg.HiddenSize*cfg.OutputSize || len(w.OutputBias) != cfg.OutputSize {
		return nil, errors.New("weights shape does not match config")
	}
	return &engine{
		cfg:     cfg,
		rate:    float32(cfg.LearningRate),
		w:       w.Clone(),
		hidden:  make([]float32, cfg.HiddenSize),
		output:  make([]float32, cfg.OutputSize),
		gradOut: make([]float32, cfg.OutputSize),
		gradHid: make([]float32, cfg.HiddenSize),
	}, nil
}

// forward mirrors the forward kernel: a hidden sweep, then an output sweep.
// Each ForEach return is the storage barrier.
func (e *engine) forward(input []float32) {
	h := e.cfg.HiddenSize
	o := e.cfg.OutputSize
	parallel.ForEach(h, 0, func(j int) {
		e.hidden[j] = mlp.Sigmoid(e.w.HiddenBias[j] + dotStride(input, e.w.Hidden[j:], h))
	})
	parallel.ForEach(o, 0, func(j int) {
		e.output[j] = mlp.Sigmoid(e.w.OutputBias[j] + dotStride(e.hidden, e.w.Output[j:], o))
	})
}

// backward mirrors the backward kernel's four phases and returns the summed
// squared error of the pre-update outputs.
func (e *engine) backward(input, target []float32) float32 {
	h := e.cfg.HiddenSize
	o := e.cfg.OutputSize

	// output deltas
	parallel.ForEach(o, 0, func(j int) {
		err := e.output[j] - target[j]
		e.gradOut[j] = err * e.output[j] * (1 - e.output[j])
	})
	// the device accumulates this atomically in unspecified order; a serial
	// sum is the same value up to rounding
	var loss float32
	for j := 0; j < o; j++ {
		err := e.output[j] - target[j]
		loss += err * err
	}

	// hidden deltas against the not-yet-updated output weights
	parallel.ForEach(h, 0, func(i int) {
		sum := dotStride(e.gradOut, e.w.Output[i*o:], 1)
		e.gradHid[i] = sum * e.hidden[i] * (1 - e.hidden[i])
	})

	// descent, each destination neuron owning its weight column
	parallel.ForEach(o, 0, func(j int) {
		for i := 0; i < h; i++ {
			e.w.Output[i*o+j] -= e.rate * e.gradOut[j] * e.hidden[i]
		}
		e.w.OutputBias[j] -= e.rate * e.gradOut[j]
	})
	parallel.ForEach(h, 0, func(j int) {
		for i := 0; i < len(input); i++ {
			e.w.Hidden[i*h+j] -= e.rate * e.gradHid[j] * input[i]
		}
		e.w.HiddenBias[j] -= e.rate * e.gradHid[j]
	})
	return loss
}

func (e *engine) Step(input, target []float32) (compute.StepResult, error) {
	if e.w == nil {
		return compute.StepResult{}, errors.New("engine released")
	}
	if len(input) != e.cfg.InputSize {
		return compute.StepResult{}, errors.Errorf("input length %d, want %d", len(input), e.cfg.InputSize)
	}
	if len(target) != e.cfg.OutputSize {
		return compute.StepResult{}, errors.Errorf("target length %d, want %d", len(target), e.cfg.OutputSize)
	}

	e.forward(input)
	loss := e.backward(input, target)

	res := compute.StepResult{
		Loss:   float64(loss) / float64(e.cfg.OutputSize),
		Hidden: append([]float32(nil), e.hidden...),
		Output: append([]float32(nil), e.output...),
	}
	if math.Round(float64(res.Output[0])) == float64(target[0]) {
		res.Accuracy = 1
	}
	return res, nil
}

func (e *engine) Infer(input []float32) ([]float32, error) {
	if e.w == nil {
		return nil, errors.New("engine released")
	}
	if len(input) != e.cfg.InputSize {
		return nil, errors.Errorf("input length %d, want %d", len(input), e.cfg.InputSize)
	}
	e.forward(input)
	return append([]float32(nil), e.output...), nil
}

func (e *engine) Weights() (*mlp.Weights, error) {
	if e.w == nil {
		return nil, errors.New("engine released")
	}
	return e.w.Clone(), nil
}

func (e *engine) Release() {
	e.w = nil
}
