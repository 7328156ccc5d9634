package mlp

import "math/rand"

// Weights holds the host copy of the trainable parameters as four flat
// float32 arrays. During training the authoritative copy lives in device
// buffers; the host copy is rewritten in place when the session stops, so a
// snapshot taken mid-run may lag the device by a few steps.
type Weights struct {
	// Hidden is the input-to-hidden matrix, row-major: Hidden[i*HiddenSize+j]
	// connects input i to hidden neuron j.
	Hidden []float32
	// HiddenBias has one entry per hidden neuron.
	HiddenBias []float32
	// Output is the hidden-to-output matrix, row-major: Output[i*OutputSize+j]
	// connects hidden neuron i to output neuron j.
	Output []float32
	// OutputBias has one entry per output neuron.
	OutputBias []float32
}

// NewWeights draws every parameter uniformly from [-1, 1) using the given
// seed. The same seed and config always produce the same network.
func NewWeights(cfg Config, seed int64) *Weights {
	rng := rand.New(rand.NewSource(seed))
	draw := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = rng.Float32()*2 - 1
		}
		return v
	}
	return &Weights{
		Hidden:     draw(cfg.InputSize * cfg.HiddenSize),
		HiddenBias: draw(cfg.HiddenSize),
		Output:     draw(cfg.HiddenSize * cfg.OutputSize),
		OutputBias: draw(cfg.OutputSize),
	}
}

// PackHidden lays out the hidden matrix followed by the hidden biases, the
// layout the layer parameter buffers use on device.
func (w *Weights) PackHidden(cfg Config) []float32 {
	buf := make([]float32, cfg.HiddenParamLen())
	copy(buf, w.Hidden)
	copy(buf[cfg.HiddenBiasOffset():], w.HiddenBias)
	return buf
}

// PackOutput lays out the output matrix followed by the output biases.
func (w *Weights) PackOutput(cfg Config) []float32 {
	buf := make([]float32, cfg.OutputParamLen())
	copy(buf, w.Output)
	copy(buf[cfg.OutputBiasOffset():], w.OutputBias)
	return buf
}

// UnpackHidden rewrites the hidden matrix and biases from a packed buffer.
func (w *Weights) UnpackHidden(cfg Config, buf []float32) {
	copy(w.Hidden, buf[:cfg.HiddenBiasOffset()])
	copy(w.HiddenBias, buf[cfg.HiddenBiasOffset():cfg.HiddenParamLen()])
}

// UnpackOutput rewrites the output matrix and biases from a packed buffer.
func (w *Weights) UnpackOutput(cfg Config, buf []float32) {
	copy(w.Output, buf[:cfg.OutputBiasOffset()])
	copy(w.OutputBias, buf[cfg.OutputBiasOffset():cfg.OutputParamLen()])
}

// Clone returns an independent deep copy.
func (w *Weights) Clone() *Weights {
	c := &Weights{
		Hidden:     make([]float32, len(w.Hidden)),
		HiddenBias: make([]float32, len(w.HiddenBias)),
		Output:     make([]float32, len(w.Output)),
		OutputBias: make([]float32, len(w.OutputBias)),
	}
	c.CopyFrom(w)
	return c
}

// CopyFrom overwrites w's arrays in place with src's values. Lengths must
// already match; the arrays themselves are not reallocated, so pointers held
// elsewhere keep observing the update.
func (w *Weights) CopyFrom(src *Weights) {
	copy(w.Hidden, src.Hidden)
	copy(w.HiddenBias, src.HiddenBias)
	copy(w.Output, src.Output)
	copy(w.OutputBias, src.OutputBias)
}
