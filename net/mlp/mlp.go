// Package mlp defines the fixed two-matrix network trained by gradnet:
// input to hidden to output, sigmoid on both hops, one weight matrix and one
// bias vector per hop. The dimensions and the learning rate are baked into
// the compute kernels as constants, so a Config is immutable for the lifetime
// of one training session.
package mlp

import (
	"math"

	"github.com/pkg/errors"
)

// MaxLayerWidth bounds the hidden and output sizes. Both compute backends run
// a training step as a single workgroup of this many work-items so that the
// layer phases inside a kernel can be ordered by storage barriers.
const MaxLayerWidth = 256

// ErrInvalidConfig reports a network configuration rejected before any device
// buffer is allocated.
var ErrInvalidConfig = errors.New("invalid network config")

// Config fixes the network dimensions and the learning rate for one training
// session. Comparable, so it can key kernel-source caches.
type Config struct {
	InputSize    int
	HiddenSize   int
	OutputSize   int
	LearningRate float64
}

// DefaultConfig is the two-input binary classifier the truth-table tasks use.
func DefaultConfig() Config {
	return Config{InputSize: 2, HiddenSize: 4, OutputSize: 1, LearningRate: 0.5}
}

// Validate reports whether the config can be compiled into kernels.
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "input size must be positive (got %d)", c.InputSize)
	}
	if c.HiddenSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "hidden size must be positive (got %d)", c.HiddenSize)
	}
	if c.OutputSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "output size must be positive (got %d)", c.OutputSize)
	}
	if c.LearningRate <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "learning rate must be positive (got %g)", c.LearningRate)
	}
	if c.HiddenSize > MaxLayerWidth {
		return errors.Wrapf(ErrInvalidConfig, "hidden size %d exceeds the %d work-item bound", c.HiddenSize, MaxLayerWidth)
	}
	if c.OutputSize > MaxLayerWidth {
		return errors.Wrapf(ErrInvalidConfig, "output size %d exceeds the %d work-item bound", c.OutputSize, MaxLayerWidth)
	}
	return nil
}

// Patch is a partial config update. Fields left at zero (or negative) keep
// the current value.
type Patch struct {
	InputSize    int
	HiddenSize   int
	OutputSize   int
	LearningRate float64
}

// Apply merges p into c and returns the result. The receiver is not modified.
func (c Config) Apply(p Patch) Config {
	if p.InputSize > 0 {
		c.InputSize = p.InputSize
	}
	if p.HiddenSize > 0 {
		c.HiddenSize = p.HiddenSize
	}
	if p.OutputSize > 0 {
		c.OutputSize = p.OutputSize
	}
	if p.LearningRate > 0 {
		c.LearningRate = p.LearningRate
	}
	return c
}

// Both backends pack one device buffer per layer: the row-major weight matrix
// first, the bias vector after it. The index formula i*outWidth+j connects
// source neuron i to destination neuron j.

// HiddenBiasOffset is the index of the first hidden bias in the packed
// hidden-layer parameter buffer.
func (c Config) HiddenBiasOffset() int { return c.InputSize * c.HiddenSize }

// OutputBiasOffset is the index of the first output bias in the packed
// output-layer parameter buffer.
func (c Config) OutputBiasOffset() int { return c.HiddenSize * c.OutputSize }

// HiddenParamLen is the element count of the packed hidden-layer buffer.
func (c Config) HiddenParamLen() int { return c.InputSize*c.HiddenSize + c.HiddenSize }

// OutputParamLen is the element count of the packed output-layer buffer.
func (c Config) OutputParamLen() int { return c.HiddenSize*c.OutputSize + c.OutputSize }

// WorkItems is the dispatch width of one kernel invocation: one work-item per
// destination neuron of the wider layer.
func (c Config) WorkItems() int {
	if c.HiddenSize > c.OutputSize {
		return c.HiddenSize
	}
	return c.OutputSize
}

// Sigmoid is the activation on both hops: 1/(1+e^-x).
func Sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
