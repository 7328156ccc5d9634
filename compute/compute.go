// Package compute defines the contract between the training orchestrator and
// the engines that execute training steps, plus the error taxonomy shared by
// every backend.
package compute

import (
	"fmt"

	"github.com/neurlang/gradnet/net/mlp"
	"github.com/pkg/errors"
)

// ErrUnsupportedBackend is returned when the backend cannot run on this host
// at all, before any adapter negotiation happens.
var ErrUnsupportedBackend = errors.New("compute backend unsupported on this host")

// ErrNoAdapter is returned when the backend exists but no usable device was
// granted: adapter enumeration came back empty or the device request was
// refused.
var ErrNoAdapter = errors.New("no compute adapter available")

// DeviceFault reports a failure of an already-acquired device in the middle
// of training. Faults are terminal for the session; the step that faulted is
// treated as never having happened.
type DeviceFault struct {
	Op  string // the step stage that failed, e.g. "forward dispatch"
	Err error
}

func (f *DeviceFault) Error() string {
	return fmt.Sprintf("device fault during %s: %v", f.Op, f.Err)
}

func (f *DeviceFault) Unwrap() error { return f.Err }

// Fault wraps err into a *DeviceFault naming the failed stage.
func Fault(op string, err error) error {
	return &DeviceFault{Op: op, Err: err}
}

// StepResult is what one completed training step hands back to the
// orchestrator. Hidden and Output are freshly allocated each step.
type StepResult struct {
	// Loss is the mean squared error of this step's forward pass,
	// sum of squared output errors divided by the output size.
	Loss float64
	// Accuracy is 1 when the rounded first output matches the first target,
	// else 0.
	Accuracy float64
	// Hidden and Output are the activations the step produced.
	Hidden []float32
	Output []float32
}

// Engine executes training steps against one device session. Engines are not
// safe for concurrent use; the orchestrator serializes all calls.
type Engine interface {
	// Step runs one full gradient-descent step on a single sample and
	// returns its metrics and activations. On error the device state is
	// unspecified and the session should be released.
	Step(input, target []float32) (StepResult, error)

	// Infer runs the forward pass only and returns the output activations.
	Infer(input []float32) ([]float32, error)

	// Weights reads the current parameters back from the device into a
	// fresh host copy.
	Weights() (*mlp.Weights, error)

	// Release frees the device resources. Safe to call more than once.
	Release()
}

// Factory opens an engine for the given config, seeding its parameters from
// w. The engine takes its own copy; the caller keeps ownership of w.
type Factory func(cfg mlp.Config, w *mlp.Weights) (Engine, error)
