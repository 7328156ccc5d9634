package webgpu

import (
	"math"
	"testing"

	"github.com/neurlang/gradnet/compute"
	"github.com/neurlang/gradnet/compute/cpu"
	"github.com/neurlang/gradnet/net/mlp"
	"github.com/pkg/errors"
)

// openOrSkip acquires a real device or skips on hosts without one.
func openOrSkip(t *testing.T, cfg mlp.Config, w *mlp.Weights) compute.Engine {
	t.Helper()
	e, err := Open(cfg, w)
	if errors.Is(err, compute.ErrUnsupportedBackend) || errors.Is(err, compute.ErrNoAdapter) {
		t.Skipf("no usable device: %v", err)
	}
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(mlp.Config{}, mlp.NewWeights(mlp.DefaultConfig(), 1))
	if !errors.Is(err, mlp.ErrInvalidConfig) {
		t.Errorf("Open(zero config) = %v, want ErrInvalidConfig", err)
	}
}

// One step on the device must agree with the host twin, which runs the same
// phases in the same order.
func TestStepMatchesHostEngine(t *testing.T) {
	cfg := mlp.DefaultConfig()
	w := mlp.NewWeights(cfg, 13)

	gpu := openOrSkip(t, cfg, w)
	defer gpu.Release()
	host, err := cpu.Open(cfg, w)
	if err != nil {
		t.Fatal(err)
	}
	defer host.Release()

	input := []float32{1, 0}
	target := []float32{1}
	for step := 0; step < 8; step++ {
		g, err := gpu.Step(input, target)
		if err != nil {
			t.Fatal(err)
		}
		h, err := host.Step(input, target)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(g.Loss-h.Loss) > 1e-4 {
			t.Fatalf("step %d: device loss %g, host loss %g", step, g.Loss, h.Loss)
		}
		for j := range g.Output {
			if math.Abs(float64(g.Output[j]-h.Output[j])) > 1e-4 {
				t.Fatalf("step %d output[%d]: device %g, host %g", step, j, g.Output[j], h.Output[j])
			}
		}
		if g.Accuracy != h.Accuracy {
			t.Fatalf("step %d: device accuracy %g, host accuracy %g", step, g.Accuracy, h.Accuracy)
		}
	}

	gw, err := gpu.Weights()
	if err != nil {
		t.Fatal(err)
	}
	hw, err := host.Weights()
	if err != nil {
		t.Fatal(err)
	}
	for i := range gw.Hidden {
		if math.Abs(float64(gw.Hidden[i]-hw.Hidden[i])) > 1e-3 {
			t.Fatalf("hidden weight %d drifted: device %g, host %g", i, gw.Hidden[i], hw.Hidden[i])
		}
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	cfg := mlp.DefaultConfig()
	e := openOrSkip(t, cfg, mlp.NewWeights(cfg, 3))
	e.Release()
	e.Release()
	if _, err := e.Step([]float32{0, 1}, []float32{1}); err == nil {
		t.Error("Step succeeded on a released engine")
	}
}
