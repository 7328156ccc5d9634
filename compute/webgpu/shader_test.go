package webgpu

import (
	"fmt"
	"strings"
	"testing"

	"github.com/neurlang/gradnet/net/mlp"
)

func TestKernelSourceBakesConfig(t *testing.T) {
	cfg := mlp.Config{InputSize: 3, HiddenSize: 7, OutputSize: 2, LearningRate: 0.125}
	fwd, bwd := kernelSources(cfg)

	for _, want := range []string{
		"const INPUT_SIZE: u32 = 3u;",
		"const HIDDEN_SIZE: u32 = 7u;",
		"const OUTPUT_SIZE: u32 = 2u;",
	} {
		if !strings.Contains(fwd, want) {
			t.Errorf("forward source missing %q", want)
		}
		if !strings.Contains(bwd, want) {
			t.Errorf("backward source missing %q", want)
		}
	}
	if !strings.Contains(bwd, "const LEARNING_RATE: f32 = 0.125;") {
		t.Error("backward source does not bake the learning rate")
	}
	if strings.Contains(fwd, "LEARNING_RATE") {
		t.Error("forward source has no business knowing the learning rate")
	}
}

func TestForwardBarrierOrdersPhases(t *testing.T) {
	fwd, _ := kernelSources(mlp.DefaultConfig())

	hiddenWrite := strings.Index(fwd, "hidden[idx] =")
	barrier := strings.Index(fwd, "storageBarrier()")
	outputWrite := strings.Index(fwd, "output[idx] =")
	if hiddenWrite < 0 || barrier < 0 || outputWrite < 0 {
		t.Fatal("forward source is missing a phase")
	}
	if !(hiddenWrite < barrier && barrier < outputWrite) {
		t.Errorf("forward phases out of order: hidden@%d barrier@%d output@%d",
			hiddenWrite, barrier, outputWrite)
	}
	if strings.Count(fwd, "storageBarrier()") != 1 {
		t.Errorf("forward source has %d barriers, want 1", strings.Count(fwd, "storageBarrier()"))
	}
}

func TestBackwardBarriersPrecedeUpdates(t *testing.T) {
	_, bwd := kernelSources(mlp.DefaultConfig())

	gradOut := strings.Index(bwd, "grads[idx] =")
	gradHid := strings.Index(bwd, "grads[OUTPUT_SIZE + idx] =")
	outUpdate := strings.Index(bwd, "output_params[i * OUTPUT_SIZE + idx] -=")
	hidUpdate := strings.Index(bwd, "hidden_params[i * HIDDEN_SIZE + idx] -=")
	if gradOut < 0 || gradHid < 0 || outUpdate < 0 || hidUpdate < 0 {
		t.Fatal("backward source is missing a phase")
	}

	firstBarrier := strings.Index(bwd, "storageBarrier()")
	secondBarrier := strings.LastIndex(bwd, "storageBarrier()")
	if firstBarrier == secondBarrier {
		t.Fatalf("backward source has %d barriers, want 2", strings.Count(bwd, "storageBarrier()"))
	}

	// gradient phases strictly before any weight mutation
	if !(gradOut < firstBarrier && firstBarrier < gradHid) {
		t.Error("output deltas and hidden deltas are not separated by a barrier")
	}
	if !(gradHid < secondBarrier && secondBarrier < outUpdate && secondBarrier < hidUpdate) {
		t.Error("weight updates are not ordered after the gradient phases")
	}
}

func TestBackwardLossAccumulatorIsAtomic(t *testing.T) {
	_, bwd := kernelSources(mlp.DefaultConfig())
	if !strings.Contains(bwd, "loss : atomic<u32>") {
		t.Error("loss binding is not an atomic scalar")
	}
	if !strings.Contains(bwd, "atomicCompareExchangeWeak(&loss") {
		t.Error("loss accumulation does not use the compare-exchange add")
	}
	if !strings.Contains(bwd, "err * err") {
		t.Error("loss accumulates something other than the squared error")
	}
}

func TestKernelSourceCache(t *testing.T) {
	cfg := mlp.Config{InputSize: 2, HiddenSize: 4, OutputSize: 1, LearningRate: 0.5}
	f1, b1 := kernelSources(cfg)
	f2, b2 := kernelSources(cfg)
	if f1 != f2 || b1 != b2 {
		t.Error("equal configs produced different sources")
	}

	other := cfg
	other.HiddenSize = 8
	f3, b3 := kernelSources(other)
	if f1 == f3 || b1 == b3 {
		t.Error("different configs share a source")
	}
}

func TestWorkItemsCoverEveryWidth(t *testing.T) {
	// every valid width must fit the fixed workgroup size baked into the
	// shaders
	for _, h := range []int{1, 16, 255, 256} {
		cfg := mlp.Config{InputSize: 2, HiddenSize: h, OutputSize: 1, LearningRate: 0.5}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("width %d rejected: %v", h, err)
		}
		if cfg.WorkItems() > 256 {
			t.Fatalf("width %d needs %d work-items, more than one workgroup", h, cfg.WorkItems())
		}
		fwd, _ := kernelSources(cfg)
		if !strings.Contains(fwd, "@workgroup_size(256)") {
			t.Fatal("forward kernel lost its fixed workgroup size")
		}
		if !strings.Contains(fwd, fmt.Sprintf("const HIDDEN_SIZE: u32 = %du;", h)) {
			t.Fatalf("width %d not baked into source", h)
		}
	}
}
