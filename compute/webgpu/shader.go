package webgpu

import (
	"fmt"
	"sync"

	"github.com/neurlang/gradnet/net/mlp"
)

// Kernel source is a pure function of the config: the dimensions and the
// learning rate are baked in as WGSL constants, so equal configs share one
// cached pair of sources across engines.
var (
	sourceMu    sync.Mutex
	sourceCache = map[mlp.Config][2]string{}
)

func kernelSources(cfg mlp.Config) (forward, backward string) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	if s, ok := sourceCache[cfg]; ok {
		return s[0], s[1]
	}
	s := [2]string{forwardWGSL(cfg), backwardWGSL(cfg)}
	sourceCache[cfg] = s
	return s[0], s[1]
}

// Both kernels run as a single workgroup so the storage barriers order the
// layer phases across every invocation. Config.Validate keeps the layer
// widths at or under the workgroup size.

func forwardWGSL(cfg mlp.Config) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> sample : array<f32>;
		@group(0) @binding(1) var<storage, read> hidden_params : array<f32>;
		@group(0) @binding(2) var<storage, read> output_params : array<f32>;
		@group(0) @binding(3) var<storage, read_write> hidden : array<f32>;
		@group(0) @binding(4) var<storage, read_write> output : array<f32>;

		const INPUT_SIZE: u32 = %du;
		const HIDDEN_SIZE: u32 = %du;
		const OUTPUT_SIZE: u32 = %du;

		fn sigmoid(x: f32) -> f32 {
			return 1.0 / (1.0 + exp(-x));
		}

		@compute @workgroup_size(256)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;

			// hidden phase: idx is a hidden neuron
			if (idx < HIDDEN_SIZE) {
				var sum: f32 = hidden_params[INPUT_SIZE * HIDDEN_SIZE + idx];
				for (var i: u32 = 0u; i < INPUT_SIZE; i++) {
					sum += sample[i] * hidden_params[i * HIDDEN_SIZE + idx];
				}
				hidden[idx] = sigmoid(sum);
			}

			storageBarrier();

			// output phase: idx is an output neuron
			if (idx < OUTPUT_SIZE) {
				var sum: f32 = output_params[HIDDEN_SIZE * OUTPUT_SIZE + idx];
				for (var i: u32 = 0u; i < HIDDEN_SIZE; i++) {
					sum += hidden[i] * output_params[i * OUTPUT_SIZE + idx];
				}
				output[idx] = sigmoid(sum);
			}
		}
	`, cfg.InputSize, cfg.HiddenSize, cfg.OutputSize)
}

func backwardWGSL(cfg mlp.Config) string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> sample : array<f32>;
		@group(0) @binding(1) var<storage, read> hidden : array<f32>;
		@group(0) @binding(2) var<storage, read> output : array<f32>;
		@group(0) @binding(3) var<storage, read_write> hidden_params : array<f32>;
		@group(0) @binding(4) var<storage, read_write> output_params : array<f32>;
		@group(0) @binding(5) var<storage, read_write> grads : array<f32>;
		@group(0) @binding(6) var<storage, read_write> loss : atomic<u32>;

		const INPUT_SIZE: u32 = %du;
		const HIDDEN_SIZE: u32 = %du;
		const OUTPUT_SIZE: u32 = %du;
		const LEARNING_RATE: f32 = %g;

		// f32 add on the bit-packed scalar; WGSL has no float atomics
		fn loss_add(v: f32) {
			var old = atomicLoad(&loss);
			loop {
				let updated = bitcast<u32>(bitcast<f32>(old) + v);
				let r = atomicCompareExchangeWeak(&loss, old, updated);
				if (r.exchanged) { break; }
				old = r.old_value;
			}
		}

		@compute @workgroup_size(256)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x;

			// output deltas, squared error into the loss accumulator
			if (idx < OUTPUT_SIZE) {
				let pred = output[idx];
				let err = pred - sample[INPUT_SIZE + idx];
				grads[idx] = err * pred * (1.0 - pred);
				loss_add(err * err);
			}

			storageBarrier();

			// hidden deltas against the not-yet-updated output weights
			if (idx < HIDDEN_SIZE) {
				var sum: f32 = 0.0;
				for (var j: u32 = 0u; j < OUTPUT_SIZE; j++) {
					sum += grads[j] * output_params[idx * OUTPUT_SIZE + j];
				}
				let act = hidden[idx];
				grads[OUTPUT_SIZE + idx] = sum * act * (1.0 - act);
			}

			storageBarrier();

			// descent; idx owns column idx of its layer, so no slot is
			// written by two invocations
			if (idx < OUTPUT_SIZE) {
				let g = grads[idx];
				for (var i: u32 = 0u; i < HIDDEN_SIZE; i++) {
					output_params[i * OUTPUT_SIZE + idx] -= LEARNING_RATE * g * hidden[i];
				}
				output_params[HIDDEN_SIZE * OUTPUT_SIZE + idx] -= LEARNING_RATE * g;
			}
			if (idx < HIDDEN_SIZE) {
				let g = grads[OUTPUT_SIZE + idx];
				for (var i: u32 = 0u; i < INPUT_SIZE; i++) {
					hidden_params[i * HIDDEN_SIZE + idx] -= LEARNING_RATE * g * sample[i];
				}
				hidden_params[INPUT_SIZE * HIDDEN_SIZE + idx] -= LEARNING_RATE * g;
			}
		}
	`, cfg.InputSize, cfg.HiddenSize, cfg.OutputSize, cfg.LearningRate)
}
