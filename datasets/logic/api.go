package logic

import "github.com/neurlang/gradnet/datasets"

// The two-input truth tables enumerate their rows in the fixed order
// (0,0) (0,1) (1,0) (1,1). Training depends on this order.

func table(outputs [4]float32) datasets.Table {
	inputs := [4][2]float32{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	out := make(datasets.Table, 4)
	for i := range out {
		out[i] = datasets.Sample{
			Input:  []float32{inputs[i][0], inputs[i][1]},
			Target: []float32{outputs[i]},
		}
	}
	return out
}

// XOR is the classic non-linearly-separable task: true iff exactly one input
// is set.
func XOR() datasets.Table {
	return table([4]float32{0, 1, 1, 0})
}

// AND is true iff both inputs are set.
func AND() datasets.Table {
	return table([4]float32{0, 0, 0, 1})
}

// OR is true iff at least one input is set.
func OR() datasets.Table {
	return table([4]float32{0, 1, 1, 1})
}
