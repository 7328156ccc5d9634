package mlp

// State is a point-in-time view of the network: the last sample pushed
// through it, the activations it produced, and the weights. The slices are
// replaced wholesale on every step, never mutated, so a caller may hold a
// State across steps and read it without locking. Weights is shared by
// reference and may lag the device copy until the session stops.
type State struct {
	Input   []float32
	Hidden  []float32
	Output  []float32
	Weights *Weights
}
