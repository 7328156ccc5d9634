package trainer

// Status is the lifecycle position of a Session.
type Status int

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusReady
	StatusTraining
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusTraining:
		return "training"
	case StatusStopped:
		return "stopped"
	}
	return "unknown"
}

// Metrics is the "current" training view, overwritten with the epoch means
// every time an epoch closes and zeroed at the start of a run.
type Metrics struct {
	Loss     float64
	Epoch    int
	Accuracy float64
}

// SampleRecord is one step of history: which sample ran, what the network
// predicted, and the step loss. The history grows without bound; display
// layers truncate it themselves.
type SampleRecord struct {
	Epoch      int
	Input      []float32
	Target     []float32
	Prediction []float32
	Loss       float64
}

// EpochRecord is one completed epoch: means of the per-step loss and
// accuracy over that epoch's samples. Epochs count from 1.
type EpochRecord struct {
	Epoch    int
	Loss     float64
	Accuracy float64
}
