// Package inference implements the forward-only evaluation stage of gradnet
package inference

import (
	"math"

	"github.com/pkg/errors"

	"github.com/neurlang/gradnet/compute"
	"github.com/neurlang/gradnet/datasets"
)

// Prediction is one evaluated sample. Hit reports whether the rounded first
// output matched the first target, the same criterion training accuracy uses.
type Prediction struct {
	Input  []float32
	Target []float32
	Output []float32
	Hit    bool
}

// Table runs the forward pass over every sample and collects the outputs.
func Table(e compute.Engine, samples []datasets.Sample) ([]Prediction, error) {
	preds := make([]Prediction, 0, len(samples))
	for i, sample := range samples {
		out, err := e.Infer(sample.Input)
		if err != nil {
			return nil, errors.Wrapf(err, "inferring row %d", i)
		}
		hit := len(out) > 0 && len(sample.Target) > 0 &&
			math.Round(float64(out[0])) == float64(sample.Target[0])
		preds = append(preds, Prediction{
			Input:  sample.Input,
			Target: sample.Target,
			Output: out,
			Hit:    hit,
		})
	}
	return preds, nil
}

// Accuracy is the hit fraction over a prediction set, 0 for an empty set.
func Accuracy(preds []Prediction) float64 {
	if len(preds) == 0 {
		return 0
	}
	hits := 0
	for _, p := range preds {
		if p.Hit {
			hits++
		}
	}
	return float64(hits) / float64(len(preds))
}
