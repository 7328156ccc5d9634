// Package datasets implements the gradnet supervised sample types
package datasets

// Sample is one supervised example: an input vector and the target vector the
// network should produce for it.
type Sample struct {
	Input  []float32
	Target []float32
}

// Table is an ordered set of samples. Training walks a table strictly in
// order, wrapping at the end, so the element order is part of the dataset.
type Table []Sample

// Clone deep-copies the table so a caller can hand it to a trainer and keep
// mutating its own copy.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for i, s := range t {
		out[i] = Sample{
			Input:  append([]float32(nil), s.Input...),
			Target: append([]float32(nil), s.Target...),
		}
	}
	return out
}
