package cpu

import (
	"math"
	"math/rand"
	"testing"
)

func TestDotStrideVariantsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, n := range []int{0, 1, 2, 3, 4, 5, 7, 8, 16, 33} {
		for _, stride := range []int{1, 2, 3, 5} {
			v := make([]float32, n)
			m := make([]float32, n*stride+1)
			for i := range v {
				v[i] = rng.Float32()*2 - 1
			}
			for i := range m {
				m[i] = rng.Float32()*2 - 1
			}
			a := dotStrideScalar(v, m, stride)
			b := dotStrideUnrolled4(v, m, stride)
			if math.Abs(float64(a-b)) > 1e-4 {
				t.Errorf("n=%d stride=%d: scalar %g vs unrolled %g", n, stride, a, b)
			}
		}
	}
}

func TestDotStrideKnownValue(t *testing.T) {
	v := []float32{1, 2, 3}
	m := []float32{10, 0, 20, 0, 30, 0}
	// stride 2 picks m[0], m[2], m[4]
	if got := dotStride(v, m, 2); got != 10+2*20+3*30 {
		t.Errorf("dotStride = %g, want 140", got)
	}
}

func TestInfo(t *testing.T) {
	t.Log("processor:", Info())
}
