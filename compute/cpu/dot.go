package cpu

import "github.com/klauspost/cpuid/v2"

// dotStride computes the strided dot product sum of v[i]*m[i*stride], the
// access pattern of reading one column out of a row-major weight matrix.
var dotStride func(v, m []float32, stride int) float32 = dotStrideScalar

func init() {
	// Four independent accumulators only pay off when the core can retire
	// several FP multiply-adds per cycle.
	if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
		dotStride = dotStrideUnrolled4
	}
}

// Info describes the processor the engine runs on.
func Info() string {
	return cpuid.CPU.BrandName
}

func dotStrideScalar(v, m []float32, stride int) float32 {
	var sum float32
	for i := range v {
		sum += v[i] * m[i*stride]
	}
	return sum
}

func dotStrideUnrolled4(v, m []float32, stride int) float32 {
	var s0, s1, s2, s3 float32
	n := len(v)
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += v[i] * m[i*stride]
		s1 += v[i+1] * m[(i+1)*stride]
		s2 += v[i+2] * m[(i+2)*stride]
		s3 += v[i+3] * m[(i+3)*stride]
	}
	for ; i < n; i++ {
		s0 += v[i] * m[i*stride]
	}
	return (s0 + s1) + (s2 + s3)
}
