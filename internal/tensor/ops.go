package tensor

import (
	"math"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	if len(dst) != len(src) {
		panic(errShape)
	}
	for i := range dst {
		dst[i] += src[i]
	}
}

// AddMat adds the rows of src to the rows of dst.
func AddMat(dst, src *Mat) {
	if dst.R != src.R || dst.C != src.C {
		panic(errShape)
	}
	for i := 0; i < dst.R; i++ {
		Add(dst.Row(i), src.Row(i))
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LayerNorm normalises src to zero mean and unit variance, then applies the
// affine weight and bias. Statistics are accumulated in float64.
func LayerNorm(dst, src, weight, bias []float32, eps float32) {
	n := len(src)
	if len(dst) != n || len(weight) != n || len(bias) != n {
		panic(errShape)
	}
	var mean float64
	for _, v := range src {
		mean += float64(v)
	}
	mean /= float64(n)
	var variance float64
	for _, v := range src {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(n)
	inv := 1.0 / math.Sqrt(variance+float64(eps))
	for i, v := range src {
		dst[i] = float32((float64(v)-mean)*inv)*weight[i] + bias[i]
	}
}

// LayerNormMat applies LayerNorm row by row into a new matrix.
func LayerNormMat(x *Mat, weight, bias []float32, eps float32) Mat {
	out := NewMat(x.R, x.C)
	for i := 0; i < x.R; i++ {
		LayerNorm(out.Row(i), x.Row(i), weight, bias, eps)
	}
	return out
}

// Softmax applies the softmax function to x.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / sum
	for i := range x {
		x[i] = float32(float64(x[i]) * inv)
	}
}

// GELU is the exact (erf based) Gaussian error linear unit.
func GELU(x float32) float32 {
	v := float64(x)
	return float32(0.5 * v * (1 + math.Erf(v/math.Sqrt2)))
}

// GELUInPlace applies GELU to every element of x.
func GELUInPlace(x []float32) {
	for i, v := range x {
		x[i] = GELU(v)
	}
}
