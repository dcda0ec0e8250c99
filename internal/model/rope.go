package model

import "math"

// RotaryEncoder rotates the leading Dims channels of each head vector.
//
// Pairing is half-split: channel i rotates with channel i+Dims/2. The angle
// for pair i at absolute position p is p·base^(-2i/Dims).
type RotaryEncoder struct {
	Dims    int
	HeadDim int
	invFreq []float64
}

// NewRotaryEncoder precomputes the inverse frequencies.
func NewRotaryEncoder(dims, headDim int, base float64) RotaryEncoder {
	half := dims / 2
	inv := make([]float64, half)
	for i := range inv {
		inv[i] = math.Pow(base, -2*float64(i)/float64(dims))
	}
	return RotaryEncoder{Dims: dims, HeadDim: headDim, invFreq: inv}
}

// Apply rotates x in place. x holds one or more [seqLen, HeadDim] blocks
// laid out back to back, which is how a [B, H, L, head_dim] tensor is
// stored. Row p of every block is rotated as absolute position offset+p.
func (r RotaryEncoder) Apply(x []float32, seqLen, offset int) {
	if r.Dims == 0 || seqLen == 0 {
		return
	}
	if len(x)%(seqLen*r.HeadDim) != 0 {
		panic("rope: input is not a whole number of [seqLen, headDim] blocks")
	}
	half := r.Dims / 2
	cos := make([]float32, seqLen*half)
	sin := make([]float32, seqLen*half)
	for p := 0; p < seqLen; p++ {
		pos := float64(offset + p)
		for i := 0; i < half; i++ {
			s, c := math.Sincos(pos * r.invFreq[i])
			cos[p*half+i] = float32(c)
			sin[p*half+i] = float32(s)
		}
	}
	rows := len(x) / r.HeadDim
	for row := 0; row < rows; row++ {
		p := row % seqLen
		v := x[row*r.HeadDim : row*r.HeadDim+r.Dims]
		cs := cos[p*half : (p+1)*half]
		sn := sin[p*half : (p+1)*half]
		for i := 0; i < half; i++ {
			x0 := v[i]
			x1 := v[i+half]
			v[i] = x0*cs[i] - x1*sn[i]
			v[i+half] = x0*sn[i] + x1*cs[i]
		}
	}
}
