package tensor

import (
	"math/rand"

	"gonum.org/v1/gonum/blas/blas32"
)

// Mat represents a dense row‑major matrix of float32 values.
//
// R and C represent the number of rows and columns respectively.  Stride is the
// number of elements between the starts of two consecutive rows (for row‑major
// matrices this is equal to C).  Data holds the flattened matrix values.
//
// A batch of hidden states [B, L, D] is stored as a Mat with B*L rows, row
// b*L+l holding position l of sequence b.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a new matrix with the given number of rows and columns.
// The underlying slice is zero initialised.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic(errNegativeDim)
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float32, r*c),
	}
}

// NewMatFromData creates a matrix from existing data.
// It checks that the data length matches r*c.
func NewMatFromData(r, c int, data []float32) Mat {
	if r < 0 || c < 0 {
		panic(errNegativeDim)
	}
	if r*c != len(data) {
		panic(errDataMismatch)
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   data,
	}
}

// Row returns a view of the i‑th row of the matrix.  Modifications to the
// returned slice update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic(errRowRange)
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// Rows returns a view of rows [lo, hi).
func (m *Mat) Rows(lo, hi int) Mat {
	if lo < 0 || hi > m.R || lo > hi {
		panic(errRowRange)
	}
	if lo == hi {
		return Mat{C: m.C, Stride: m.Stride}
	}
	return Mat{
		R:      hi - lo,
		C:      m.C,
		Stride: m.Stride,
		Data:   m.Data[lo*m.Stride : (hi-1)*m.Stride+m.C],
	}
}

// Clone returns a compact deep copy of m.
func (m *Mat) Clone() Mat {
	out := NewMat(m.R, m.C)
	for i := 0; i < m.R; i++ {
		copy(out.Row(i), m.Row(i))
	}
	return out
}

// General exposes m to gonum's BLAS routines without copying.
func (m *Mat) General() blas32.General {
	return blas32.General{
		Rows:   m.R,
		Cols:   m.C,
		Stride: m.Stride,
		Data:   m.Data,
	}
}

// FillRand fills the matrix with reproducible pseudo‑random values in
// (-scale/2, scale/2).  The seed controls the random sequence; multiple calls
// with the same seed produce identical matrices.
func FillRand(m *Mat, seed int64, scale float32) {
	FillRandSlice(m.Data, seed, scale)
}

// FillRandSlice is FillRand for a bare vector.
func FillRandSlice(dst []float32, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range dst {
		dst[i] = (rng.Float32() - 0.5) * scale
	}
}

var (
	errNegativeDim  = fmtError("negative dimension for matrix")
	errDataMismatch = fmtError("data length mismatch")
	errRowRange     = fmtError("row index out of range")
	errShape        = fmtError("shape mismatch")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
