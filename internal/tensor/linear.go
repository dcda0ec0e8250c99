package tensor

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Linear computes dst = x·wᵀ + bias.
//
// w is stored [out, in] like every projection in the checkpoint, x is
// [n, in] and dst is [n, out]. bias may be nil.
func Linear(dst, x, w *Mat, bias []float32) {
	if x.C != w.C || dst.R != x.R || dst.C != w.R {
		panic(errShape)
	}
	if bias != nil && len(bias) != w.R {
		panic(errShape)
	}
	if x.R == 0 {
		return
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, x.General(), w.General(), 0, dst.General())
	if bias == nil {
		return
	}
	for i := 0; i < dst.R; i++ {
		Add(dst.Row(i), bias)
	}
}

// LinearNew allocates the output of Linear.
func LinearNew(x, w *Mat, bias []float32) Mat {
	dst := NewMat(x.R, w.R)
	Linear(&dst, x, w, bias)
	return dst
}

// MatMulT computes dst = alpha·a·bᵀ.
func MatMulT(dst, a, b *Mat, alpha float32) {
	if a.C != b.C || dst.R != a.R || dst.C != b.R {
		panic(errShape)
	}
	if a.R == 0 || b.R == 0 {
		return
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, alpha, a.General(), b.General(), 0, dst.General())
}

// MatMul computes dst = a·b.
func MatMul(dst, a, b *Mat) {
	if a.C != b.R || dst.R != a.R || dst.C != b.C {
		panic(errShape)
	}
	if a.R == 0 || b.C == 0 {
		return
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a.General(), b.General(), 0, dst.General())
}
