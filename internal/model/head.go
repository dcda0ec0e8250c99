package model

import "github.com/samcharles93/phigo/internal/tensor"

// OutputProjection normalises the final hidden state and maps it to logits.
type OutputProjection struct {
	norm   *NormWeights
	linear *LinearWeights
	eps    float32
}

func newOutputProjection(cfg Config, w *Weights) OutputProjection {
	return OutputProjection{norm: &w.HeadNorm, linear: &w.Head, eps: cfg.LayerNormEps}
}

// Forward returns [rows, vocab] logits for every row of x.
func (o *OutputProjection) Forward(x *tensor.Mat) tensor.Mat {
	h := tensor.LayerNormMat(x, o.norm.Weight, o.norm.Bias, o.eps)
	return tensor.LinearNew(&h, &o.linear.W, o.linear.B)
}
