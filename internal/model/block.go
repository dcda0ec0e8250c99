package model

import (
	"github.com/samcharles93/phigo/internal/tensor"
)

// ResidualBlock is a parallel residual block: attention and the MLP both
// read the same normalised input and are summed with the unmodified input.
type ResidualBlock struct {
	norm *NormWeights
	eps  float32
	attn Attention
	fc1  *LinearWeights
	fc2  *LinearWeights
}

func newResidualBlock(cfg Config, w *LayerWeights) ResidualBlock {
	return ResidualBlock{
		norm: &w.Norm,
		eps:  cfg.LayerNormEps,
		attn: newAttention(cfg, w),
		fc1:  &w.FC1,
		fc2:  &w.FC2,
	}
}

// Forward returns attn(ln(x)) + fc2(gelu(fc1(ln(x)))) + x and the extended cache.
func (r *ResidualBlock) Forward(x *tensor.Mat, batch, seqLen int, mask *CausalMask, cache *LayerCache) (tensor.Mat, *LayerCache, error) {
	h := tensor.LayerNormMat(x, r.norm.Weight, r.norm.Bias, r.eps)

	out, cache, err := r.attn.Forward(&h, batch, seqLen, mask, cache)
	if err != nil {
		return tensor.Mat{}, nil, err
	}

	ff := tensor.LinearNew(&h, &r.fc1.W, r.fc1.B)
	tensor.GELUInPlace(ff.Data)
	ffOut := tensor.LinearNew(&ff, &r.fc2.W, r.fc2.B)

	tensor.AddMat(&out, &ffOut)
	tensor.AddMat(&out, x)
	return out, cache, nil
}
