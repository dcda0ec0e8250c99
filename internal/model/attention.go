package model

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/phigo/internal/tensor"
)

// Attention is the rotary self-attention mixer of one decoder layer.
type Attention struct {
	numHeads int
	headDim  int
	qkv      *LinearWeights
	out      *LinearWeights
	rope     RotaryEncoder
	scale    float32
}

func newAttention(cfg Config, w *LayerWeights) Attention {
	hd := cfg.HeadDim()
	return Attention{
		numHeads: cfg.NumHeads,
		headDim:  hd,
		qkv:      &w.QKV,
		out:      &w.OutProj,
		rope:     NewRotaryEncoder(cfg.RotaryDim, hd, cfg.RopeBase),
		scale:    float32(1 / math.Sqrt(float64(hd))),
	}
}

// Forward attends h, which holds batch sequences of seqLen rows each, over
// the cached positions plus the new ones. mask is nil for single-position
// steps. A nil cache starts a new one. The returned cache is the input cache
// extended by seqLen positions.
func (a *Attention) Forward(h *tensor.Mat, batch, seqLen int, mask *CausalMask, cache *LayerCache) (tensor.Mat, *LayerCache, error) {
	if cache == nil {
		cache = newLayerCache(batch, a.numHeads, a.headDim)
	}
	offset := cache.Len()
	if mask != nil && (mask.Rows != seqLen || mask.Cols != offset+seqLen) {
		return tensor.Mat{}, nil, invalidInputf("mask is %dx%d, want %dx%d", mask.Rows, mask.Cols, seqLen, offset+seqLen)
	}

	qkv := tensor.LinearNew(h, &a.qkv.W, a.qkv.B)
	merged := tensor.NewMat(batch*seqLen, a.numHeads*a.headDim)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for b := 0; b < batch; b++ {
		for head := 0; head < a.numHeads; head++ {
			g.Go(func() (err error) {
				defer recoverInto(&err, fmt.Sprintf("attention head %d", head))
				a.attendHead(&qkv, &merged, cache, mask, b, head, seqLen, offset)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return tensor.Mat{}, nil, err
	}
	cache.commit(seqLen)

	return tensor.LinearNew(&merged, &a.out.W, a.out.B), cache, nil
}

func (a *Attention) attendHead(qkv, merged *tensor.Mat, cache *LayerCache, mask *CausalMask, b, head, seqLen, offset int) {
	d := a.numHeads * a.headDim
	lo, hi := head*a.headDim, (head+1)*a.headDim
	total := offset + seqLen

	q := tensor.NewMat(seqLen, a.headDim)
	k := tensor.NewMat(seqLen, a.headDim)
	v := tensor.NewMat(seqLen, a.headDim)
	for l := 0; l < seqLen; l++ {
		row := qkv.Row(b*seqLen + l)
		copy(q.Row(l), row[lo:hi])
		copy(k.Row(l), row[d+lo:d+hi])
		copy(v.Row(l), row[2*d+lo:2*d+hi])
	}
	a.rope.Apply(q.Data, seqLen, offset)
	a.rope.Apply(k.Data, seqLen, offset)

	slab := b*a.numHeads + head
	cache.extend(slab, k.Data, v.Data)
	keyData, valueData := cache.slab(slab, total)
	keys := tensor.NewMatFromData(total, a.headDim, keyData)
	values := tensor.NewMatFromData(total, a.headDim, valueData)

	scores := tensor.NewMat(seqLen, total)
	tensor.MatMulT(&scores, &q, &keys, a.scale)
	for i := 0; i < seqLen; i++ {
		row := scores.Row(i)
		if mask != nil {
			tensor.Add(row, mask.Row(i))
		}
		tensor.Softmax(row)
	}

	ctx := tensor.NewMat(seqLen, a.headDim)
	tensor.MatMul(&ctx, &scores, &values)
	for l := 0; l < seqLen; l++ {
		copy(merged.Row(b*seqLen + l)[lo:hi], ctx.Row(l))
	}
}

func recoverInto(err *error, where string) {
	if rec := recover(); rec != nil {
		*err = fmt.Errorf("panic in %s: %v", where, rec)
	}
}
