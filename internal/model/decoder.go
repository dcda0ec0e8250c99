package model

import (
	"fmt"

	"github.com/samcharles93/phigo/internal/tensor"
)

// DecoderStack applies the residual blocks strictly in order.
type DecoderStack struct {
	blocks []ResidualBlock
}

func newDecoderStack(cfg Config, w *Weights) DecoderStack {
	blocks := make([]ResidualBlock, len(w.Layers))
	for i := range w.Layers {
		blocks[i] = newResidualBlock(cfg, &w.Layers[i])
	}
	return DecoderStack{blocks: blocks}
}

// Forward threads x through every block. A nil cache starts a fresh list;
// otherwise layer i consumes cache[i] and the returned list holds its
// extended successor.
func (d *DecoderStack) Forward(x tensor.Mat, batch, seqLen int, mask *CausalMask, cache CacheList) (tensor.Mat, CacheList, error) {
	if cache == nil {
		cache = make(CacheList, len(d.blocks))
	}
	if len(cache) != len(d.blocks) {
		return tensor.Mat{}, nil, invalidInputf("cache has %d layers, decoder has %d", len(cache), len(d.blocks))
	}
	for i := range d.blocks {
		out, layerCache, err := d.blocks[i].Forward(&x, batch, seqLen, mask, cache[i])
		if err != nil {
			return tensor.Mat{}, nil, fmt.Errorf("layer %d: %w", i, err)
		}
		cache[i] = layerCache
		x = out
	}
	return x, cache, nil
}
