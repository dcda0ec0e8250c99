package model

import "slices"

// LayerCache holds the rotated keys and the values of every position seen so
// far by one decoder layer. Logically both tensors are
// [batch, heads, cached_len, head_dim]; each (batch, head) pair owns a
// contiguous [cached_len, head_dim] slab so a decode step appends in place.
type LayerCache struct {
	batch   int
	heads   int
	headDim int
	length  int
	keys    [][]float32
	values  [][]float32
}

func newLayerCache(batch, heads, headDim int) *LayerCache {
	return &LayerCache{
		batch:   batch,
		heads:   heads,
		headDim: headDim,
		keys:    make([][]float32, batch*heads),
		values:  make([][]float32, batch*heads),
	}
}

// Len is cached_len. A nil cache has length zero.
func (c *LayerCache) Len() int {
	if c == nil {
		return 0
	}
	return c.length
}

// Shape reports [batch, heads, cached_len, head_dim].
func (c *LayerCache) Shape() [4]int {
	if c == nil {
		return [4]int{}
	}
	return [4]int{c.batch, c.heads, c.length, c.headDim}
}

// Keys returns the [cached_len, head_dim] key slab of one (batch, head) pair.
func (c *LayerCache) Keys(b, h int) []float32 {
	return c.keys[b*c.heads+h][:c.length*c.headDim]
}

// Values returns the [cached_len, head_dim] value slab of one (batch, head) pair.
func (c *LayerCache) Values(b, h int) []float32 {
	return c.values[b*c.heads+h][:c.length*c.headDim]
}

// Clone deep-copies the cache so a session can be forked.
func (c *LayerCache) Clone() *LayerCache {
	if c == nil {
		return nil
	}
	out := newLayerCache(c.batch, c.heads, c.headDim)
	out.length = c.length
	for i := range c.keys {
		out.keys[i] = slices.Clone(c.keys[i])
		out.values[i] = slices.Clone(c.values[i])
	}
	return out
}

// extend appends n new positions for slab i. Each slab is touched by exactly
// one goroutine per step; commit publishes the new length once all slabs
// have been extended.
func (c *LayerCache) extend(i int, k, v []float32) {
	c.keys[i] = append(c.keys[i][:c.length*c.headDim], k...)
	c.values[i] = append(c.values[i][:c.length*c.headDim], v...)
}

func (c *LayerCache) slab(i, length int) (keys, values []float32) {
	return c.keys[i][:length*c.headDim], c.values[i][:length*c.headDim]
}

func (c *LayerCache) commit(n int) {
	c.length += n
}

// CacheList is the per-layer cache of one generation session, index-aligned
// with the decoder layers. A nil CacheList means no position has been seen.
//
// Forward takes ownership of the list it is given and returns the list that
// supersedes it. Callers must not retain or share the old value.
type CacheList []*LayerCache

// Len is the cached sequence length shared by every layer.
func (cl CacheList) Len() int {
	if len(cl) == 0 {
		return 0
	}
	return cl[0].Len()
}

// Clone deep-copies every layer.
func (cl CacheList) Clone() CacheList {
	if cl == nil {
		return nil
	}
	out := make(CacheList, len(cl))
	for i, c := range cl {
		out[i] = c.Clone()
	}
	return out
}

// validate checks that the list belongs to a model with cfg and a batch of
// the given size.
func (cl CacheList) validate(cfg Config, batch int) error {
	if cl == nil {
		return nil
	}
	if len(cl) != cfg.NumLayers {
		return invalidInputf("cache has %d layers, model has %d", len(cl), cfg.NumLayers)
	}
	n := cl.Len()
	for i, c := range cl {
		if c == nil {
			return invalidInputf("cache layer %d is absent", i)
		}
		if c.length != n {
			return invalidInputf("cache layer %d has length %d, layer 0 has %d", i, c.length, n)
		}
		if c.batch != batch || c.heads != cfg.NumHeads || c.headDim != cfg.HeadDim() {
			return invalidInputf("cache layer %d shape %v does not match batch %d", i, c.Shape(), batch)
		}
	}
	return nil
}
