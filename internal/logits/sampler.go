// Package logits turns next-token scores into token ids.
package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalidSamplingParameter reports a temperature that is negative or not
// a finite number.
var ErrInvalidSamplingParameter = errors.New("invalid_sampling_parameter")

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
}

// Validate rejects temperatures a Sampler cannot use.
func (c SamplerConfig) Validate() error {
	t := float64(c.Temperature)
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("%w: temperature %v", ErrInvalidSamplingParameter, c.Temperature)
	}
	return nil
}

// Sampler draws token ids from logits. A Sampler owns its random stream and
// must not be shared between sessions.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
// Temperature zero selects greedy decoding.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: cfg.Temperature == 0,
	}, nil
}

// Greedy reports whether the sampler always takes the argmax.
func (s *Sampler) Greedy() bool { return s.greedy }

// Sample draws a single index from the provided logits vector.
//
// With temperature zero the index of the largest logit is returned, the
// lowest index winning ties. Otherwise the logits are divided by the
// temperature, normalised with a max-subtracted softmax and one index is
// drawn from the resulting categorical distribution.
func (s *Sampler) Sample(logits []float32) int {
	if s.greedy {
		return argmax(logits)
	}
	prob := s.distribution(logits)
	if prob == nil {
		return argmax(logits)
	}

	r := s.rng.Float64()
	var c float64
	for i, p := range prob {
		c += p
		if r < c {
			return i
		}
	}
	// rounding left the cumulative sum just under one
	for i := len(prob) - 1; i >= 0; i-- {
		if prob[i] > 0 {
			return i
		}
	}
	return argmax(logits)
}

// distribution fills s.prob with softmax(logits/T). It returns nil when the
// logits carry no finite mass.
func (s *Sampler) distribution(logits []float32) []float64 {
	if len(logits) == 0 {
		panic("sample: empty logits")
	}
	if cap(s.prob) < len(logits) {
		s.prob = make([]float64, len(logits))
	}
	prob := s.prob[:len(logits)]

	invTemp := 1 / float64(s.cfg.Temperature)
	maxv := math.Inf(-1)
	for _, l := range logits {
		if v := float64(l) * invTemp; v > maxv {
			maxv = v
		}
	}
	if math.IsInf(maxv, 0) || math.IsNaN(maxv) {
		return nil
	}

	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l)*invTemp - maxv)
		prob[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) {
		return nil
	}
	invSum := 1 / sum
	for i := range prob {
		prob[i] *= invSum
	}
	return prob
}

// argmax returns the index of the maximum value in the slice. If the slice is empty it panics.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}
