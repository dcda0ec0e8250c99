package inference

import (
	"fmt"
	"sync/atomic"

	"github.com/samcharles93/phigo/internal/logits"
)

// Server-side defaults applied when a request leaves a field out.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// RequestOptions carries the optional fields of an incoming request. A nil
// pointer means the caller did not set the field.
type RequestOptions struct {
	Prompt      string
	MaxTokens   *int
	Temperature *float64
	Seed        *int64
}

// Defaults are the server-wide values requests fall back to.
type Defaults struct {
	Temperature float64
	MaxTokens   int
	Seeds       *SeedSource
}

// ResolveRequest fills unset fields from defaults. A requested max_tokens is
// clamped to the server maximum.
func ResolveRequest(opts RequestOptions, defaults Defaults) (Request, error) {
	req := Request{
		Prompt:      opts.Prompt,
		MaxTokens:   defaults.MaxTokens,
		Temperature: defaults.Temperature,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}

	if opts.MaxTokens != nil {
		if *opts.MaxTokens < 1 {
			return Request{}, fmt.Errorf("%w: max_tokens must be at least 1, got %d", ErrInvalidMaxTokens, *opts.MaxTokens)
		}
		req.MaxTokens = min(*opts.MaxTokens, req.MaxTokens)
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if err := (logits.SamplerConfig{Temperature: float32(req.Temperature)}).Validate(); err != nil {
		return Request{}, err
	}

	switch {
	case opts.Seed != nil:
		req.Seed = *opts.Seed
	case defaults.Seeds != nil:
		req.Seed = defaults.Seeds.Next()
	}
	return req, nil
}

// SeedSource derives a distinct seed for every session from one base seed,
// so a restarted server with the same base replays the same sequence.
type SeedSource struct {
	base uint64
	n    atomic.Uint64
}

func NewSeedSource(base int64) *SeedSource {
	return &SeedSource{base: uint64(base)}
}

// Next returns the seed for the next session.
func (s *SeedSource) Next() int64 {
	return int64(splitmix64(s.base + s.n.Add(1)*0x9e3779b97f4a7c15))
}

func splitmix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
