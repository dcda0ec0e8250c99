package inference

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/samcharles93/phigo/internal/logits"
	"github.com/samcharles93/phigo/internal/metrics"
	"github.com/samcharles93/phigo/internal/model"
)

// State is the position of a Session in its lifecycle.
type State int

const (
	StateStart State = iota
	StatePromptPass
	StateDecodeStep
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StatePromptPass:
		return "prompt_pass"
	case StateDecodeStep:
		return "decode_step"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ForwardObserver is told about every completed forward pass.
type ForwardObserver func(phase string, tokens int, d time.Duration)

// Session is one autoregressive generation. It owns its cache and sampler
// and is not safe for concurrent use.
//
// The session never stops on its own: the caller decides when enough
// tokens have been produced and calls Close or stops ranging over Tokens.
type Session struct {
	model    Model
	sampler  *logits.Sampler
	prompt   []int
	cache    model.CacheList
	last     int
	state    State
	produced int
	peak     int
	observe  ForwardObserver
}

type SessionOption func(*Session)

// WithForwardObserver installs a hook called after every forward pass.
func WithForwardObserver(fn ForwardObserver) SessionOption {
	return func(s *Session) { s.observe = fn }
}

// NewSession prepares a session for prompt. No forward pass runs until the
// first call to Next.
func NewSession(m Model, prompt []int, sampler *logits.Sampler, opts ...SessionOption) (*Session, error) {
	if m == nil {
		return nil, fmt.Errorf("model is required")
	}
	if sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if len(prompt) == 0 {
		return nil, fmt.Errorf("%w: empty prompt", model.ErrInvalidInput)
	}
	s := &Session{
		model:   m,
		sampler: sampler,
		prompt:  append([]int(nil), prompt...),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next advances the session by one token. The first call runs the prompt
// pass; each later call feeds the previous token back. The context is
// checked before every forward pass. Any error stops the session.
func (s *Session) Next(ctx context.Context) (int, error) {
	if s.state == StateStopped {
		return 0, ErrSessionStopped
	}
	if err := ctx.Err(); err != nil {
		s.Close()
		return 0, err
	}

	ids := [][]int{{s.last}}
	phase := metrics.PhaseDecode
	if s.state == StateStart {
		s.state = StatePromptPass
		ids = [][]int{s.prompt}
		phase = metrics.PhasePrompt
	}

	start := time.Now()
	out, cache, err := safeForward(s.model, ids, s.cache)
	if err != nil {
		s.Close()
		return 0, err
	}
	s.cache = cache
	s.peak = cache.Len()
	if s.observe != nil {
		s.observe(phase, len(ids[0]), time.Since(start))
	}

	id, err := safeSample(s.sampler, out.Last(0))
	if err != nil {
		s.Close()
		return 0, err
	}
	s.last = id
	s.produced++
	s.state = StateDecodeStep
	return id, nil
}

// Tokens yields tokens until the consumer stops ranging or an error occurs.
// An error is yielded once as the final pair. The session is closed when
// the iteration ends.
func (s *Session) Tokens(ctx context.Context) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		defer s.Close()
		for {
			id, err := s.Next(ctx)
			if err != nil {
				yield(0, err)
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// Close stops the session and releases its cache.
func (s *Session) Close() {
	s.state = StateStopped
	s.cache = nil
}

func (s *Session) State() State { return s.state }

// Produced is the number of tokens sampled so far.
func (s *Session) Produced() int { return s.produced }

// CacheLen is the number of positions currently held in the cache.
func (s *Session) CacheLen() int { return s.cache.Len() }

// PeakCacheLen is the largest cache the session held. It survives Close.
func (s *Session) PeakCacheLen() int { return s.peak }

func safeForward(m Model, ids [][]int, cache model.CacheList) (out *model.Logits, next model.CacheList, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Forward: %v", rec)
		}
	}()
	return m.ForwardLast(ids, cache)
}

func safeSample(s *logits.Sampler, row []float32) (id int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Sample: %v", rec)
		}
	}()
	return s.Sample(row), nil
}
