package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samcharles93/phigo/internal/logger"
	"github.com/samcharles93/phigo/internal/logits"
	"github.com/samcharles93/phigo/internal/metrics"
	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/tokenizer"
)

// DefaultDecodeChunk is how many generated ids are decoded at a time.
const DefaultDecodeChunk = 10

// EngineImpl runs one Session per request against a shared read-only model.
type EngineImpl struct {
	model       Model
	tokenizer   tokenizer.Tokenizer
	decodeChunk int
	metrics     *metrics.Metrics
	closer      io.Closer
}

type EngineOption func(*EngineImpl)

// WithDecodeChunk sets the decode and streaming granularity in tokens.
func WithDecodeChunk(n int) EngineOption {
	return func(e *EngineImpl) {
		if n > 0 {
			e.decodeChunk = n
		}
	}
}

// WithMetrics records forward timings and token counts.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *EngineImpl) { e.metrics = m }
}

// WithCloser attaches a resource released by Close.
func WithCloser(c io.Closer) EngineOption {
	return func(e *EngineImpl) { e.closer = c }
}

func NewEngine(m Model, tok tokenizer.Tokenizer, opts ...EngineOption) *EngineImpl {
	e := &EngineImpl{
		model:       m,
		tokenizer:   tok,
		decodeChunk: DefaultDecodeChunk,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *EngineImpl) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	err := e.closer.Close()
	e.closer = nil
	return err
}

// Generate encodes req.Prompt, pulls up to req.MaxTokens tokens from a new
// session and returns the decoded text cut before the end-of-text marker.
// Running into the context limit ends generation normally.
func (e *EngineImpl) Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sampler, err := logits.NewSampler(logits.SamplerConfig{
		Seed:        req.Seed,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, err
	}

	ids, err := safeEncode(e.tokenizer, req.Prompt)
	if err != nil {
		return nil, &TokenizationError{Op: "encode", Err: err}
	}
	if len(ids) == 0 {
		return nil, &TokenizationError{Op: "encode", Err: errors.New("prompt produced no tokens")}
	}
	if limit := e.model.Config().MaxSequenceLength; len(ids) > limit {
		return nil, fmt.Errorf("%w: prompt has %d tokens, limit is %d", model.ErrContextOverflow, len(ids), limit)
	}

	sess, err := NewSession(e.model, ids, sampler, WithForwardObserver(e.metrics.ObserveForward))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.metrics.SessionStarted()
	var pulled int
	defer func() { e.metrics.SessionFinished(pulled, sess.PeakCacheLen()) }()

	var sb strings.Builder
	emit := func(text string) {
		if text == "" {
			return
		}
		sb.WriteString(text)
		if stream != nil {
			stream(text)
		}
	}

	dec := newChunkDecoder(e.tokenizer, e.decodeChunk)
	if req.MaxTokens > 0 {
		for id, err := range sess.Tokens(ctx) {
			if err != nil {
				if errors.Is(err, model.ErrContextOverflow) {
					break
				}
				return nil, err
			}
			pulled++
			text, err := dec.push(id)
			if err != nil {
				return nil, err
			}
			emit(text)
			if dec.done || pulled >= req.MaxTokens {
				break
			}
		}
	}
	sess.Close()

	text, err := dec.flush(true)
	if err != nil {
		return nil, err
	}
	emit(text)

	stats := Stats{
		PromptTokens:    len(ids),
		TokensGenerated: pulled,
		Duration:        time.Since(start),
	}
	if stats.Duration.Seconds() > 0 {
		stats.TPS = float64(stats.TokensGenerated) / stats.Duration.Seconds()
	}
	logger.FromContext(ctx).Debug("generation finished",
		"prompt_tokens", stats.PromptTokens,
		"generated_tokens", stats.TokensGenerated,
		"stopped_on_marker", dec.done,
		"tps", fmt.Sprintf("%.2f", stats.TPS),
	)

	return &Result{
		Text:  strings.TrimSpace(sb.String()),
		Stats: stats,
	}, nil
}
