package api

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/phigo/internal/inference"
)

// EngineProvider runs fn with an engine once the request may start
// generating. The context passed to fn carries the request deadline.
type EngineProvider interface {
	WithEngine(ctx context.Context, fn func(ctx context.Context, engine inference.Engine) error) error
}

type EngineProviderConfig struct {
	// MaxSessions bounds concurrent generations. Zero or less means one.
	MaxSessions int64
	// RequestTimeout bounds the wait for a slot plus generation. Zero
	// disables it.
	RequestTimeout time.Duration
}

// BoundedEngineProvider shares one engine between at most MaxSessions
// concurrent requests. Waiting requests queue on a weighted semaphore and
// leave the queue when their context ends.
type BoundedEngineProvider struct {
	engine  inference.Engine
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewBoundedEngineProvider(engine inference.Engine, cfg EngineProviderConfig) *BoundedEngineProvider {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	return &BoundedEngineProvider{
		engine:  engine,
		sem:     semaphore.NewWeighted(cfg.MaxSessions),
		timeout: cfg.RequestTimeout,
	}
}

func (p *BoundedEngineProvider) WithEngine(ctx context.Context, fn func(ctx context.Context, engine inference.Engine) error) error {
	if p == nil || p.engine == nil {
		return ErrEngineUnavailable
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, p.engine)
}
