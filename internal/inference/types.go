package inference

import (
	"context"
	"time"

	"github.com/samcharles93/phigo/internal/model"
)

// StreamFunc receives generated text as it is decoded. Chunks arrive in
// order and never contain the end-of-text marker.
type StreamFunc func(text string)

type Engine interface {
	Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error)
	Close() error
}

// Model is the forward surface a Session drives. *model.LanguageModel
// implements it.
type Model interface {
	ForwardLast(ids [][]int, cache model.CacheList) (*model.Logits, model.CacheList, error)
	Config() model.Config
}

// Request is a fully resolved generation request.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Seed        int64
}

type Result struct {
	Text  string
	Stats Stats
}

type Stats struct {
	PromptTokens    int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}
