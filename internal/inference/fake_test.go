package inference

import (
	"errors"
	"fmt"

	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/tensor"
	"github.com/samcharles93/phigo/internal/toy"
)

// scriptedModel returns logits whose argmax walks through script, repeating
// the final entry. It tracks a context length but keeps no real cache.
type scriptedModel struct {
	cfg     model.Config
	script  []int
	calls   int
	length  int
	fed     [][]int
	panicAt int
}

func newScripted(script ...int) *scriptedModel {
	cfg := toy.Config()
	return &scriptedModel{cfg: cfg, script: script, panicAt: -1}
}

func (m *scriptedModel) Config() model.Config { return m.cfg }

func (m *scriptedModel) ForwardLast(ids [][]int, cache model.CacheList) (*model.Logits, model.CacheList, error) {
	if m.calls == m.panicAt {
		panic("forward boom")
	}
	if m.length+len(ids[0]) > m.cfg.MaxSequenceLength {
		return nil, nil, fmt.Errorf("%w: scripted", model.ErrContextOverflow)
	}
	m.length += len(ids[0])
	m.fed = append(m.fed, append([]int(nil), ids[0]...))

	id := m.script[min(m.calls, len(m.script)-1)]
	m.calls++
	out := tensor.NewMat(1, m.cfg.VocabSize)
	out.Row(0)[id] = 1
	return &model.Logits{Batch: 1, SeqLen: 1, Data: out}, cache, nil
}

func ids(s string) []int {
	out := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = int(s[i])
	}
	return out
}

type failingTokenizer struct {
	encodeErr   error
	encodePanic bool
}

func (f failingTokenizer) Encode(string) ([]int, error) {
	if f.encodePanic {
		panic("encode boom")
	}
	return nil, f.encodeErr
}

func (failingTokenizer) Decode([]int) (string, error) {
	return "", errors.New("decode failed")
}
