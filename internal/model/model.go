package model

import (
	"fmt"

	"github.com/samcharles93/phigo/internal/tensor"
)

// LanguageModel is the full decoder: embedding, residual stack and output
// head. It is read-only after construction and safe for concurrent use by
// independent sessions, each threading its own CacheList.
type LanguageModel struct {
	cfg     Config
	weights *Weights
	decoder DecoderStack
	head    OutputProjection
}

// New assembles a model from bound weights.
func New(cfg Config, w *Weights) (*LanguageModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, mismatchf("weights are nil")
	}
	if len(w.Layers) != cfg.NumLayers {
		return nil, mismatchf("weights have %d layers, config has %d", len(w.Layers), cfg.NumLayers)
	}
	if w.Embedding.R != cfg.VocabSize || w.Embedding.C != cfg.HiddenDim {
		return nil, &MismatchError{Name: nameEmbedding, Want: []int{cfg.VocabSize, cfg.HiddenDim}, Got: []int{w.Embedding.R, w.Embedding.C}}
	}
	return &LanguageModel{
		cfg:     cfg,
		weights: w,
		decoder: newDecoderStack(cfg, w),
		head:    newOutputProjection(cfg, w),
	}, nil
}

// Config returns the model geometry.
func (m *LanguageModel) Config() Config { return m.cfg }

// Logits holds [Batch, SeqLen, vocab] scores, row b*SeqLen+p for position p
// of sequence b.
type Logits struct {
	Batch  int
	SeqLen int
	Data   tensor.Mat
}

// At returns the logits row for position p of sequence b.
func (l *Logits) At(b, p int) []float32 {
	return l.Data.Row(b*l.SeqLen + p)
}

// Last returns the logits row of the final position of sequence b.
func (l *Logits) Last(b int) []float32 {
	return l.At(b, l.SeqLen-1)
}

// Forward runs token ids [B][L] through the model and returns logits for
// every position together with the extended cache. cache is consumed: after
// the call only the returned list is valid, and after an error neither is.
func (m *LanguageModel) Forward(ids [][]int, cache CacheList) (*Logits, CacheList, error) {
	return m.forward(ids, cache, false)
}

// ForwardLast is Forward projecting only the final position of each
// sequence, which is all a sampler needs.
func (m *LanguageModel) ForwardLast(ids [][]int, cache CacheList) (*Logits, CacheList, error) {
	return m.forward(ids, cache, true)
}

func (m *LanguageModel) forward(ids [][]int, cache CacheList, lastOnly bool) (*Logits, CacheList, error) {
	batch, seqLen, err := m.checkInput(ids, cache)
	if err != nil {
		return nil, nil, err
	}

	x := m.embed(ids, seqLen)
	var mask *CausalMask
	if seqLen > 1 {
		mask = NewCausalMask(seqLen, cache.Len())
	}

	h, cache, err := m.decoder.Forward(x, batch, seqLen, mask, cache)
	if err != nil {
		return nil, nil, err
	}

	if !lastOnly {
		return &Logits{Batch: batch, SeqLen: seqLen, Data: m.head.Forward(&h)}, cache, nil
	}
	last := tensor.NewMat(batch, m.cfg.HiddenDim)
	for b := 0; b < batch; b++ {
		copy(last.Row(b), h.Row(b*seqLen+seqLen-1))
	}
	return &Logits{Batch: batch, SeqLen: 1, Data: m.head.Forward(&last)}, cache, nil
}

func (m *LanguageModel) checkInput(ids [][]int, cache CacheList) (batch, seqLen int, err error) {
	batch = len(ids)
	if batch == 0 {
		return 0, 0, invalidInputf("empty batch")
	}
	seqLen = len(ids[0])
	if seqLen == 0 {
		return 0, 0, invalidInputf("empty sequence")
	}
	for b, row := range ids {
		if len(row) != seqLen {
			return 0, 0, invalidInputf("ragged batch: row %d has %d tokens, row 0 has %d", b, len(row), seqLen)
		}
		for _, id := range row {
			if id < 0 || id >= m.cfg.VocabSize {
				return 0, 0, invalidInputf("token id %d outside vocabulary of %d", id, m.cfg.VocabSize)
			}
		}
	}
	if err := cache.validate(m.cfg, batch); err != nil {
		return 0, 0, err
	}
	if cache.Len()+seqLen > m.cfg.MaxSequenceLength {
		return 0, 0, fmt.Errorf("%w: %d cached + %d new exceeds %d", ErrContextOverflow, cache.Len(), seqLen, m.cfg.MaxSequenceLength)
	}
	return batch, seqLen, nil
}

func (m *LanguageModel) embed(ids [][]int, seqLen int) tensor.Mat {
	x := tensor.NewMat(len(ids)*seqLen, m.cfg.HiddenDim)
	for b, row := range ids {
		for p, id := range row {
			copy(x.Row(b*seqLen+p), m.weights.Embedding.Row(id))
		}
	}
	return x
}
