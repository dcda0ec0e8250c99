package model

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// Config is the immutable geometry of the decoder.
type Config struct {
	MaxSequenceLength int
	VocabSize         int
	HiddenDim         int
	NumHeads          int
	NumLayers         int
	RotaryDim         int

	FFNDim       int
	RopeBase     float64
	LayerNormEps float32
}

// Phi2Config returns the geometry of the 2.7B Phi-2 checkpoint.
func Phi2Config() Config {
	return Config{
		MaxSequenceLength: 2048,
		VocabSize:         51200,
		HiddenDim:         2560,
		NumHeads:          32,
		NumLayers:         32,
		RotaryDim:         32,
		FFNDim:            4 * 2560,
		RopeBase:          10000,
		LayerNormEps:      1e-5,
	}
}

// HeadDim is the per-head channel count.
func (c Config) HeadDim() int {
	if c.NumHeads == 0 {
		return 0
	}
	return c.HiddenDim / c.NumHeads
}

// Validate checks the structural invariants of the geometry.
func (c Config) Validate() error {
	switch {
	case c.MaxSequenceLength <= 0:
		return mismatchf("max_sequence_length must be positive, got %d", c.MaxSequenceLength)
	case c.VocabSize <= 0:
		return mismatchf("vocab_size must be positive, got %d", c.VocabSize)
	case c.HiddenDim <= 0:
		return mismatchf("hidden_dim must be positive, got %d", c.HiddenDim)
	case c.NumHeads <= 0:
		return mismatchf("num_heads must be positive, got %d", c.NumHeads)
	case c.NumLayers <= 0:
		return mismatchf("num_layers must be positive, got %d", c.NumLayers)
	case c.HiddenDim%c.NumHeads != 0:
		return mismatchf("hidden_dim %d is not divisible by num_heads %d", c.HiddenDim, c.NumHeads)
	case c.RotaryDim < 0 || c.RotaryDim > c.HeadDim():
		return mismatchf("rotary_dim %d exceeds head_dim %d", c.RotaryDim, c.HeadDim())
	case c.RotaryDim%2 != 0:
		return mismatchf("rotary_dim %d must be even", c.RotaryDim)
	case c.FFNDim <= 0:
		return mismatchf("ffn_dim must be positive, got %d", c.FFNDim)
	case c.RopeBase <= 0:
		return mismatchf("rope base must be positive, got %g", c.RopeBase)
	case c.LayerNormEps <= 0:
		return mismatchf("layer norm eps must be positive, got %g", c.LayerNormEps)
	}
	return nil
}

// configJSON accepts the key spellings used by the MLX conversion, the
// original phi-msft release and the transformers "phi" model type.
type configJSON struct {
	// MLX ModelArgs
	MaxSequenceLength *int `json:"max_sequence_length"`
	NumVocab          *int `json:"num_vocab"`
	ModelDim          *int `json:"model_dim"`
	NumHeads          *int `json:"num_heads"`
	NumLayers         *int `json:"num_layers"`
	RotaryDim         *int `json:"rotary_dim"`

	// phi-msft
	NPositions       *int     `json:"n_positions"`
	NEmbd            *int     `json:"n_embd"`
	NHead            *int     `json:"n_head"`
	NLayer           *int     `json:"n_layer"`
	NInner           *int     `json:"n_inner"`
	LayerNormEpsilon *float64 `json:"layer_norm_epsilon"`

	// transformers
	VocabSize             *int     `json:"vocab_size"`
	HiddenSize            *int     `json:"hidden_size"`
	IntermediateSize      *int     `json:"intermediate_size"`
	NumHiddenLayers       *int     `json:"num_hidden_layers"`
	NumAttentionHeads     *int     `json:"num_attention_heads"`
	MaxPositionEmbeddings *int     `json:"max_position_embeddings"`
	PartialRotaryFactor   *float64 `json:"partial_rotary_factor"`
	RopeTheta             *float64 `json:"rope_theta"`
	LayerNormEps          *float64 `json:"layer_norm_eps"`
}

// ParseConfigJSON overlays a config.json onto the Phi-2 defaults and
// validates the result.
func ParseConfigJSON(data []byte) (Config, error) {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse model config: %w", err)
	}
	cfg := Phi2Config()
	ffnSet := false

	setInt(&cfg.MaxSequenceLength, raw.MaxSequenceLength, raw.NPositions, raw.MaxPositionEmbeddings)
	setInt(&cfg.VocabSize, raw.NumVocab, raw.VocabSize)
	setInt(&cfg.HiddenDim, raw.ModelDim, raw.NEmbd, raw.HiddenSize)
	setInt(&cfg.NumHeads, raw.NumHeads, raw.NHead, raw.NumAttentionHeads)
	setInt(&cfg.NumLayers, raw.NumLayers, raw.NLayer, raw.NumHiddenLayers)
	if setInt(&cfg.FFNDim, raw.NInner, raw.IntermediateSize) {
		ffnSet = true
	}
	if !ffnSet {
		cfg.FFNDim = 4 * cfg.HiddenDim
	}

	switch {
	case raw.RotaryDim != nil:
		cfg.RotaryDim = *raw.RotaryDim
	case raw.PartialRotaryFactor != nil:
		cfg.RotaryDim = int(math.Round(*raw.PartialRotaryFactor * float64(cfg.HeadDim())))
	}
	if raw.RopeTheta != nil {
		cfg.RopeBase = *raw.RopeTheta
	}
	switch {
	case raw.LayerNormEps != nil:
		cfg.LayerNormEps = float32(*raw.LayerNormEps)
	case raw.LayerNormEpsilon != nil:
		cfg.LayerNormEps = float32(*raw.LayerNormEpsilon)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setInt assigns the first non-nil candidate and reports whether one was found.
func setInt(dst *int, candidates ...*int) bool {
	for _, c := range candidates {
		if c != nil {
			*dst = *c
			return true
		}
	}
	return false
}
