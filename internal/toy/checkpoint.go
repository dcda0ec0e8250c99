package toy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/safetensors"
)

type configFile struct {
	ModelType             string  `json:"model_type"`
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	IntermediateSize      int     `json:"intermediate_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	PartialRotaryFactor   float64 `json:"partial_rotary_factor"`
	RopeTheta             float64 `json:"rope_theta"`
	LayerNormEps          float64 `json:"layer_norm_eps"`
}

type addedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

type tokenizerFile struct {
	AddedTokens  []addedToken   `json:"added_tokens"`
	PreTokenizer map[string]any `json:"pre_tokenizer"`
	Model        struct {
		Type   string         `json:"type"`
		Vocab  map[string]int `json:"vocab"`
		Merges []string       `json:"merges"`
	} `json:"model"`
}

// WriteCheckpoint writes a complete checkpoint directory for cfg: weights
// in model.safetensors, config.json and a byte-level tokenizer.json whose
// ids agree with Tokenizer for printable ASCII, space and newline.
func WriteCheckpoint(dir string, cfg model.Config, seed int64) error {
	if cfg.VocabSize <= EndOfTextID {
		return fmt.Errorf("vocabulary of %d cannot hold the end-of-text id %d", cfg.VocabSize, EndOfTextID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	w := NewWeights(cfg, seed)
	tensors := make([]safetensors.Tensor, 0, len(w.shapes))
	for _, name := range w.Names() {
		shape, _ := w.Shape(name)
		tensors = append(tensors, safetensors.Tensor{Name: name, Shape: shape, Data: w.tensors[name]})
	}
	f, err := os.Create(filepath.Join(dir, "model.safetensors"))
	if err != nil {
		return err
	}
	err = safetensors.Write(f, tensors, map[string]string{"format": "pt", "seed": fmt.Sprint(seed)})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write weights: %w", err)
	}

	conf := configFile{
		ModelType:             "phi",
		VocabSize:             cfg.VocabSize,
		HiddenSize:            cfg.HiddenDim,
		IntermediateSize:      cfg.FFNDim,
		NumHiddenLayers:       cfg.NumLayers,
		NumAttentionHeads:     cfg.NumHeads,
		MaxPositionEmbeddings: cfg.MaxSequenceLength,
		PartialRotaryFactor:   float64(cfg.RotaryDim) / float64(cfg.HeadDim()),
		RopeTheta:             cfg.RopeBase,
		LayerNormEps:          float64(cfg.LayerNormEps),
	}
	if err := writeJSON(filepath.Join(dir, "config.json"), conf); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "tokenizer.json"), byteLevelTokenizer())
}

// byteLevelTokenizer maps printable ASCII to itself and space and newline
// to the GPT-2 byte-level stand-ins.
func byteLevelTokenizer() tokenizerFile {
	var tf tokenizerFile
	tf.AddedTokens = []addedToken{{ID: EndOfTextID, Content: endOfText, Special: true}}
	tf.PreTokenizer = map[string]any{"type": "ByteLevel", "add_prefix_space": false}
	tf.Model.Type = "BPE"
	tf.Model.Merges = []string{}
	tf.Model.Vocab = map[string]int{
		"Ġ": ' ',
		"Ċ": '\n',
	}
	for b := '!'; b <= '~'; b++ {
		tf.Model.Vocab[string(b)] = int(b)
	}
	return tf
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
