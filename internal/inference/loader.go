package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/samcharles93/phigo/internal/logger"
	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/safetensors"
	"github.com/samcharles93/phigo/internal/tokenizer"
)

// Loader locates and binds a checkpoint. ModelPath is either a directory
// holding config.json, tokenizer.json and the safetensors weights, or a
// single .safetensors file whose directory holds the rest. The path fields
// override the files found next to the weights.
type Loader struct {
	ConfigPath          string
	TokenizerJSONPath   string
	TokenizerConfigPath string

	// Progress, when set, receives a progress bar while tensors are bound.
	Progress io.Writer
}

type LoadResult struct {
	Engine      *EngineImpl
	Model       *model.LanguageModel
	Tokenizer   *tokenizer.HFTokenizer
	Config      model.Config
	Fingerprint string
	Files       []string
	Unused      []string
}

// Load opens, validates and binds the checkpoint at modelPath. The weight
// files are released once their contents are copied into the model.
func (l Loader) Load(ctx context.Context, modelPath string, opts ...EngineOption) (*LoadResult, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, fmt.Errorf("model path is required")
	}
	log := logger.FromContext(ctx)
	start := time.Now()

	store, dir, err := OpenWeights(modelPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	cfg, err := l.LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	tok, err := l.loadTokenizer(dir)
	if err != nil {
		return nil, err
	}
	if tok.VocabSize() > cfg.VocabSize {
		return nil, fmt.Errorf("%w: tokenizer has %d ids, model vocabulary is %d", model.ErrConfigMismatch, tok.VocabSize(), cfg.VocabSize)
	}
	tok.PadTo(cfg.VocabSize)

	var bindOpts []model.BindOption
	var bar *progressbar.ProgressBar
	if l.Progress != nil {
		bar = progressbar.NewOptions(len(model.RequiredTensors(cfg)),
			progressbar.OptionSetWriter(l.Progress),
			progressbar.OptionSetDescription("Binding weights"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		bindOpts = append(bindOpts, model.WithProgress(func(string) { _ = bar.Add(1) }))
	}
	weights, err := model.Bind(cfg, store, bindOpts...)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", modelPath, err)
	}
	m, err := model.New(cfg, weights)
	if err != nil {
		return nil, err
	}

	res := &LoadResult{
		Model:       m,
		Tokenizer:   tok,
		Config:      cfg,
		Fingerprint: store.Fingerprint(),
		Files:       store.Files(),
		Unused:      model.UnusedTensors(cfg, store),
	}
	res.Engine = NewEngine(m, tok, opts...)

	log.Info("model loaded",
		"path", modelPath,
		"files", len(res.Files),
		"tensors", len(model.RequiredTensors(cfg)),
		"unused", len(res.Unused),
		"fingerprint", res.Fingerprint,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return res, nil
}

// OpenWeights opens a checkpoint directory or a single weights file and
// returns the directory its companion files live in.
func OpenWeights(path string) (*safetensors.Store, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}
	if info.IsDir() {
		store, err := safetensors.OpenDir(path)
		return store, path, err
	}
	store, err := safetensors.OpenFiles(path)
	return store, filepath.Dir(path), err
}

// LoadConfig reads config.json from dir or ConfigPath. Without either the
// Phi-2 defaults apply.
func (l Loader) LoadConfig(dir string) (model.Config, error) {
	path := l.ConfigPath
	if path == "" {
		path = filepath.Join(dir, "config.json")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg, err := model.ParseConfigJSON(data)
		if err != nil {
			return model.Config{}, fmt.Errorf("%s: %w", path, err)
		}
		return cfg, nil
	case errors.Is(err, os.ErrNotExist) && l.ConfigPath == "":
		return model.Phi2Config(), nil
	default:
		return model.Config{}, fmt.Errorf("load model config: %w", err)
	}
}

func (l Loader) loadTokenizer(dir string) (*tokenizer.HFTokenizer, error) {
	tokJSON := l.TokenizerJSONPath
	if tokJSON == "" {
		tokJSON = filepath.Join(dir, "tokenizer.json")
	}
	tokCfg := l.TokenizerConfigPath
	if tokCfg == "" {
		tokCfg = filepath.Join(dir, "tokenizer_config.json")
	}
	tok, err := tokenizer.LoadHFTokenizer(tokJSON, tokCfg)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return tok, nil
}
