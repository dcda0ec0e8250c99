package inference

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/toy"
)

func writeToy(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := toy.WriteCheckpoint(dir, toy.Config(), 3); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}
	return dir
}

func TestLoaderLoadsCheckpoint(t *testing.T) {
	t.Parallel()

	dir := writeToy(t)
	var progress bytes.Buffer
	res, err := Loader{Progress: &progress}.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() { _ = res.Engine.Close() }()

	if res.Config != toy.Config() {
		t.Fatalf("config = %+v", res.Config)
	}
	if res.Tokenizer.VocabSize() != toy.VocabSize {
		t.Fatalf("tokenizer padded to %d, want %d", res.Tokenizer.VocabSize(), toy.VocabSize)
	}
	if !strings.HasPrefix(res.Fingerprint, "fp_") || len(res.Files) != 1 || len(res.Unused) != 0 {
		t.Fatalf("fingerprint %q files %v unused %v", res.Fingerprint, res.Files, res.Unused)
	}
	if progress.Len() == 0 {
		t.Fatal("no progress output")
	}

	// the same weights and tokenizer ids must give the same completion
	direct, err := toy.NewModel(toy.Config(), 3)
	if err != nil {
		t.Fatal(err)
	}
	req := Request{Prompt: "2+2=", MaxTokens: 6}
	want, err := NewEngine(direct, toy.Tokenizer{}).Generate(context.Background(), &req, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := res.Engine.Generate(context.Background(), &req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stats.PromptTokens != 4 {
		t.Fatalf("prompt tokens = %d", got.Stats.PromptTokens)
	}
	if got.Stats.TokensGenerated != want.Stats.TokensGenerated {
		t.Fatalf("generated %d tokens via checkpoint, %d directly", got.Stats.TokensGenerated, want.Stats.TokensGenerated)
	}
}

func TestLoaderSingleFile(t *testing.T) {
	t.Parallel()

	dir := writeToy(t)
	res, err := Loader{}.Load(context.Background(), filepath.Join(dir, "model.safetensors"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Config.NumLayers != toy.Config().NumLayers {
		t.Fatalf("layers = %d", res.Config.NumLayers)
	}
}

func TestLoaderErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty path", func(t *testing.T) {
		if _, err := (Loader{}).Load(context.Background(), " "); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing tokenizer", func(t *testing.T) {
		dir := writeToy(t)
		if err := os.Remove(filepath.Join(dir, "tokenizer.json")); err != nil {
			t.Fatal(err)
		}
		_, err := Loader{}.Load(context.Background(), dir)
		if err == nil || !strings.Contains(err.Error(), "load tokenizer") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("layer count mismatch", func(t *testing.T) {
		dir := writeToy(t)
		cfg := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(cfg, []byte(`{"num_hidden_layers": 3, "hidden_size": 32, "num_attention_heads": 4,
			"intermediate_size": 128, "vocab_size": 264, "max_position_embeddings": 128, "partial_rotary_factor": 0.5}`), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Loader{ConfigPath: cfg}.Load(context.Background(), dir)
		if !errors.Is(err, model.ErrConfigMismatch) {
			t.Fatalf("err = %v, want ErrConfigMismatch", err)
		}
	})

	t.Run("vocabulary smaller than tokenizer", func(t *testing.T) {
		dir := writeToy(t)
		cfg := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(cfg, []byte(`{"num_hidden_layers": 2, "hidden_size": 32, "num_attention_heads": 4,
			"intermediate_size": 128, "vocab_size": 200, "partial_rotary_factor": 0.5}`), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Loader{ConfigPath: cfg}.Load(context.Background(), dir)
		if !errors.Is(err, model.ErrConfigMismatch) {
			t.Fatalf("err = %v, want ErrConfigMismatch", err)
		}
	})
}
