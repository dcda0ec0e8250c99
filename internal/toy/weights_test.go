package toy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/phigo/internal/model"
	"github.com/samcharles93/phigo/internal/safetensors"
	"github.com/samcharles93/phigo/internal/tokenizer"
)

func TestNewWeightsDeterministic(t *testing.T) {
	t.Parallel()

	cfg := Config()
	a := NewWeights(cfg, 3)
	b := NewWeights(cfg, 3)
	c := NewWeights(cfg, 4)

	name := "transformer.h.1.mixer.Wqkv.weight"
	wa, _ := a.ReadF32(name)
	wb, _ := b.ReadF32(name)
	wc, _ := c.ReadF32(name)
	if diff := cmp.Diff(wa, wb); diff != "" {
		t.Fatalf("same seed produced different weights (-a +b):\n%s", diff)
	}
	if cmp.Equal(wa, wc) {
		t.Fatal("different seeds produced identical weights")
	}
}

func TestNewModelBinds(t *testing.T) {
	t.Parallel()

	m, err := NewModel(Config(), 1)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	logits, cache, err := m.Forward([][]int{{1, 2, 3}}, nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if logits.Data.C != VocabSize {
		t.Fatalf("logits width = %d, want %d", logits.Data.C, VocabSize)
	}
	if cache.Len() != 3 {
		t.Fatalf("cache len = %d, want 3", cache.Len())
	}
}

func TestTokenizerRoundTrip(t *testing.T) {
	t.Parallel()

	var tok Tokenizer
	ids, err := tok.Encode("hi<|endoftext|>!")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int{'h', 'i', EndOfTextID, '!'}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("Encode mismatch (-want +got):\n%s", diff)
	}
	text, err := tok.Decode(append(ids, VocabSize-1))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "hi<|endoftext|>!" {
		t.Fatalf("Decode = %q", text)
	}
	if _, err := tok.Decode([]int{VocabSize}); err == nil {
		t.Fatal("expected error for id outside vocabulary")
	}
}

func TestWriteCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := Config()
	if err := WriteCheckpoint(dir, cfg, 5); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := model.ParseConfigJSON(data)
	if err != nil {
		t.Fatalf("ParseConfigJSON: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	store, err := safetensors.OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, err := model.Bind(cfg, store); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	tok, err := tokenizer.LoadHFTokenizer(filepath.Join(dir, "tokenizer.json"), "")
	if err != nil {
		t.Fatalf("LoadHFTokenizer: %v", err)
	}
	text := "2+2=4\nok" + endOfText
	want, _ := Tokenizer{}.Encode(text)
	ids, err := tok.Encode(text)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("HF ids disagree with the byte tokenizer (-byte +hf):\n%s", diff)
	}
}
