package tokenizer

import (
	"slices"
	"sync"
	"testing"
)

// tinyTokenizerJSON is a byte-level BPE over "h", "i" and the space
// marker "Ġ" with two merges and the end-of-text marker.
const tinyTokenizerJSON = `{
	"added_tokens": [{"id": 5, "content": "<|endoftext|>", "special": true}],
	"pre_tokenizer": {"type": "ByteLevel", "add_prefix_space": false},
	"model": {
		"type": "BPE",
		"vocab": {"h": 0, "i": 1, "Ġ": 2, "hi": 3, "Ġhi": 4},
		"merges": ["h i", ["Ġ", "hi"]]
	}
}`

func loadTiny(t *testing.T) *HFTokenizer {
	t.Helper()
	tok, err := LoadHFTokenizerBytes([]byte(tinyTokenizerJSON), nil)
	if err != nil {
		t.Fatalf("LoadHFTokenizerBytes: %v", err)
	}
	return tok
}

func TestHFTokenizerEncodeDecode(t *testing.T) {
	t.Parallel()

	tok := loadTiny(t)
	ids, err := tok.Encode("hi hi" + EndOfText)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := []int{3, 4, 5}; !slices.Equal(ids, want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "hi hi"+EndOfText {
		t.Fatalf("Decode = %q", text)
	}
	if id, ok := tok.TokenID(EndOfText); !ok || id != 5 {
		t.Fatalf("TokenID(EndOfText) = %d, %v", id, ok)
	}
}

func TestHFTokenizerUnknownToken(t *testing.T) {
	t.Parallel()

	if _, err := loadTiny(t).Encode("hix"); err == nil {
		t.Fatal("expected error for a byte outside the vocabulary")
	}
}

func TestHFTokenizerDecodeRange(t *testing.T) {
	t.Parallel()

	tok := loadTiny(t)
	if _, err := tok.Decode([]int{6}); err == nil {
		t.Fatal("expected out of range error")
	}
	tok.PadTo(8)
	text, err := tok.Decode([]int{3, 7})
	if err != nil {
		t.Fatalf("Decode padded: %v", err)
	}
	if text != "hi" {
		t.Fatalf("Decode padded = %q, want %q", text, "hi")
	}
	if tok.VocabSize() != 8 {
		t.Fatalf("VocabSize = %d, want 8", tok.VocabSize())
	}
}

func TestHFTokenizerConfigAddsBOS(t *testing.T) {
	t.Parallel()

	tokJSON := []byte(`{
		"model":{"type":"BPE","vocab":{"<s>":1,"</s>":2,"<unk>":3,"h":4},"merges":[],"unk_token":"<unk>"},
		"post_processor":{"processors":[{"type":"TemplateProcessing","special_tokens":{"bos":{"ids":[1]}}}]}
	}`)
	tokConfig := []byte(`{"add_eos_token":true,"bos_token":"<s>","eos_token":"</s>"}`)
	tok, err := LoadHFTokenizerBytes(tokJSON, tokConfig)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ids, err := tok.Encode("hq")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := []int{1, 4, 3, 2}; !slices.Equal(ids, want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
	if tok.BOSID() != 1 || tok.EOSID() != 2 {
		t.Fatalf("bos/eos = %d/%d", tok.BOSID(), tok.EOSID())
	}
}

func TestHFTokenizerRejectsUnsupportedModel(t *testing.T) {
	t.Parallel()

	_, err := LoadHFTokenizerBytes([]byte(`{"model":{"type":"WordPiece","vocab":{},"merges":[]}}`), nil)
	if err == nil {
		t.Fatal("expected unsupported tokenizer model error")
	}
}

func TestHFTokenizerConcurrentEncode(t *testing.T) {
	t.Parallel()

	tok := loadTiny(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ids, err := tok.Encode("hi hi hi")
				if err != nil || len(ids) != 3 {
					t.Errorf("Encode = %v, %v", ids, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSplitSpecialsLongestMatch(t *testing.T) {
	t.Parallel()

	specials := collectSpecials([]string{"<|a|>", "<|a|><|b|>", "x"})
	parts := splitSpecials("q<|a|><|b|>r", specials)
	if len(parts) != 3 || !parts[1].isSpecial || parts[1].text != "<|a|><|b|>" {
		t.Fatalf("parts = %+v", parts)
	}
}

func TestWordSplitterWhitespaceRuns(t *testing.T) {
	t.Parallel()

	gpt2 := buildWordSplitter(hfPreTokenizer{Type: "ByteLevel"})
	cases := []struct {
		in   string
		want []string
	}{
		{in: "a  x", want: []string{"a", " ", " x"}},
		{in: "def f():\n    return 1", want: []string{"def", " f", "():", "\n   ", " return", " 1"}},
		{in: "a\n\nx", want: []string{"a", "\n", "\n", "x"}},
		{in: "a  ", want: []string{"a", "  "}},
		{in: "hi there", want: []string{"hi", " there"}},
	}
	for _, tc := range cases {
		if got := gpt2.Split(tc.in); !slices.Equal(got, tc.want) {
			t.Errorf("Split(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWordSplitterKeepsNewlineRuns(t *testing.T) {
	t.Parallel()

	var pre hfPreTokenizer
	pre.Type = "Sequence"
	pre.Pretokenizers = append(pre.Pretokenizers, struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	}{Type: "Split"})
	pre.Pretokenizers[0].Pattern.Regex = `\s+(?!\S)|\s+`

	got := buildWordSplitter(pre).Split("a\n\nx  y")
	want := []string{"a", "\n\n", "x", " ", " y"}
	if !slices.Equal(got, want) {
		t.Fatalf("Split = %q, want %q", got, want)
	}
}

func TestEncodeDoubleSpace(t *testing.T) {
	t.Parallel()

	tok := loadTiny(t)
	ids, err := tok.Encode("hi  hi")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// "hi", "Ġ", "Ġhi"
	if want := []int{3, 2, 4}; !slices.Equal(ids, want) {
		t.Fatalf("Encode = %v, want %v", ids, want)
	}
}
