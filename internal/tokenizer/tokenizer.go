// Package tokenizer implements byte-level BPE tokenizers loaded from
// Hugging Face tokenizer.json files.
package tokenizer

// EndOfText is the marker Phi-2 emits when a completion is finished.
const EndOfText = "<|endoftext|>"

// Tokenizer defines the minimal interface used by the engine and the CLI.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}
