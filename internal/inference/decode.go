package inference

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samcharles93/phigo/internal/tokenizer"
)

// chunkDecoder turns generated ids into text a chunk at a time. It cuts the
// output at the first end-of-text marker and holds back a trailing partial
// UTF-8 sequence until the bytes that complete it arrive.
type chunkDecoder struct {
	tok     tokenizer.Tokenizer
	size    int
	pending []int
	carry   string
	done    bool
}

func newChunkDecoder(tok tokenizer.Tokenizer, size int) *chunkDecoder {
	if size <= 0 {
		size = DefaultDecodeChunk
	}
	return &chunkDecoder{tok: tok, size: size, pending: make([]int, 0, size)}
}

// push queues one id and decodes when a full chunk is ready.
func (d *chunkDecoder) push(id int) (string, error) {
	d.pending = append(d.pending, id)
	if len(d.pending) < d.size {
		return "", nil
	}
	return d.flush(false)
}

// flush decodes whatever is pending. With final set, any held-back bytes
// are released as they are.
func (d *chunkDecoder) flush(final bool) (string, error) {
	if d.done {
		return "", nil
	}
	text := d.carry
	d.carry = ""
	if len(d.pending) > 0 {
		s, err := safeDecode(d.tok, d.pending)
		d.pending = d.pending[:0]
		if err != nil {
			return "", &TokenizationError{Op: "decode", Err: err}
		}
		text += s
	}
	if i := strings.Index(text, tokenizer.EndOfText); i >= 0 {
		d.done = true
		return text[:i], nil
	}
	if final {
		return text, nil
	}
	text, d.carry = splitIncompleteUTF8(text)
	return text, nil
}

// splitIncompleteUTF8 separates a trailing truncated rune from s.
func splitIncompleteUTF8(s string) (complete, tail string) {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if utf8.FullRuneInString(s[i:]) {
			return s, ""
		}
		return s[:i], s[i:]
	}
	return s, ""
}

func safeDecode(tok tokenizer.Tokenizer, ids []int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Decode: %v", rec)
		}
	}()
	return tok.Decode(ids)
}

func safeEncode(tok tokenizer.Tokenizer, prompt string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(prompt)
}
