package toy

import (
	"fmt"
	"strings"
)

const (
	// EndOfTextID is the id of the end-of-text marker in the byte vocabulary.
	EndOfTextID = 256
	// VocabSize pads the 257 real entries like a production vocabulary.
	VocabSize = 264

	endOfText = "<|endoftext|>"
)

// Tokenizer maps every byte to its own id and the end-of-text marker to
// EndOfTextID. Padding ids decode to nothing.
type Tokenizer struct{}

func (Tokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for len(text) > 0 {
		if strings.HasPrefix(text, endOfText) {
			ids = append(ids, EndOfTextID)
			text = text[len(endOfText):]
			continue
		}
		ids = append(ids, int(text[0]))
		text = text[1:]
	}
	return ids, nil
}

func (Tokenizer) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		switch {
		case id >= 0 && id < 256:
			b.WriteByte(byte(id))
		case id == EndOfTextID:
			b.WriteString(endOfText)
		case id > EndOfTextID && id < VocabSize:
			// padding
		default:
			return "", fmt.Errorf("token id out of range: %d", id)
		}
	}
	return b.String(), nil
}
