package tokenizer

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Pair represents a pair of BPE tokens.
type Pair struct {
	A string
	B string
}

type textPart struct {
	text      string
	isSpecial bool
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// bestPair returns the adjacent pair with the lowest merge rank.
func bestPair(word []string, ranks map[Pair]int) (Pair, bool) {
	best := Pair{}
	bestRank := int(^uint(0) >> 1)
	found := false
	for i := 0; i+1 < len(word); i++ {
		p := Pair{A: word[i], B: word[i+1]}
		if rank, ok := ranks[p]; ok && rank < bestRank {
			best, bestRank, found = p, rank, true
		}
	}
	return best, found
}

func mergePair(word []string, pair Pair) []string {
	out := make([]string, 0, len(word))
	for i := 0; i < len(word); i++ {
		if i < len(word)-1 && word[i] == pair.A && word[i+1] == pair.B {
			out = append(out, word[i]+word[i+1])
			i++
			continue
		}
		out = append(out, word[i])
	}
	return out
}

func collectSpecials(tokens []string) []string {
	out := make([]string, 0, 32)
	for _, t := range tokens {
		if isSpecialToken(t) && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	// longest match first
	slices.SortStableFunc(out, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	return out
}

func isSpecialToken(s string) bool {
	if len(s) < 4 {
		return false
	}
	return strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>")
}

// splitSpecials cuts text around the longest special token found at each
// "<|" so specials bypass the byte-level BPE.
func splitSpecials(text string, specials []string) []textPart {
	if len(specials) == 0 {
		return []textPart{{text: text}}
	}
	var parts []textPart
	plain := 0
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], "<|")
		if j < 0 {
			break
		}
		i += j
		// specials are sorted longest first
		k := slices.IndexFunc(specials, func(sp string) bool { return strings.HasPrefix(text[i:], sp) })
		if k < 0 {
			i += 2
			continue
		}
		if plain < i {
			parts = append(parts, textPart{text: text[plain:i]})
		}
		parts = append(parts, textPart{text: specials[k], isSpecial: true})
		i += len(specials[k])
		plain = i
	}
	if plain < len(text) || len(parts) == 0 {
		parts = append(parts, textPart{text: text[plain:]})
	}
	return parts
}

// bytesToUnicode is the GPT-2 byte alphabet: printable Latin-1 bytes map to
// themselves and the rest are shifted past 255 so every byte has a visible
// rune.
func bytesToUnicode() (map[byte]string, map[string]byte) {
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	enc := make(map[byte]string, 256)
	dec := make(map[string]byte, 256)
	shifted := 0
	for b := range 256 {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + shifted)
			shifted++
		}
		enc[byte(b)] = string(r)
		dec[string(r)] = byte(b)
	}
	return enc, dec
}

// wordSplitter runs the pre-tokenizer regex. With lookahead set it also
// applies the \s+(?!\S) rule RE2 cannot express: a whitespace run followed
// by more text gives up its last rune, which is matched again from there so
// a space joins the following word.
type wordSplitter struct {
	re        *regexp.Regexp
	lookahead bool
	// newlineRuns come from their own alternative and keep their length.
	newlineRuns bool
}

func (w wordSplitter) Split(text string) []string {
	if !w.lookahead {
		return w.re.FindAllString(text, -1)
	}
	var out []string
	for pos := 0; pos < len(text); {
		loc := w.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end == start {
			_, size := utf8.DecodeRuneInString(text[end:])
			pos = end + size
			continue
		}
		if end < len(text) && w.trimmable(text[start:end]) {
			if _, size := utf8.DecodeLastRuneInString(text[start:end]); size < end-start {
				end -= size
			}
		}
		out = append(out, text[start:end])
		pos = end
	}
	return out
}

func (w wordSplitter) trimmable(match string) bool {
	if w.newlineRuns && strings.ContainsAny(match, "\r\n") {
		return false
	}
	for i := 0; i < len(match); i++ {
		switch match[i] {
		case ' ', '\t', '\n', '\f', '\r':
		default:
			return false
		}
	}
	return true
}
