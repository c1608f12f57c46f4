package bertgo

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

const (
	padToken = "[PAD]"
	unkToken = "[UNK]"
	clsToken = "[CLS]"
	sepToken = "[SEP]"

	maxCharsPerWord = 200
)

// FullTokenizer turns raw text into wordpiece tokens from a fixed vocab.txt:
// basic whitespace/punctuation splitting (optionally lower-casing) followed by
// greedy longest-match wordpiece segmentation.
type FullTokenizer struct {
	vocab       map[string]int32
	doLowerCase bool
}

// NewFullTokenizer loads vocab.txt, one token per line, ids assigned by line
// number.
func NewFullTokenizer(vocabFile string, doLowerCase bool) (*FullTokenizer, error) {
	f, err := os.Open(vocabFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vocab := make(map[string]int32)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r\n")
		if _, ok := vocab[token]; !ok {
			vocab[token] = int32(len(vocab))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading vocab %s", vocabFile)
	}
	for _, required := range []string{padToken, unkToken, clsToken, sepToken} {
		if _, ok := vocab[required]; !ok {
			return nil, errors.Errorf("vocab %s is missing required token %q", vocabFile, required)
		}
	}
	return &FullTokenizer{vocab: vocab, doLowerCase: doLowerCase}, nil
}

// Tokenize runs basic tokenization then wordpiece on each word.
func (t *FullTokenizer) Tokenize(text string) []string {
	var out []string
	for _, word := range t.basicTokenize(text) {
		out = append(out, t.wordpiece(word)...)
	}
	return out
}

// TokenIDs maps tokens to vocab ids. Every token produced by Tokenize is in
// the vocab by construction; special tokens are checked at load time.
func (t *FullTokenizer) TokenIDs(tokens []string) []int32 {
	ids := make([]int32, len(tokens))
	for i, token := range tokens {
		id, ok := t.vocab[token]
		if !ok {
			id = t.vocab[unkToken]
		}
		ids[i] = id
	}
	return ids
}

// PadID returns the id used for padding positions.
func (t *FullTokenizer) PadID() int32 {
	return t.vocab[padToken]
}

func (t *FullTokenizer) basicTokenize(text string) []string {
	cleaned := cleanText(text)
	var words []string
	for _, word := range strings.Fields(cleaned) {
		if t.doLowerCase {
			word = stripAccents(strings.ToLower(word))
		}
		words = append(words, splitPunctuation(word)...)
	}
	return words
}

func (t *FullTokenizer) wordpiece(word string) []string {
	runes := []rune(word)
	if len(runes) > maxCharsPerWord {
		return []string{unkToken}
	}
	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		match := ""
		for start < end {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				match = piece
				break
			}
			end--
		}
		if match == "" {
			return []string{unkToken}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// cleanText drops NULs and other control characters and normalizes all
// whitespace to plain spaces.
func cleanText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == 0 || r == 0xFFFD:
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripAccents removes combining marks after NFD decomposition.
func stripAccents(word string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(word) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitPunctuation splits a word on every punctuation rune, keeping the runes
// as standalone tokens.
func splitPunctuation(word string) []string {
	var out []string
	var current strings.Builder
	for _, r := range word {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			out = append(out, string(r))
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
