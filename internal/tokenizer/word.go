package tokenizer

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// wordPattern matches a run of letters/digits with optional apostrophe
// suffixes ("dog's", "don't"), or a single non-space symbol.
const wordPattern = `[\p{L}\p{N}]+(?:['’][\p{L}]+)*|[^\s\p{L}\p{N}]`

// Word is a lowercase word tokenizer.
type Word struct {
	re *regexp2.Regexp
}

// NewWord creates a word tokenizer.
func NewWord() *Word {
	return &Word{re: regexp2.MustCompile(wordPattern, regexp2.None)}
}

// Tokenize lowercases text and splits it into words and punctuation.
func (w *Word) Tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string

	m, err := w.re.FindStringMatch(text)
	for err == nil && m != nil {
		tokens = append(tokens, m.String())
		m, err = w.re.FindNextMatch(m)
	}
	return tokens
}

// Name returns "word".
func (w *Word) Name() string {
	return Default
}
