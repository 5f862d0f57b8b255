package tokenizer

import (
	"fmt"
	"strings"
)

// Tokenizer is the core interface for caption tokenization.
type Tokenizer interface {
	// Tokenize splits text into lowercase tokens. It never fails; empty or
	// whitespace-only text yields no tokens.
	Tokenize(text string) []string

	// Name returns the tokenizer name accepted by New.
	Name() string
}

// Default is the tokenizer name used when none is configured.
const Default = "word"

// New builds a tokenizer from its name: "word" or "tiktoken:<encoding>".
func New(name string) (Tokenizer, error) {
	switch {
	case name == "" || name == Default:
		return NewWord(), nil
	case strings.HasPrefix(name, tiktokenPrefix):
		return NewTikToken(strings.TrimPrefix(name, tiktokenPrefix))
	default:
		return nil, fmt.Errorf("tokenizer: unknown tokenizer %q", name)
	}
}
