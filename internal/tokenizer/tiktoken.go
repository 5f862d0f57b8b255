package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const tiktokenPrefix = "tiktoken:"

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI BPE encodings.
//
// Each BPE id is decoded back to its text piece so that the vocabulary
// stays string-keyed like the word tokenizer.
//
// Supported encodings:
//   - cl100k_base: GPT-4, GPT-3.5-turbo
//   - p50k_base: GPT-3, Codex
//   - r50k_base: GPT-3, davinci
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken creates a TikToken tokenizer with the specified encoding.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: encoding, name: encodingName}, nil
}

// Tokenize lowercases text and returns its non-blank BPE pieces.
func (t *TikToken) Tokenize(text string) []string {
	ids := t.encoding.Encode(strings.ToLower(text), nil, nil)
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		piece := strings.TrimSpace(t.encoding.Decode([]int{id}))
		if piece != "" {
			tokens = append(tokens, piece)
		}
	}
	return tokens
}

// Name returns "tiktoken:<encoding>".
func (t *TikToken) Name() string {
	return tiktokenPrefix + t.name
}
