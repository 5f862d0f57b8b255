// Package vocab maps caption tokens to integer indices and back.
//
// Four reserved tokens occupy fixed indices:
//
//	PAD=0 "<PAD>"  START=1 "<SOS>"  END=2 "<EOS>"  UNKNOWN=3 "<UNK>"
//
// A corpus token is admitted the moment its running count reaches the
// frequency threshold, so admission order follows the order in which
// tokens cross the threshold. A built Vocabulary is immutable.
package vocab

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/captioner/internal/tokenizer"
)

// Reserved token indices.
const (
	PAD     int32 = 0
	START   int32 = 1
	END     int32 = 2
	UNKNOWN int32 = 3
)

// Reserved token surface forms.
const (
	PADToken     = "<PAD>"
	STARTToken   = "<SOS>"
	ENDToken     = "<EOS>"
	UNKNOWNToken = "<UNK>"
)

var reserved = []string{PADToken, STARTToken, ENDToken, UNKNOWNToken}

func isReservedToken(token string) bool {
	for _, r := range reserved {
		if strings.EqualFold(token, r) {
			return true
		}
	}
	return false
}

// ErrIndexOutOfRange is returned when decoding an index the vocabulary
// does not contain.
var ErrIndexOutOfRange = errors.New("vocab: index out of range")

// Vocabulary is an immutable token <-> index mapping.
type Vocabulary struct {
	itos      []string
	stoi      map[string]int32
	threshold int
	tok       tokenizer.Tokenizer
}

// Build tokenizes every caption in corpus and admits each token the moment
// its running count reaches threshold. Reserved tokens are always present.
func Build(corpus []string, threshold int, tok tokenizer.Tokenizer) (*Vocabulary, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("vocab: frequency threshold must be >= 1, got %d", threshold)
	}
	if tok == nil {
		tok = tokenizer.NewWord()
	}

	v := newVocabulary(threshold, tok)
	counts := make(map[string]int)
	for _, caption := range corpus {
		for _, word := range tok.Tokenize(caption) {
			if isReservedToken(word) {
				continue
			}
			counts[word]++
			if counts[word] == threshold {
				v.add(word)
			}
		}
	}
	return v, nil
}

func newVocabulary(threshold int, tok tokenizer.Tokenizer) *Vocabulary {
	v := &Vocabulary{
		itos:      make([]string, 0, 64),
		stoi:      make(map[string]int32, 64),
		threshold: threshold,
		tok:       tok,
	}
	for _, r := range reserved {
		v.add(r)
	}
	return v
}

func (v *Vocabulary) add(token string) {
	v.stoi[token] = int32(len(v.itos)) //nolint:gosec // vocabulary sizes are far below 2^31
	v.itos = append(v.itos, token)
}

// Encode tokenizes caption and maps each token to its index, or UNKNOWN
// when absent. It never fails.
func (v *Vocabulary) Encode(caption string) []int32 {
	words := v.tok.Tokenize(caption)
	out := make([]int32, len(words))
	for i, w := range words {
		out[i] = v.Index(w)
	}
	return out
}

// Decode maps indices back to tokens. An index outside [0, Len()) is a
// programming error and fails with ErrIndexOutOfRange.
func (v *Vocabulary) Decode(indices []int32) ([]string, error) {
	out := make([]string, len(indices))
	for i, idx := range indices {
		tok, err := v.Token(idx)
		if err != nil {
			return nil, err
		}
		out[i] = tok
	}
	return out, nil
}

// Token returns the token at index idx.
func (v *Vocabulary) Token(idx int32) (string, error) {
	if idx < 0 || int(idx) >= len(v.itos) {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, len(v.itos))
	}
	return v.itos[idx], nil
}

// Index returns the index of token, or UNKNOWN.
func (v *Vocabulary) Index(token string) int32 {
	if idx, ok := v.stoi[token]; ok {
		return idx
	}
	return UNKNOWN
}

// Contains reports whether token has its own index.
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.stoi[token]
	return ok
}

// Len returns the number of entries, reserved tokens included.
func (v *Vocabulary) Len() int {
	return len(v.itos)
}

// Threshold returns the frequency threshold the vocabulary was built with.
func (v *Vocabulary) Threshold() int {
	return v.threshold
}

// Tokenizer returns the tokenizer used by Encode.
func (v *Vocabulary) Tokenizer() tokenizer.Tokenizer {
	return v.tok
}

// Tokens returns a copy of the ordered token list.
func (v *Vocabulary) Tokens() []string {
	out := make([]string, len(v.itos))
	copy(out, v.itos)
	return out
}

// Fingerprint returns a hex SHA-256 digest of the tokenizer name and the
// ordered token list. Two vocabularies with equal fingerprints assign the
// same meaning to every index.
func (v *Vocabulary) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(v.tok.Name()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(v.itos, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// CheckReserved verifies that raw indices arriving at a boundary are valid
// vocabulary indices.
func (v *Vocabulary) CheckReserved(indices []int32) error {
	for i, idx := range indices {
		if idx < 0 || int(idx) >= len(v.itos) {
			return fmt.Errorf("%w: position %d holds %d, vocabulary size %d", ErrIndexOutOfRange, i, idx, len(v.itos))
		}
	}
	return nil
}

// IsSpecial reports whether idx is one of the reserved indices.
func IsSpecial(idx int32) bool {
	return idx >= PAD && idx <= UNKNOWN
}
