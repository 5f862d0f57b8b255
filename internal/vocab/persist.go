package vocab

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/born-ml/captioner/internal/tokenizer"
)

// FormatVersion is the persisted vocabulary format version.
const FormatVersion = 1

type fileFormat struct {
	Version     int      `json:"version"`
	Threshold   int      `json:"frequency_threshold"`
	Tokenizer   string   `json:"tokenizer"`
	Tokens      []string `json:"tokens"`
	Fingerprint string   `json:"fingerprint"`
}

// MarshalJSON encodes the vocabulary in its versioned persisted form.
func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileFormat{
		Version:     FormatVersion,
		Threshold:   v.threshold,
		Tokenizer:   v.tok.Name(),
		Tokens:      v.itos,
		Fingerprint: v.Fingerprint(),
	})
}

// Save writes the vocabulary to path as JSON.
func (v *Vocabulary) Save(path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("vocab: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // vocabulary files are not secret
		return fmt.Errorf("vocab: write %s: %w", path, err)
	}
	return nil
}

// Load reads a vocabulary saved with Save.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from user configuration
	if err != nil {
		return nil, fmt.Errorf("vocab: read %s: %w", path, err)
	}
	v, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("vocab: %s: %w", path, err)
	}
	return v, nil
}

// Unmarshal decodes and validates a persisted vocabulary.
func Unmarshal(data []byte) (*Vocabulary, error) {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if f.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported vocabulary version %d", f.Version)
	}
	if f.Threshold < 1 {
		return nil, fmt.Errorf("invalid frequency threshold %d", f.Threshold)
	}
	if len(f.Tokens) < len(reserved) {
		return nil, fmt.Errorf("vocabulary has %d tokens, need at least %d reserved", len(f.Tokens), len(reserved))
	}
	for i, r := range reserved {
		if f.Tokens[i] != r {
			return nil, fmt.Errorf("index %d holds %q, want reserved token %q", i, f.Tokens[i], r)
		}
	}

	tok, err := tokenizer.New(f.Tokenizer)
	if err != nil {
		return nil, err
	}

	v := &Vocabulary{
		itos:      make([]string, 0, len(f.Tokens)),
		stoi:      make(map[string]int32, len(f.Tokens)),
		threshold: f.Threshold,
		tok:       tok,
	}
	for _, t := range f.Tokens {
		if _, dup := v.stoi[t]; dup {
			return nil, fmt.Errorf("duplicate token %q", t)
		}
		v.add(t)
	}
	if f.Fingerprint != "" && f.Fingerprint != v.Fingerprint() {
		return nil, fmt.Errorf("fingerprint mismatch: file %s, computed %s", f.Fingerprint, v.Fingerprint())
	}
	return v, nil
}
