package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/born-ml/captioner/internal/serialization"
	"github.com/born-ml/captioner/internal/vocab"
)

// ModelType identifies captioner checkpoints.
const ModelType = "captioner"

var (
	// ErrVocabularyMismatch is returned when a checkpoint was trained with
	// a different vocabulary than the one supplied.
	ErrVocabularyMismatch = errors.New("model: vocabulary does not match checkpoint")
	// ErrNotCheckpoint is returned for .born files without captioner
	// checkpoint metadata.
	ErrNotCheckpoint = errors.New("model: not a captioner checkpoint")
)

// SaveOptions describe the training progress recorded with the weights.
type SaveOptions struct {
	RunID     string // Empty generates a new id
	Epoch     int
	Step      int64
	Loss      float64
	Optimizer string
	Half      bool // Store weights as float16
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Save writes the model, its configuration and the vocabulary fingerprint
// to path.
func (m *EncoderDecoder) Save(path string, v *vocab.Vocabulary, opts SaveOptions) error {
	if v.Len() != m.cfg.Decoder.VocabSize {
		return fmt.Errorf("%w: vocabulary has %d tokens, model has %d", ErrVocabularyMismatch, v.Len(), m.cfg.Decoder.VocabSize)
	}
	cfg, err := json.Marshal(m.cfg)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}
	header := serialization.Header{
		ModelType: ModelType,
		Checkpoint: &serialization.CheckpointMeta{
			RunID:            opts.RunID,
			Epoch:            opts.Epoch,
			Step:             opts.Step,
			Loss:             opts.Loss,
			Optimizer:        opts.Optimizer,
			VocabFingerprint: v.Fingerprint(),
			ModelConfig:      cfg,
		},
	}
	return serialization.WriteFile(path, m.StateDict(), header, serialization.WriteOptions{Half: opts.Half})
}

// Load restores a model saved by Save. A nil v skips the vocabulary check.
func Load(path string, v *vocab.Vocabulary) (*EncoderDecoder, serialization.Header, error) {
	state, header, err := serialization.ReadFile(path)
	if err != nil {
		return nil, serialization.Header{}, fmt.Errorf("model: %w", err)
	}
	if header.ModelType != ModelType || header.Checkpoint == nil || len(header.Checkpoint.ModelConfig) == 0 {
		return nil, serialization.Header{}, fmt.Errorf("%w: %s", ErrNotCheckpoint, path)
	}
	if v != nil && header.Checkpoint.VocabFingerprint != v.Fingerprint() {
		return nil, serialization.Header{}, fmt.Errorf("%w: %s", ErrVocabularyMismatch, path)
	}

	var cfg Config
	if err := json.Unmarshal(header.Checkpoint.ModelConfig, &cfg); err != nil {
		return nil, serialization.Header{}, fmt.Errorf("model: %s: config: %w", path, err)
	}
	m, err := New(cfg)
	if err != nil {
		return nil, serialization.Header{}, err
	}
	if err := m.LoadStateDict(state); err != nil {
		return nil, serialization.Header{}, err
	}
	return m, header, nil
}
