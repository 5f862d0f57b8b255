// Package decoder implements the sequential caption decoder: an LSTM
// language model over the vocabulary conditioned on a visual embedding.
//
// Architecture:
//
//	Embedding(vocab, embed) -> LSTM(embed, hidden, layers) -> Dropout -> Linear(hidden, vocab)
//
// The decoder has two operating modes. Forward is teacher forcing: the
// visual embedding is the input at step 0 and the ground-truth tokens
// captions[:, 0..L-2] are the inputs at steps 1..L-1. Generate is
// autoregressive: the embedding drives the first transition and every
// chosen token is fed back until END or the length cap.
package decoder

import (
	"fmt"

	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/tensor"
)

// State is the recurrent state carried between steps: one hidden and one
// cell tensor per LSTM layer. A nil *State means all zeros.
type State = nn.LSTMState

// Config describes the decoder architecture.
type Config struct {
	VocabSize  int     `yaml:"-" json:"vocab_size"`
	EmbedSize  int     `yaml:"embed_size" json:"embed_size"`
	HiddenSize int     `yaml:"hidden_size" json:"hidden_size"`
	NumLayers  int     `yaml:"num_layers" json:"num_layers"`
	Dropout    float32 `yaml:"dropout" json:"dropout"`
	Seed       int64   `yaml:"seed" json:"seed"`
}

// DefaultConfig returns the decoder defaults for a vocabulary of the given
// size.
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:  vocabSize,
		EmbedSize:  128,
		HiddenSize: 256,
		NumLayers:  1,
		Dropout:    0.3,
		Seed:       2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.VocabSize < 5 {
		return fmt.Errorf("decoder: vocabulary of %d tokens has no room beyond the reserved ones", c.VocabSize)
	}
	if c.EmbedSize < 1 || c.HiddenSize < 1 {
		return fmt.Errorf("decoder: embed size %d and hidden size %d must be positive", c.EmbedSize, c.HiddenSize)
	}
	if c.NumLayers < 1 {
		return fmt.Errorf("decoder: need at least one layer, got %d", c.NumLayers)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("decoder: dropout must be in [0, 1), got %v", c.Dropout)
	}
	return nil
}

// Decoder is the sequential caption decoder.
type Decoder struct {
	cfg     Config
	embed   *nn.Embedding
	lstm    *nn.LSTM
	dropout *nn.Dropout
	linear  *nn.Linear
	backend tensor.Backend
}

// New builds a decoder whose layers run on backend.
func New(cfg Config, backend tensor.Backend) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := nn.NewRand(cfg.Seed)
	return &Decoder{
		cfg:     cfg,
		embed:   nn.NewEmbedding("decoder.embed", cfg.VocabSize, cfg.EmbedSize, backend, rng),
		lstm:    nn.NewLSTM("decoder.lstm", cfg.EmbedSize, cfg.HiddenSize, cfg.NumLayers, cfg.Dropout, backend, rng),
		dropout: nn.NewDropout(cfg.Dropout, backend, rng),
		linear:  nn.NewLinear("decoder.linear", cfg.HiddenSize, cfg.VocabSize, backend, rng),
		backend: backend,
	}, nil
}

// Forward computes teacher-forced logits.
//
// features is [N, EmbedSize], captions is [N, L] with L >= 2. The result is
// [N*L, VocabSize]; row n*L+t scores captions[n][t], which matches the
// row-major flattening used by sequence.Targets.
func (d *Decoder) Forward(features *tensor.Tensor[float32], captions *tensor.Tensor[int32]) (*tensor.Tensor[float32], error) {
	fs, cs := features.Shape(), captions.Shape()
	if len(fs) != 2 || fs[1] != d.cfg.EmbedSize {
		return nil, &tensor.ShapeError{Op: "decoder.Forward", What: "features", Want: fmt.Sprintf("[N, %d]", d.cfg.EmbedSize), Got: fs}
	}
	if len(cs) != 2 || cs[0] != fs[0] || cs[1] < 2 {
		return nil, &tensor.ShapeError{Op: "decoder.Forward", What: "captions", Want: fmt.Sprintf("[%d, L>=2]", fs[0]), Got: cs}
	}

	n, l := cs[0], cs[1]
	steps := make([]*tensor.Tensor[float32], l)
	steps[0] = features
	column := make([]int32, n)
	for t := 1; t < l; t++ {
		for i := 0; i < n; i++ {
			column[i] = captions.At(i, t-1)
		}
		steps[t] = d.embed.Forward(tensor.Indices(column))
	}

	outputs, _ := d.lstm.Forward(steps, nil)
	hidden := d.backend.Stack(outputs)
	return d.linear.Forward(d.dropout.Forward(hidden)), nil
}

// Step runs one transition on input [1, EmbedSize] and returns the logits
// [VocabSize] for the next token together with the new state. The given
// state is not modified.
func (d *Decoder) Step(input *tensor.Tensor[float32], state *State) (*tensor.Tensor[float32], *State, error) {
	s := input.Shape()
	if len(s) != 2 || s[0] != 1 || s[1] != d.cfg.EmbedSize {
		return nil, nil, &tensor.ShapeError{Op: "decoder.Step", What: "input", Want: fmt.Sprintf("[1, %d]", d.cfg.EmbedSize), Got: s}
	}
	if state != nil && (len(state.H) != d.lstm.NumLayers() || state.Batch() != 1) {
		return nil, nil, fmt.Errorf("decoder.Step: state does not match %d layers and batch 1", d.lstm.NumLayers())
	}
	h, next := d.lstm.Step(input, state)
	logits := d.linear.Forward(d.dropout.Forward(h))
	return logits.Reshape(d.cfg.VocabSize), next, nil
}

// EmbedToken returns the embedding of a single token as [1, EmbedSize].
func (d *Decoder) EmbedToken(token int32) (*tensor.Tensor[float32], error) {
	if token < 0 || int(token) >= d.cfg.VocabSize {
		return nil, fmt.Errorf("decoder: token %d outside vocabulary of %d", token, d.cfg.VocabSize)
	}
	return d.embed.Forward(tensor.Indices([]int32{token})), nil
}

// SetTraining toggles dropout in the LSTM and before the output layer.
func (d *Decoder) SetTraining(training bool) {
	d.lstm.SetTraining(training)
	d.dropout.SetTraining(training)
}

// Parameters returns embedding, LSTM and output layer parameters.
func (d *Decoder) Parameters() []*nn.Parameter {
	params := d.embed.Parameters()
	params = append(params, d.lstm.Parameters()...)
	return append(params, d.linear.Parameters()...)
}

// Embedding returns the token embedding layer.
func (d *Decoder) Embedding() *nn.Embedding {
	return d.embed
}

// ZeroState returns an all-zero state for one sequence.
func (d *Decoder) ZeroState() *State {
	return d.lstm.ZeroState(1)
}

// Config returns the decoder configuration.
func (d *Decoder) Config() Config {
	return d.cfg
}
