// Package model joins the visual encoder and the sequential decoder into one
// captioning model and persists it as a checkpoint.
package model

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/captioner/internal/autodiff"
	"github.com/born-ml/captioner/internal/backend/cpu"
	"github.com/born-ml/captioner/internal/decoder"
	"github.com/born-ml/captioner/internal/encoder"
	"github.com/born-ml/captioner/internal/generate"
	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/tensor"
	"github.com/born-ml/captioner/internal/vocab"
)

// Backend is the recording backend the trainable layers run on.
type Backend = autodiff.AutodiffBackend[*cpu.CPUBackend]

// Config describes the whole model.
type Config struct {
	Encoder encoder.Config `json:"encoder"`
	Decoder decoder.Config `json:"decoder"`
}

// DefaultConfig returns the defaults for a vocabulary of the given size.
func DefaultConfig(vocabSize int) Config {
	return Config{
		Encoder: encoder.DefaultConfig(),
		Decoder: decoder.DefaultConfig(vocabSize),
	}
}

// Validate checks both halves and that they agree on the embedding size.
func (c Config) Validate() error {
	if err := c.Encoder.Validate(); err != nil {
		return err
	}
	if err := c.Decoder.Validate(); err != nil {
		return err
	}
	if c.Encoder.EmbedSize != c.Decoder.EmbedSize {
		return fmt.Errorf("model: encoder embed size %d does not match decoder embed size %d",
			c.Encoder.EmbedSize, c.Decoder.EmbedSize)
	}
	return nil
}

// EncoderDecoder is the captioning model.
//
// The backbone runs on a plain CPU backend; the projection and the decoder
// run on an autodiff backend wrapping it, so only they receive gradients.
type EncoderDecoder struct {
	cfg      Config
	backend  *Backend
	encoder  *encoder.Encoder
	decoder  *decoder.Decoder
	training bool

	// mu serializes Caption, which flips the tape and dropout state.
	mu sync.Mutex
}

// New builds a model with freshly initialized weights.
func New(cfg Config) (*EncoderDecoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	frozen := cpu.New()
	backend := autodiff.New(frozen)

	enc, err := encoder.New(cfg.Encoder, frozen, backend)
	if err != nil {
		return nil, err
	}
	dec, err := decoder.New(cfg.Decoder, backend)
	if err != nil {
		return nil, err
	}
	return &EncoderDecoder{cfg: cfg, backend: backend, encoder: enc, decoder: dec}, nil
}

// Config returns the model configuration.
func (m *EncoderDecoder) Config() Config { return m.cfg }

// Backend returns the recording backend. Training drives its tape.
func (m *EncoderDecoder) Backend() *Backend { return m.backend }

// Encoder returns the visual encoder.
func (m *EncoderDecoder) Encoder() *encoder.Encoder { return m.encoder }

// Decoder returns the sequential decoder.
func (m *EncoderDecoder) Decoder() *decoder.Decoder { return m.decoder }

// Forward computes teacher-forced logits [N*L, V] for images [N, 3, S, S]
// and captions [N, L].
func (m *EncoderDecoder) Forward(images *tensor.Tensor[float32], captions *tensor.Tensor[int32]) (*tensor.Tensor[float32], error) {
	if images.Dim(0) != captions.Dim(0) {
		return nil, fmt.Errorf("model: %d images but %d captions", images.Dim(0), captions.Dim(0))
	}
	features, err := m.encoder.Forward(images)
	if err != nil {
		return nil, err
	}
	return m.decoder.Forward(features, captions)
}

// SetTraining toggles dropout in both halves.
func (m *EncoderDecoder) SetTraining(training bool) {
	m.training = training
	m.encoder.SetTraining(training)
	m.decoder.SetTraining(training)
}

// Training reports whether dropout is active.
func (m *EncoderDecoder) Training() bool { return m.training }

// Parameters returns the trainable parameters: the encoder projection
// followed by the decoder.
func (m *EncoderDecoder) Parameters() []*nn.Parameter {
	params := append([]*nn.Parameter(nil), m.encoder.TrainableParameters()...)
	return append(params, m.decoder.Parameters()...)
}

// AllParameters returns every parameter, frozen backbone included.
func (m *EncoderDecoder) AllParameters() []*nn.Parameter {
	params := append([]*nn.Parameter(nil), m.encoder.Parameters()...)
	return append(params, m.decoder.Parameters()...)
}

type allParams struct{ m *EncoderDecoder }

func (a allParams) Parameters() []*nn.Parameter { return a.m.AllParameters() }

// StateDict maps every parameter name to its tensor.
func (m *EncoderDecoder) StateDict() map[string]*tensor.Tensor[float32] {
	return nn.StateDict(allParams{m})
}

// ErrMissingParameter is returned by LoadStateDict when a parameter has no
// entry.
var ErrMissingParameter = errors.New("model: missing parameter")

// LoadStateDict copies weights into the model in place. Every parameter must
// be present with its exact shape; unknown entries are ignored.
func (m *EncoderDecoder) LoadStateDict(state map[string]*tensor.Tensor[float32]) error {
	for _, p := range m.AllParameters() {
		src, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingParameter, p.Name())
		}
		if err := p.Load(src); err != nil {
			return fmt.Errorf("model: %w", err)
		}
	}
	return nil
}

// CaptionOptions configure Caption.
type CaptionOptions struct {
	MaxLen int
	Policy generate.Policy
	Vocab  *vocab.Vocabulary
}

// Caption generates a caption for one image, [3, S, S] or [1, 3, S, S].
// Recording and dropout are disabled for the call and restored afterwards.
func (m *EncoderDecoder) Caption(image *tensor.Tensor[float32], opts CaptionOptions) (decoder.Result, error) {
	if len(image.Shape()) == 3 {
		s := image.Shape()
		image = image.Reshape(1, s[0], s[1], s[2])
	}
	if image.Dim(0) != 1 {
		return decoder.Result{}, &tensor.ShapeError{Op: "model.Caption", What: "image", Want: "[1, 3, S, S]", Got: image.Shape()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tape := m.backend.Tape()
	recording, training := tape.IsRecording(), m.training
	tape.StopRecording()
	m.SetTraining(false)
	defer func() {
		m.SetTraining(training)
		if recording {
			tape.StartRecording()
		}
	}()

	feature, err := m.encoder.Forward(image)
	if err != nil {
		return decoder.Result{}, err
	}
	return m.decoder.Generate(feature, decoder.GenerateOptions{
		MaxLen: opts.MaxLen,
		Policy: opts.Policy,
		Vocab:  opts.Vocab,
	})
}
