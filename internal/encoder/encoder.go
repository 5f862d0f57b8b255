// Package encoder maps images to fixed-size visual embeddings.
//
// A convolutional backbone turns an [N, 3, H, W] batch into one pooled
// feature vector per image; a trainable projection (Linear, ReLU, Dropout)
// maps that vector to the embedding size shared with the decoder.
//
// The backbone is frozen at construction: it runs on a plain (non-recording)
// backend, so no gradient can reach its weights, and it is never part of
// TrainableParameters.
package encoder

import (
	"fmt"

	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/tensor"
)

// Config describes the encoder architecture.
type Config struct {
	ImageSize  int     `yaml:"image_size" json:"image_size"`   // Square input side length
	Channels   []int   `yaml:"channels" json:"channels"`       // Output channels of each conv block
	FeatureDim int     `yaml:"feature_dim" json:"feature_dim"` // Channels of the final conv, pooled to one vector
	EmbedSize  int     `yaml:"embed_size" json:"embed_size"`   // Projection output size
	Dropout    float32 `yaml:"dropout" json:"dropout"`         // Projection dropout
	Seed       int64   `yaml:"seed" json:"seed"`               // Weight initialization seed
}

// DefaultConfig returns a small backbone suited to CPU training.
func DefaultConfig() Config {
	return Config{
		ImageSize:  64,
		Channels:   []int{16, 32},
		FeatureDim: 64,
		EmbedSize:  128,
		Dropout:    0.5,
		Seed:       1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ImageSize < 1 {
		return fmt.Errorf("encoder: image size must be positive, got %d", c.ImageSize)
	}
	side := c.ImageSize
	for i, ch := range c.Channels {
		if ch < 1 {
			return fmt.Errorf("encoder: block %d has %d channels", i, ch)
		}
		side /= 2
		if side < 1 {
			return fmt.Errorf("encoder: image size %d too small for %d pooling blocks", c.ImageSize, len(c.Channels))
		}
	}
	if c.FeatureDim < 1 || c.EmbedSize < 1 {
		return fmt.Errorf("encoder: feature dim %d and embed size %d must be positive", c.FeatureDim, c.EmbedSize)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("encoder: dropout must be in [0, 1), got %v", c.Dropout)
	}
	return nil
}

// Encoder is the visual encoder.
type Encoder struct {
	cfg        Config
	backbone   *nn.Sequential
	projection *nn.Linear
	relu       *nn.ReLU
	dropout    *nn.Dropout
	trainable  []*nn.Parameter
}

// New builds an encoder. The backbone runs on frozen, the projection on
// train (typically an autodiff backend wrapping frozen).
func New(cfg Config, frozen, train tensor.Backend) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := nn.NewRand(cfg.Seed)

	var layers []nn.Layer
	in := 3
	for i, ch := range cfg.Channels {
		conv := nn.NewConv2D(fmt.Sprintf("encoder.backbone.conv%d", i), in, ch, 3, 1, 1, frozen, rng)
		layers = append(layers, conv, nn.NewReLU(frozen), nn.NewMaxPool2D(2, 2, frozen))
		in = ch
	}
	final := nn.NewConv2D(fmt.Sprintf("encoder.backbone.conv%d", len(cfg.Channels)), in, cfg.FeatureDim, 3, 1, 1, frozen, rng)
	layers = append(layers, final, nn.NewReLU(frozen), nn.NewGlobalAvgPool2D(frozen))

	projection := nn.NewLinear("encoder.embed", cfg.FeatureDim, cfg.EmbedSize, train, rng)

	return &Encoder{
		cfg:        cfg,
		backbone:   nn.NewSequential(layers...),
		projection: projection,
		relu:       nn.NewReLU(train),
		dropout:    nn.NewDropout(cfg.Dropout, train, rng),
		trainable:  projection.Parameters(),
	}, nil
}

// Forward encodes images [N, 3, S, S] into embeddings [N, EmbedSize].
func (e *Encoder) Forward(images *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	s := images.Shape()
	size := e.cfg.ImageSize
	if len(s) != 4 || s[1] != 3 || s[2] != size || s[3] != size {
		return nil, &tensor.ShapeError{
			Op:   "encoder.Forward",
			What: "images",
			Want: fmt.Sprintf("[N, 3, %d, %d]", size, size),
			Got:  s,
		}
	}
	features := e.backbone.Forward(images)
	return e.dropout.Forward(e.relu.Forward(e.projection.Forward(features))), nil
}

// SetTraining toggles projection dropout.
func (e *Encoder) SetTraining(training bool) {
	e.dropout.SetTraining(training)
}

// TrainableParameters returns the projection parameters. The set is fixed
// at construction.
func (e *Encoder) TrainableParameters() []*nn.Parameter {
	return e.trainable
}

// FrozenParameters returns the backbone parameters.
func (e *Encoder) FrozenParameters() []*nn.Parameter {
	return e.backbone.Parameters()
}

// Parameters returns frozen then trainable parameters, for state dicts.
func (e *Encoder) Parameters() []*nn.Parameter {
	return append(e.FrozenParameters(), e.trainable...)
}

// Config returns the encoder configuration.
func (e *Encoder) Config() Config {
	return e.cfg
}

// EmbedSize returns the embedding dimensionality.
func (e *Encoder) EmbedSize() int {
	return e.cfg.EmbedSize
}
