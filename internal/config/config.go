// Package config loads captioner settings.
//
// Values come from three layers, later ones winning: built-in defaults, a
// YAML file, and CAPTIONER_* environment variables. The CLI applies its
// flags on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/captioner/internal/dataset"
	"github.com/born-ml/captioner/internal/logutil"
	"github.com/born-ml/captioner/internal/sequence"
	"github.com/born-ml/captioner/internal/tokenizer"
)

// Config is the full captioner configuration.
type Config struct {
	Data     Data     `yaml:"data"`
	Vocab    Vocab    `yaml:"vocab"`
	Model    Model    `yaml:"model"`
	Train    Train    `yaml:"train"`
	Generate Generate `yaml:"generate"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

// Data configures the dataset reader and loader.
type Data struct {
	Captions    string  `yaml:"captions"`     // CSV with image,caption rows
	Images      string  `yaml:"images"`       // Directory holding the image files
	ImageSize   int     `yaml:"image_size"`   // Square side images are resized to
	Split       string  `yaml:"split"`        // "image" or "none"
	ValFraction float64 `yaml:"val_fraction"` // Share of images held out for validation
	SplitSeed   int64   `yaml:"split_seed"`
	Padding     string  `yaml:"padding"` // "batch" or "global"
	BatchSize   int     `yaml:"batch_size"`
	Workers     int     `yaml:"workers"`  // Concurrent image decoders per batch
	Prefetch    int     `yaml:"prefetch"` // Batches decoded ahead of the trainer
}

// Vocab configures vocabulary construction.
type Vocab struct {
	Threshold int    `yaml:"threshold"`
	Tokenizer string `yaml:"tokenizer"`
	Path      string `yaml:"path"`
}

// Model configures the encoder-decoder architecture.
type Model struct {
	EmbedSize       int     `yaml:"embed_size"`
	HiddenSize      int     `yaml:"hidden_size"`
	NumLayers       int     `yaml:"num_layers"`
	EncoderDropout  float32 `yaml:"encoder_dropout"`
	DecoderDropout  float32 `yaml:"decoder_dropout"`
	Channels        []int   `yaml:"channels"`
	FeatureDim      int     `yaml:"feature_dim"`
	BackboneWeights string  `yaml:"backbone_weights"` // Pretrained .born or .safetensors backbone
	WordVectors     string  `yaml:"word_vectors"`
	Seed            int64   `yaml:"seed"`

	// AllowRandomBackbone lets train start from the seeded random backbone
	// when BackboneWeights is empty. The backbone stays frozen either way.
	AllowRandomBackbone bool `yaml:"allow_random_backbone"`
}

// Train configures the training driver.
type Train struct {
	Epochs        int     `yaml:"epochs"`
	Optimizer     string  `yaml:"optimizer"`
	LR            float32 `yaml:"lr"`
	Momentum      float32 `yaml:"momentum"`
	ClipNorm      float32 `yaml:"clip_norm"`
	MaskPadding   bool    `yaml:"mask_padding"`
	LogEvery      int     `yaml:"log_every"`
	CheckpointDir string  `yaml:"checkpoint_dir"`
	Seed          int64   `yaml:"seed"`
	Half          bool    `yaml:"half"` // Store checkpoints as float16
}

// Generate configures caption generation.
type Generate struct {
	MaxLen    int `yaml:"max_len"`
	BeamWidth int `yaml:"beam_width"`
}

// Server configures the HTTP endpoint.
type Server struct {
	Addr string `yaml:"addr"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Data: Data{
			Captions:    "captions.txt",
			Images:      "Images",
			ImageSize:   64,
			Split:       dataset.SplitByImage.String(),
			ValFraction: dataset.DefaultValFraction,
			SplitSeed:   dataset.DefaultSplitSeed,
			Padding:     sequence.PadPerBatch.String(),
			BatchSize:   32,
			Workers:     4,
			Prefetch:    2,
		},
		Vocab: Vocab{
			Threshold: 5,
			Tokenizer: tokenizer.Default,
			Path:      "vocab.json",
		},
		Model: Model{
			EmbedSize:      128,
			HiddenSize:     256,
			NumLayers:      1,
			EncoderDropout: 0.5,
			DecoderDropout: 0.3,
			Channels:       []int{16, 32},
			FeatureDim:     64,
			Seed:           1,
		},
		Train: Train{
			Epochs:        10,
			Optimizer:     "adam",
			LR:            3e-4,
			MaskPadding:   true,
			LogEvery:      100,
			CheckpointDir: "checkpoints",
			Seed:          42,
		},
		Generate: Generate{
			MaxLen: 25,
		},
		Server: Server{
			Addr: "127.0.0.1:8089",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		//nolint:gosec // G304: config path is user supplied by design
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := Decode(bytes.NewReader(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Decode overlays YAML from r onto cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if _, err := dataset.ParseSplitStrategy(c.Data.Split); err != nil {
		return fmt.Errorf("config: data.split: %w", err)
	}
	if _, err := sequence.ParsePadStrategy(c.Data.Padding); err != nil {
		return fmt.Errorf("config: data.padding: %w", err)
	}
	if c.Data.ValFraction < 0 || c.Data.ValFraction >= 1 {
		return fmt.Errorf("config: data.val_fraction must be in [0, 1), got %v", c.Data.ValFraction)
	}
	if c.Data.BatchSize < 1 || c.Data.Workers < 1 || c.Data.Prefetch < 0 {
		return fmt.Errorf("config: batch_size and workers must be positive, prefetch non-negative")
	}
	if c.Vocab.Threshold < 1 {
		return fmt.Errorf("config: vocab.threshold must be >= 1, got %d", c.Vocab.Threshold)
	}
	if c.Train.Epochs < 0 || c.Train.LogEvery < 0 {
		return fmt.Errorf("config: train.epochs and train.log_every must be non-negative")
	}
	if c.Generate.MaxLen < 1 {
		return fmt.Errorf("config: generate.max_len must be positive, got %d", c.Generate.MaxLen)
	}
	if _, err := logutil.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// YAML renders the configuration.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
