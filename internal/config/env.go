package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EnvVar describes one CAPTIONER_* environment override.
type EnvVar struct {
	Name        string
	Description string
	set         func(c *Config, v string) error
}

func stringVar(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func intVar(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func float32Var(dst func(c *Config) *float32) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return err
		}
		*dst(c) = float32(f)
		return nil
	}
}

func boolVar(dst func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envVars = []EnvVar{
	{"CAPTIONER_CAPTIONS", "Captions CSV (image,caption)", stringVar(func(c *Config) *string { return &c.Data.Captions })},
	{"CAPTIONER_IMAGES", "Directory holding the images", stringVar(func(c *Config) *string { return &c.Data.Images })},
	{"CAPTIONER_ALLOW_RANDOM_BACKBONE", "Train without pretrained backbone weights", boolVar(func(c *Config) *bool { return &c.Model.AllowRandomBackbone })},
	{"CAPTIONER_BACKBONE_WEIGHTS", "Pretrained backbone weights (.born or .safetensors)", stringVar(func(c *Config) *string { return &c.Model.BackboneWeights })},
	{"CAPTIONER_BATCH_SIZE", "Training batch size", intVar(func(c *Config) *int { return &c.Data.BatchSize })},
	{"CAPTIONER_WORKERS", "Concurrent image decoders", intVar(func(c *Config) *int { return &c.Data.Workers })},
	{"CAPTIONER_VOCAB", "Vocabulary file", stringVar(func(c *Config) *string { return &c.Vocab.Path })},
	{"CAPTIONER_EPOCHS", "Training epochs", intVar(func(c *Config) *int { return &c.Train.Epochs })},
	{"CAPTIONER_LR", "Learning rate", float32Var(func(c *Config) *float32 { return &c.Train.LR })},
	{"CAPTIONER_MASK_PADDING", "Exclude PAD targets from the loss", boolVar(func(c *Config) *bool { return &c.Train.MaskPadding })},
	{"CAPTIONER_CHECKPOINT_DIR", "Where checkpoints are written", stringVar(func(c *Config) *string { return &c.Train.CheckpointDir })},
	{"CAPTIONER_MAX_LEN", "Maximum generated tokens", intVar(func(c *Config) *int { return &c.Generate.MaxLen })},
	{"CAPTIONER_BEAM_WIDTH", "Beam width, 1 for greedy", intVar(func(c *Config) *int { return &c.Generate.BeamWidth })},
	{"CAPTIONER_HOST", "Address for the caption server (default 127.0.0.1:8089)", stringVar(func(c *Config) *string { return &c.Server.Addr })},
	{"CAPTIONER_LOG_LEVEL", "trace, debug, info, warn or error", stringVar(func(c *Config) *string { return &c.Log.Level })},
	{"CAPTIONER_DEBUG", "Shorthand for CAPTIONER_LOG_LEVEL=debug", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil || b {
			c.Log.Level = "debug"
		}
		return nil
	}},
}

// EnvVars lists the supported environment overrides sorted by name.
func EnvVars() []EnvVar {
	out := append([]EnvVar(nil), envVars...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// clean strips quotes and spaces from the value.
func clean(v string) string {
	return strings.Trim(v, "\"' ")
}

// ApplyEnv overlays environment values read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		raw, ok := lookup(ev.Name)
		if !ok {
			continue
		}
		v := clean(raw)
		if v == "" {
			continue
		}
		if err := ev.set(c, v); err != nil {
			return fmt.Errorf("config: %s=%q: %w", ev.Name, raw, err)
		}
	}
	return nil
}
