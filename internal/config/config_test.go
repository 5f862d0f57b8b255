package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25, cfg.Generate.MaxLen)
	assert.True(t, cfg.Train.MaskPadding)
	assert.Equal(t, "batch", cfg.Data.Padding)
	assert.Equal(t, "image", cfg.Data.Split)
}

func TestDecode_Overlay(t *testing.T) {
	cfg := Default()
	in := `
data:
  batch_size: 8
  padding: global
model:
  hidden_size: 64
train:
  epochs: 3
  mask_padding: false
`
	require.NoError(t, Decode(strings.NewReader(in), &cfg))
	assert.Equal(t, 8, cfg.Data.BatchSize)
	assert.Equal(t, "global", cfg.Data.Padding)
	assert.Equal(t, 64, cfg.Model.HiddenSize)
	assert.Equal(t, 3, cfg.Train.Epochs)
	assert.False(t, cfg.Train.MaskPadding)
	assert.Equal(t, 128, cfg.Model.EmbedSize, "untouched keys keep defaults")
}

func TestDecode_EmptyAndUnknown(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(""), &cfg))
	assert.Equal(t, Default(), cfg)

	err := Decode(strings.NewReader("train:\n  epoch: 3\n"), &cfg)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"split", func(c *Config) { c.Data.Split = "random" }},
		{"padding", func(c *Config) { c.Data.Padding = "left" }},
		{"val fraction", func(c *Config) { c.Data.ValFraction = 1 }},
		{"batch size", func(c *Config) { c.Data.BatchSize = 0 }},
		{"workers", func(c *Config) { c.Data.Workers = 0 }},
		{"threshold", func(c *Config) { c.Vocab.Threshold = 0 }},
		{"epochs", func(c *Config) { c.Train.Epochs = -1 }},
		{"max len", func(c *Config) { c.Generate.MaxLen = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func lookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookup(map[string]string{
		"CAPTIONER_BATCH_SIZE":   "16",
		"CAPTIONER_LR":           "0.01",
		"CAPTIONER_MASK_PADDING": "false",
		"CAPTIONER_HOST":         `"0.0.0.0:9000"`,
		"CAPTIONER_IMAGES":       "  ",

		"CAPTIONER_BACKBONE_WEIGHTS":      "resnet.safetensors",
		"CAPTIONER_ALLOW_RANDOM_BACKBONE": "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Data.BatchSize)
	assert.InDelta(t, 0.01, cfg.Train.LR, 1e-7)
	assert.False(t, cfg.Train.MaskPadding)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "Images", cfg.Data.Images, "blank values are ignored")
	assert.Equal(t, "resnet.safetensors", cfg.Model.BackboneWeights)
	assert.True(t, cfg.Model.AllowRandomBackbone)
}

func TestDefaultRequiresBackboneWeights(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Model.BackboneWeights)
	assert.False(t, cfg.Model.AllowRandomBackbone)
}

func TestApplyEnv_Debug(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"1", "debug"},
		{"true", "debug"},
		{"false", "info"},
		{"yes", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.ApplyEnv(lookup(map[string]string{"CAPTIONER_DEBUG": tt.value})))
			assert.Equal(t, tt.want, cfg.Log.Level)
		})
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookup(map[string]string{"CAPTIONER_EPOCHS": "ten"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAPTIONER_EPOCHS")
}

func TestEnvVarsSorted(t *testing.T) {
	vars := EnvVars()
	require.NotEmpty(t, vars)
	for i := 1; i < len(vars); i++ {
		assert.Less(t, vars[i-1].Name, vars[i].Name)
	}
	for _, v := range vars {
		assert.True(t, strings.HasPrefix(v.Name, "CAPTIONER_"))
		assert.NotEmpty(t, v.Description)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captioner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("train:\n  epochs: 2\n"), 0o600))
	t.Setenv("CAPTIONER_EPOCHS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Train.Epochs, "environment wins over file")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Model.Channels = []int{8, 8, 16}
	data, err := cfg.YAML()
	require.NoError(t, err)

	var got Config
	require.NoError(t, Decode(strings.NewReader(string(data)), &got))
	assert.Equal(t, cfg, got)
}
