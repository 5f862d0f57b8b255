package encoder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/captioner/internal/autodiff"
	"github.com/born-ml/captioner/internal/backend/cpu"
	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/serialization"
	"github.com/born-ml/captioner/internal/tensor"
)

func smallConfig() Config {
	return Config{ImageSize: 8, Channels: []int{4}, FeatureDim: 6, EmbedSize: 5, Dropout: 0.5, Seed: 3}
}

func newTestEncoder(t *testing.T) (*Encoder, *autodiff.AutodiffBackend[*cpu.CPUBackend]) {
	t.Helper()
	frozen := cpu.New()
	train := autodiff.New(frozen)
	enc, err := New(smallConfig(), frozen, train)
	require.NoError(t, err)
	return enc, train
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero image", func(c *Config) { c.ImageSize = 0 }, true},
		{"too many pools", func(c *Config) { c.ImageSize = 2; c.Channels = []int{4, 4} }, true},
		{"bad channels", func(c *Config) { c.Channels = []int{0} }, true},
		{"zero embed", func(c *Config) { c.EmbedSize = 0 }, true},
		{"dropout one", func(c *Config) { c.Dropout = 1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestForwardShape(t *testing.T) {
	enc, _ := newTestEncoder(t)

	out, err := enc.Forward(tensor.Ones(tensor.Shape{2, 3, 8, 8}))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 5}, out.Shape())

	for _, bad := range []tensor.Shape{{2, 3, 8, 7}, {2, 1, 8, 8}, {3, 8, 8}} {
		_, err := enc.Forward(tensor.Ones(bad))
		var shapeErr *tensor.ShapeError
		assert.ErrorAs(t, err, &shapeErr, "shape %v", bad)
	}
}

func TestForwardDeterministicInInference(t *testing.T) {
	enc, _ := newTestEncoder(t)
	images := tensor.Randn(tensor.Shape{1, 3, 8, 8}, 0, 1, nn.NewRand(1))

	a, err := enc.Forward(images)
	require.NoError(t, err)
	b, err := enc.Forward(images)
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())
}

func TestFreezing(t *testing.T) {
	enc, train := newTestEncoder(t)

	trainable := enc.TrainableParameters()
	require.Len(t, trainable, 2)
	assert.Equal(t, "encoder.embed.weight", trainable[0].Name())
	assert.Equal(t, "encoder.embed.bias", trainable[1].Name())

	frozen := enc.FrozenParameters()
	require.Len(t, frozen, 4)
	assert.Equal(t, "encoder.backbone.conv0.weight", frozen[0].Name())
	assert.Len(t, enc.Parameters(), 6)

	// Only the projection is recorded, so gradients never reach the backbone.
	train.Tape().StartRecording()
	emb, err := enc.Forward(tensor.Ones(tensor.Shape{1, 3, 8, 8}))
	require.NoError(t, err)
	loss := train.CrossEntropy(emb, tensor.Indices([]int32{1}), -1)
	grads, err := autodiff.Backward(loss, train)
	require.NoError(t, err)

	for _, p := range frozen {
		assert.Nil(t, grads[p.Tensor()], p.Name())
	}
	assert.NotNil(t, grads[trainable[0].Tensor()])
}

func TestBackboneFileRoundTrip(t *testing.T) {
	src, _ := newTestEncoder(t)
	path := filepath.Join(t.TempDir(), "backbone.born")
	require.NoError(t, src.SaveBackboneFile(path))

	cfg := smallConfig()
	cfg.Seed = 99
	dst, err := New(cfg, cpu.New(), cpu.New())
	require.NoError(t, err)
	require.NotEqual(t, src.FrozenParameters()[0].Tensor().Data(), dst.FrozenParameters()[0].Tensor().Data())

	require.NoError(t, dst.LoadBackboneFile(path))
	for i, p := range src.FrozenParameters() {
		assert.Equal(t, p.Tensor().Data(), dst.FrozenParameters()[i].Tensor().Data(), p.Name())
	}
}

func TestLoadBackboneErrors(t *testing.T) {
	enc, _ := newTestEncoder(t)

	err := enc.LoadBackbone(map[string]*tensor.Tensor[float32]{})
	assert.ErrorContains(t, err, "missing")

	weights := make(map[string]*tensor.Tensor[float32])
	for _, p := range enc.FrozenParameters() {
		weights[p.Name()] = p.Tensor().Clone()
	}
	weights["encoder.backbone.conv0.bias"] = tensor.Ones(tensor.Shape{7})
	assert.ErrorContains(t, enc.LoadBackbone(weights), "shape mismatch")
}

func TestLoadBackboneFile_SafeTensors(t *testing.T) {
	src, _ := newTestEncoder(t)

	header := make(map[string]serialization.SafeTensorInfo)
	var data bytes.Buffer
	for _, p := range src.FrozenParameters() {
		start := int64(data.Len())
		require.NoError(t, binary.Write(&data, binary.LittleEndian, p.Tensor().Data()))
		header[strings.TrimPrefix(p.Name(), "encoder.")] = serialization.SafeTensorInfo{
			DType:       serialization.SafeTensorsF32,
			Shape:       p.Tensor().Shape(),
			DataOffsets: [2]int64{start, int64(data.Len())},
		}
	}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(headerJSON))))
	file.Write(headerJSON)
	file.Write(data.Bytes())
	path := filepath.Join(t.TempDir(), "backbone.safetensors")
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o600))

	cfg := smallConfig()
	cfg.Seed = 99
	dst, err := New(cfg, cpu.New(), cpu.New())
	require.NoError(t, err)
	require.NoError(t, dst.LoadBackboneFile(path))
	for i, p := range src.FrozenParameters() {
		assert.Equal(t, p.Tensor().Data(), dst.FrozenParameters()[i].Tensor().Data(), p.Name())
	}
}
