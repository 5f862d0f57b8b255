package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/captioner/internal/autodiff"
	"github.com/born-ml/captioner/internal/backend/cpu"
	"github.com/born-ml/captioner/internal/generate"
	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/sequence"
	"github.com/born-ml/captioner/internal/tensor"
	"github.com/born-ml/captioner/internal/vocab"
)

func testVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.Build([]string{"a cat sits"}, 1, nil)
	require.NoError(t, err)
	require.Equal(t, 7, v.Len())
	return v
}

func testConfig() Config {
	return Config{VocabSize: 7, EmbedSize: 4, HiddenSize: 6, NumLayers: 2, Dropout: 0.3, Seed: 5}
}

func newDecoder(t *testing.T, backend tensor.Backend) *Decoder {
	t.Helper()
	d, err := New(testConfig(), backend)
	require.NoError(t, err)
	return d
}

func captions(t *testing.T, rows [][]int32) *tensor.Tensor[int32] {
	t.Helper()
	c, err := sequence.PadBatch(rows, vocab.PAD)
	require.NoError(t, err)
	return c
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())
	assert.NoError(t, DefaultConfig(10).Validate())

	for name, mutate := range map[string]func(*Config){
		"tiny vocab":  func(c *Config) { c.VocabSize = 4 },
		"zero hidden": func(c *Config) { c.HiddenSize = 0 },
		"no layers":   func(c *Config) { c.NumLayers = 0 },
		"dropout":     func(c *Config) { c.Dropout = -0.1 },
	} {
		cfg := testConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestParameterNames(t *testing.T) {
	d := newDecoder(t, cpu.New())
	var names []string
	for _, p := range d.Parameters() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{
		"decoder.embed.weight",
		"decoder.lstm.weight_ih_l0", "decoder.lstm.weight_hh_l0", "decoder.lstm.bias_ih_l0", "decoder.lstm.bias_hh_l0",
		"decoder.lstm.weight_ih_l1", "decoder.lstm.weight_hh_l1", "decoder.lstm.bias_ih_l1", "decoder.lstm.bias_hh_l1",
		"decoder.linear.weight", "decoder.linear.bias",
	}, names)
}

func TestForwardShape(t *testing.T) {
	d := newDecoder(t, cpu.New())
	features := tensor.Randn(tensor.Shape{2, 4}, 0, 1, nn.NewRand(1))
	caps := captions(t, [][]int32{{1, 4, 5, 2}, {1, 6, 2}})

	logits, err := d.Forward(features, caps)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{8, 7}, logits.Shape())
}

func TestForwardShapeErrors(t *testing.T) {
	d := newDecoder(t, cpu.New())
	good := captions(t, [][]int32{{1, 4, 2}, {1, 5, 2}})

	tests := []struct {
		name     string
		features *tensor.Tensor[float32]
		captions *tensor.Tensor[int32]
	}{
		{"batch mismatch", tensor.Ones(tensor.Shape{3, 4}), good},
		{"embed mismatch", tensor.Ones(tensor.Shape{2, 5}), good},
		{"features not 2D", tensor.Ones(tensor.Shape{8}), good},
		{"caption too short", tensor.Ones(tensor.Shape{2, 4}), tensor.Zeros[int32](tensor.Shape{2, 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Forward(tt.features, tt.captions)
			var shapeErr *tensor.ShapeError
			require.ErrorAs(t, err, &shapeErr)
			assert.Equal(t, "decoder.Forward", shapeErr.Op)
		})
	}
}

// Row n*L+t may only depend on the image and captions[n][:t].
func TestForwardIsCausalAndRowAligned(t *testing.T) {
	d := newDecoder(t, cpu.New())
	features := tensor.Randn(tensor.Shape{2, 4}, 0, 1, nn.NewRand(3))
	base := [][]int32{{1, 4, 5, 2}, {1, 6, 4, 2}}
	const L = 4

	ref, err := d.Forward(features, captions(t, base))
	require.NoError(t, err)

	changed := [][]int32{{1, 6, 5, 2}, {1, 6, 4, 2}} // captions[0][1]: 4 -> 6
	out, err := d.Forward(features, captions(t, changed))
	require.NoError(t, err)

	for row := 0; row < 2*L; row++ {
		n, step := row/L, row%L
		affected := n == 0 && step >= 2
		if affected {
			assert.NotEqual(t, ref.Row(row), out.Row(row), "row %d", row)
		} else {
			assert.Equal(t, ref.Row(row), out.Row(row), "row %d", row)
		}
	}

	// The first row of each caption is the image-only transition.
	for n := 0; n < 2; n++ {
		logits, _, err := d.Step(rowTensor(features, n), nil)
		require.NoError(t, err)
		assert.InDeltaSlice(t, toF64(ref.Row(n*L)), toF64(logits.Data()), 1e-5)
	}
}

func TestForwardGradientsReachEveryParameter(t *testing.T) {
	backend := autodiff.New(cpu.New())
	d := newDecoder(t, backend)
	d.SetTraining(true)
	backend.Tape().StartRecording()

	features := tensor.Randn(tensor.Shape{2, 4}, 0, 1, nn.NewRand(4))
	caps := captions(t, [][]int32{{1, 4, 5, 2}, {1, 6, 2}})
	logits, err := d.Forward(features, caps)
	require.NoError(t, err)
	loss := nn.NewCrossEntropyLoss(vocab.PAD, backend).Forward(logits, sequence.Targets(caps))

	grads, err := autodiff.Backward(loss, backend)
	require.NoError(t, err)
	for _, p := range d.Parameters() {
		assert.NotNil(t, grads[p.Tensor()], p.Name())
	}
	assert.NotNil(t, grads[features], "gradient flows back into the visual embedding")
}

func TestGenerate(t *testing.T) {
	v := testVocab(t)
	feature := tensor.Randn(tensor.Shape{4}, 0, 1, nn.NewRand(9))

	t.Run("bounded and deterministic", func(t *testing.T) {
		d := newDecoder(t, cpu.New())
		a, err := d.Generate(feature, GenerateOptions{MaxLen: 6, Vocab: v})
		require.NoError(t, err)
		b, err := d.Generate(feature, GenerateOptions{MaxLen: 6, Vocab: v})
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.LessOrEqual(t, len(a.Raw), 6)
		assert.Len(t, a.Tokens, len(a.Raw))
		if a.Stopped {
			assert.Equal(t, vocab.END, a.Raw[len(a.Raw)-1])
		} else {
			assert.Len(t, a.Raw, 6)
		}
	})

	t.Run("stops on end", func(t *testing.T) {
		d := newDecoder(t, cpu.New())
		d.linear.Bias().Tensor().Data()[vocab.END] = 100

		res, err := d.Generate(feature, GenerateOptions{Vocab: v})
		require.NoError(t, err)
		assert.Equal(t, []int32{vocab.END}, res.Raw)
		assert.Equal(t, []string{vocab.ENDToken}, res.Tokens)
		assert.Empty(t, res.Words)
		assert.True(t, res.Stopped)
	})

	t.Run("caps at max length", func(t *testing.T) {
		d := newDecoder(t, cpu.New())
		d.linear.Bias().Tensor().Data()[5] = 100

		res, err := d.Generate(feature.Reshape(1, 4), GenerateOptions{MaxLen: 3, Vocab: v})
		require.NoError(t, err)
		assert.Equal(t, []int32{5, 5, 5}, res.Raw)
		assert.Equal(t, []string{"cat", "cat", "cat"}, res.Words)
		assert.False(t, res.Stopped)
	})

	t.Run("default cap", func(t *testing.T) {
		d := newDecoder(t, cpu.New())
		d.linear.Bias().Tensor().Data()[4] = 100

		res, err := d.Generate(feature, GenerateOptions{})
		require.NoError(t, err)
		assert.Len(t, res.Raw, generate.DefaultMaxLen)
		assert.Nil(t, res.Words, "no vocabulary, no words")
	})

	t.Run("start is stripped from words", func(t *testing.T) {
		d := newDecoder(t, cpu.New())
		bias := d.linear.Bias().Tensor().Data()
		bias[vocab.START] = 100

		res, err := d.Generate(feature, GenerateOptions{MaxLen: 2, Vocab: v})
		require.NoError(t, err)
		assert.Equal(t, []int32{vocab.START, vocab.START}, res.Raw)
		assert.Empty(t, res.Words)
	})

	t.Run("beam width one matches greedy", func(t *testing.T) {
		d := newDecoder(t, cpu.New())
		greedy, err := d.Generate(feature, GenerateOptions{MaxLen: 8})
		require.NoError(t, err)
		beam, err := d.Generate(feature, GenerateOptions{MaxLen: 8, Policy: generate.BeamSearch{Width: 1}})
		require.NoError(t, err)
		assert.Equal(t, greedy.Raw, beam.Raw)
	})

	t.Run("initial state", func(t *testing.T) {
		d := newDecoder(t, cpu.New())
		zero, err := d.Generate(feature, GenerateOptions{MaxLen: 4, InitialState: d.ZeroState()})
		require.NoError(t, err)
		implicit, err := d.Generate(feature, GenerateOptions{MaxLen: 4})
		require.NoError(t, err)
		assert.Equal(t, implicit.Raw, zero.Raw)

		_, err = d.Generate(feature, GenerateOptions{InitialState: &State{
			H: []*tensor.Tensor[float32]{tensor.Zeros[float32](tensor.Shape{2, 6})},
			C: []*tensor.Tensor[float32]{tensor.Zeros[float32](tensor.Shape{2, 6})},
		}})
		assert.Error(t, err)
	})

	t.Run("feature shape", func(t *testing.T) {
		d := newDecoder(t, cpu.New())
		_, err := d.Generate(tensor.Ones(tensor.Shape{2, 4}), GenerateOptions{})
		var shapeErr *tensor.ShapeError
		assert.ErrorAs(t, err, &shapeErr)
	})
}

func TestStepDoesNotMutateState(t *testing.T) {
	d := newDecoder(t, cpu.New())
	state := d.ZeroState()
	input := tensor.Ones(tensor.Shape{1, 4})

	_, next, err := d.Step(input, state)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 6), state.H[0].Data())
	assert.NotEqual(t, make([]float32, 6), next.H[0].Data())

	_, err = d.EmbedToken(7)
	assert.Error(t, err)
}

func rowTensor(x *tensor.Tensor[float32], i int) *tensor.Tensor[float32] {
	row := x.Row(i)
	out := tensor.Zeros[float32](tensor.Shape{1, len(row)})
	copy(out.Data(), row)
	return out
}

func toF64(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = float64(v)
	}
	return out
}
