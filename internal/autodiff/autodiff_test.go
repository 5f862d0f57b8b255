package autodiff

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/captioner/internal/backend/cpu"
	"github.com/born-ml/captioner/internal/tensor"
)

func TestTape_RecordingControl(t *testing.T) {
	backend := New(cpu.New())
	x := tensor.Ones(tensor.Shape{2})

	backend.Add(x, x)
	assert.Equal(t, 0, backend.Tape().Len(), "not recording by default")

	backend.Tape().StartRecording()
	backend.Add(x, x)
	backend.Conv2D(tensor.Ones(tensor.Shape{1, 1, 2, 2}), tensor.Ones(tensor.Shape{1, 1, 1, 1}), nil, 1, 0)
	assert.Equal(t, 1, backend.Tape().Len(), "conv is not recorded")

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().Len())
	assert.True(t, backend.Tape().IsRecording())
}

func TestBackward_SharedInputAccumulates(t *testing.T) {
	backend := New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{3}, tensor.Shape{1})
	y := backend.Mul(x, x) // y = x², dy/dx = 2x

	grads, err := Backward(y, backend)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, grads[x].Data()[0], 1e-6)
}

func TestBackward_Errors(t *testing.T) {
	backend := New(cpu.New())
	backend.Tape().StartRecording()

	x := tensor.Ones(tensor.Shape{2})
	y := backend.Add(x, x)
	_, err := Backward(y, backend)
	assert.Error(t, err, "non-scalar loss")

	z := backend.Scale(tensor.Ones(tensor.Shape{1}), 2)
	backend.Add(y, y)
	_, err = Backward(z, backend)
	assert.Error(t, err, "loss must be last op")
}

// lossFn builds a small graph touching most recorded ops:
// embedding lookup, gates via MatMulT/SliceCols, sigmoid/tanh, stacked
// steps, a transpose round trip and a masked cross-entropy.
func lossFn(b tensor.Backend, emb, w, bias *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	step := func(idx []int32) *tensor.Tensor[float32] {
		x := b.Embedding(emb, tensor.Indices(idx)) // [2, 3]
		z := b.Add(b.MatMulT(x, w), bias)          // [2, 4]
		g := b.Sigmoid(b.SliceCols(z, 0, 2))       // [2, 2]
		h := b.Tanh(b.SliceCols(z, 2, 4))          // [2, 2]
		return b.Mul(g, h)
	}
	s0 := step([]int32{0, 2})
	s1 := b.Scale(step([]int32{1, 1}), 1.5)

	stacked := b.Stack([]*tensor.Tensor[float32]{s0, s1}) // [4, 2]
	mix, _ := tensor.FromSlice([]float32{1, -1, 0.5, 2}, tensor.Shape{2, 2})
	logits := b.Add(b.MatMul(stacked, mix), b.Scale(b.Transpose(b.Transpose(stacked)), 0.1))
	return b.CrossEntropy(logits, tensor.Indices([]int32{1, 0, 1, 0}), 0)
}

func TestReLU_Gradient(t *testing.T) {
	backend := New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{-1, 2}, tensor.Shape{1, 2})
	y := backend.ReLU(x)
	loss := backend.CrossEntropy(y, tensor.Indices([]int32{1}), -1)

	grads, err := Backward(loss, backend)
	require.NoError(t, err)
	assert.Equal(t, float32(0), grads[x].Data()[0], "negative input blocks gradient")
	assert.Less(t, grads[x].Data()[1], float32(0))
}

func TestBackward_MatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	emb := tensor.Randn(tensor.Shape{3, 3}, 0, 1, rng)
	w := tensor.Randn(tensor.Shape{4, 3}, 0, 1, rng)
	bias := tensor.Randn(tensor.Shape{4}, 0, 0.5, rng)

	backend := New(cpu.New())
	backend.Tape().StartRecording()
	loss := lossFn(backend, emb, w, bias)
	grads, err := Backward(loss, backend)
	require.NoError(t, err)

	inner := cpu.New()
	const eps = 1e-2
	for name, param := range map[string]*tensor.Tensor[float32]{"emb": emb, "w": w, "bias": bias} {
		grad := grads[param]
		require.NotNil(t, grad, name)
		data := param.Data()
		for i := range data {
			orig := data[i]
			data[i] = orig + eps
			up := lossFn(inner, emb, w, bias).Data()[0]
			data[i] = orig - eps
			down := lossFn(inner, emb, w, bias).Data()[0]
			data[i] = orig

			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, grad.Data()[i], 5e-3, "%s[%d]", name, i)
		}
	}
}
