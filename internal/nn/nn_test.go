package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/captioner/internal/autodiff"
	"github.com/born-ml/captioner/internal/backend/cpu"
	"github.com/born-ml/captioner/internal/tensor"
)

func fill(t *tensor.Tensor[float32], v float32) {
	for i := range t.Data() {
		t.Data()[i] = v
	}
}

func TestParameter(t *testing.T) {
	data, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3})
	p := NewParameter("layer.weight", data)

	assert.Equal(t, "layer.weight", p.Name())
	assert.Same(t, data, p.Tensor())
	assert.Nil(t, p.Grad())

	grad := tensor.Ones(tensor.Shape{3})
	CollectGrads([]*Parameter{p}, map[*tensor.Tensor[float32]]*tensor.Tensor[float32]{data: grad})
	assert.Same(t, grad, p.Grad())
	p.ZeroGrad()
	assert.Nil(t, p.Grad())

	require.NoError(t, p.Load(tensor.Full[float32](tensor.Shape{3}, 7)))
	assert.Equal(t, []float32{7, 7, 7}, data.Data(), "load keeps tensor identity")
	assert.Error(t, p.Load(tensor.Ones(tensor.Shape{2})))
}

func TestLinear(t *testing.T) {
	backend := cpu.New()
	l := NewLinear("proj", 3, 2, backend, NewRand(1))

	assert.Equal(t, tensor.Shape{2, 3}, l.Weight().Tensor().Shape())
	assert.Equal(t, []string{"proj.weight", "proj.bias"}, []string{l.Parameters()[0].Name(), l.Parameters()[1].Name()})

	fill(l.Weight().Tensor(), 1)
	copy(l.Bias().Tensor().Data(), []float32{0.5, -0.5})
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 0, 0, 1}, tensor.Shape{2, 3})

	out := l.Forward(x)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{6.5, 5.5, 1.5, 0.5}, out.Data())

	assert.Panics(t, func() { l.Forward(tensor.Ones(tensor.Shape{2, 4})) })
}

func TestXavierBounds(t *testing.T) {
	w := Xavier(10, 20, tensor.Shape{20, 10}, NewRand(2))
	bound := float32(math.Sqrt(6.0 / 30.0))
	for _, v := range w.Data() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}
}

func TestEmbedding(t *testing.T) {
	e := NewEmbedding("embed", 5, 3, cpu.New(), NewRand(3))
	out := e.Forward(tensor.Indices([]int32{4, 0}))
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, e.Weight.Tensor().Row(4), out.Row(0))
	assert.Equal(t, "embed.weight", e.Parameters()[0].Name())
}

func TestLSTM_SingleUnitStep(t *testing.T) {
	l := NewLSTM("lstm", 1, 1, 1, 0, cpu.New(), NewRand(4))
	for _, p := range l.Parameters() {
		fill(p.Tensor(), 0)
	}
	fill(l.layers[0].weightIH.Tensor(), 1)

	x, _ := tensor.FromSlice([]float32{1}, tensor.Shape{1, 1})
	h, state := l.Step(x, nil)

	sig := 1 / (1 + math.Exp(-1))
	c := sig * math.Tanh(1)
	assert.InDelta(t, c, state.C[0].Data()[0], 1e-6)
	assert.InDelta(t, sig*math.Tanh(c), h.Data()[0], 1e-6)
	assert.Same(t, h, state.H[0])
}

func TestLSTM_ShapesAndNames(t *testing.T) {
	l := NewLSTM("decoder.lstm", 4, 6, 2, 0.2, cpu.New(), NewRand(5))
	assert.Equal(t, 2, l.NumLayers())
	params := l.Parameters()
	require.Len(t, params, 8)
	assert.Equal(t, "decoder.lstm.weight_ih_l0", params[0].Name())
	assert.Equal(t, tensor.Shape{24, 4}, params[0].Tensor().Shape())
	assert.Equal(t, "decoder.lstm.weight_ih_l1", params[4].Name())
	assert.Equal(t, tensor.Shape{24, 6}, params[4].Tensor().Shape())

	steps := []*tensor.Tensor[float32]{tensor.Ones(tensor.Shape{3, 4}), tensor.Ones(tensor.Shape{3, 4})}
	outs, state := l.Forward(steps, nil)
	require.Len(t, outs, 2)
	assert.Equal(t, tensor.Shape{3, 6}, outs[1].Shape())
	assert.Equal(t, 3, state.Batch())

	row := state.Row(2)
	assert.Equal(t, 1, row.Batch())
	assert.Equal(t, state.H[1].Row(2), row.H[1].Data())

	assert.Panics(t, func() { l.Step(tensor.Ones(tensor.Shape{3, 5}), nil) })
	assert.Panics(t, func() { l.Step(tensor.Ones(tensor.Shape{2, 4}), state) })
}

func TestLSTM_GradientMatchesFiniteDifferences(t *testing.T) {
	l := NewLSTM("lstm", 2, 3, 1, 0, nil, NewRand(6))
	x0, _ := tensor.FromSlice([]float32{0.5, -1, 1, 0.25}, tensor.Shape{2, 2})
	x1, _ := tensor.FromSlice([]float32{-0.3, 0.8, 0.1, 0.1}, tensor.Shape{2, 2})
	targets := tensor.Indices([]int32{2, 0, 1, 1})

	loss := func(b tensor.Backend) *tensor.Tensor[float32] {
		l.backend = b
		outs, _ := l.Forward([]*tensor.Tensor[float32]{x0, x1}, nil)
		return b.CrossEntropy(b.Stack(outs), targets, NoIgnore)
	}

	ad := autodiff.New(cpu.New())
	ad.Tape().StartRecording()
	grads, err := autodiff.Backward(loss(ad), ad)
	require.NoError(t, err)

	inner := cpu.New()
	const eps = 1e-2
	for _, p := range l.Parameters() {
		grad := grads[p.Tensor()]
		require.NotNil(t, grad, p.Name())
		data := p.Tensor().Data()
		for i := range data {
			orig := data[i]
			data[i] = orig + eps
			up := loss(inner).Data()[0]
			data[i] = orig - eps
			down := loss(inner).Data()[0]
			data[i] = orig
			assert.InDelta(t, (up-down)/(2*eps), grad.Data()[i], 5e-3, "%s[%d]", p.Name(), i)
		}
	}
}

func TestDropout(t *testing.T) {
	d := NewDropout(0.5, cpu.New(), NewRand(7))
	x := tensor.Ones(tensor.Shape{1000})

	assert.Same(t, x, d.Forward(x), "identity in inference mode")

	d.SetTraining(true)
	out := d.Forward(x)
	zeros := 0
	for _, v := range out.Data() {
		if v == 0 {
			zeros++
		} else {
			assert.Equal(t, float32(2), v)
		}
	}
	assert.InDelta(t, 500, zeros, 100)

	assert.Panics(t, func() { NewDropout(1, cpu.New(), NewRand(1)) })
}

func TestConvStack(t *testing.T) {
	backend := cpu.New()
	rng := NewRand(8)
	net := NewSequential(
		NewConv2D("conv0", 3, 4, 3, 1, 1, backend, rng),
		NewReLU(backend),
		NewMaxPool2D(2, 2, backend),
		NewGlobalAvgPool2D(backend),
	)
	out := net.Forward(tensor.Ones(tensor.Shape{2, 3, 8, 8}))
	assert.Equal(t, tensor.Shape{2, 4}, out.Shape())
	for _, v := range out.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
	}
	assert.Len(t, net.Parameters(), 2)
	assert.Len(t, StateDict(net), 2)
}

func TestCrossEntropyLoss(t *testing.T) {
	backend := cpu.New()
	logits := tensor.Zeros[float32](tensor.Shape{2, 4})

	all := NewCrossEntropyLoss(NoIgnore, backend).Forward(logits, tensor.Indices([]int32{0, 1}))
	assert.InDelta(t, math.Log(4), all.Data()[0], 1e-6)

	masked := NewCrossEntropyLoss(0, backend)
	assert.Equal(t, int32(0), masked.IgnoreIndex())
	out := masked.Forward(logits, tensor.Indices([]int32{0, 0}))
	assert.Equal(t, float32(0), out.Data()[0])

	assert.Panics(t, func() { masked.Forward(logits, tensor.Indices([]int32{1})) })
}
