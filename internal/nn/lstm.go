package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/captioner/internal/tensor"
)

// LSTM is a stacked long short-term memory network processed one time step
// at a time.
//
// Each layer l holds PyTorch-layout parameters:
//   - weight_ih_l{l}: [4*hidden, input]
//   - weight_hh_l{l}: [4*hidden, hidden]
//   - bias_ih_l{l}, bias_hh_l{l}: [4*hidden]
//
// Gate order along the 4*hidden axis is input, forget, cell, output:
//
//	i = σ(x W_ii + h W_hi + b_i)    f = σ(x W_if + h W_hf + b_f)
//	g = tanh(x W_ig + h W_hg + b_g) o = σ(x W_io + h W_ho + b_o)
//	c' = f*c + i*g                  h' = o*tanh(c')
//
// Between layers the output of layer l passes through dropout before
// feeding layer l+1 while training.
type LSTM struct {
	inputSize  int
	hiddenSize int
	layers     []lstmLayer
	dropout    *Dropout
	backend    tensor.Backend
}

type lstmLayer struct {
	weightIH *Parameter
	weightHH *Parameter
	biasIH   *Parameter
	biasHH   *Parameter
}

// LSTMState holds the hidden and cell state of every layer, each [batch, hidden].
type LSTMState struct {
	H []*tensor.Tensor[float32]
	C []*tensor.Tensor[float32]
}

// Batch returns the batch size of the state.
func (s *LSTMState) Batch() int {
	return s.H[0].Shape()[0]
}

// Row extracts batch row i as a state of batch size 1.
func (s *LSTMState) Row(i int) *LSTMState {
	out := &LSTMState{
		H: make([]*tensor.Tensor[float32], len(s.H)),
		C: make([]*tensor.Tensor[float32], len(s.C)),
	}
	for l := range s.H {
		out.H[l] = rowOf(s.H[l], i)
		out.C[l] = rowOf(s.C[l], i)
	}
	return out
}

func rowOf(t *tensor.Tensor[float32], i int) *tensor.Tensor[float32] {
	row := t.Row(i)
	out := tensor.Zeros[float32](tensor.Shape{1, len(row)})
	copy(out.Data(), row)
	return out
}

// NewLSTM creates a stacked LSTM. Parameters are drawn from
// U(-1/sqrt(hidden), 1/sqrt(hidden)).
func NewLSTM(name string, inputSize, hiddenSize, numLayers int, dropout float32, backend tensor.Backend, rng *rand.Rand) *LSTM {
	if numLayers < 1 {
		panic(fmt.Sprintf("NewLSTM: numLayers must be >= 1, got %d", numLayers))
	}
	gates := 4 * hiddenSize

	layers := make([]lstmLayer, numLayers)
	for l := range layers {
		in := inputSize
		if l > 0 {
			in = hiddenSize
		}
		layers[l] = lstmLayer{
			weightIH: NewParameter(fmt.Sprintf("%s.weight_ih_l%d", name, l), Recurrent(hiddenSize, tensor.Shape{gates, in}, rng)),
			weightHH: NewParameter(fmt.Sprintf("%s.weight_hh_l%d", name, l), Recurrent(hiddenSize, tensor.Shape{gates, hiddenSize}, rng)),
			biasIH:   NewParameter(fmt.Sprintf("%s.bias_ih_l%d", name, l), Recurrent(hiddenSize, tensor.Shape{gates}, rng)),
			biasHH:   NewParameter(fmt.Sprintf("%s.bias_hh_l%d", name, l), Recurrent(hiddenSize, tensor.Shape{gates}, rng)),
		}
	}

	return &LSTM{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		layers:     layers,
		dropout:    NewDropout(dropout, backend, rng),
		backend:    backend,
	}
}

// ZeroState returns an all-zero state for the given batch size.
func (l *LSTM) ZeroState(batch int) *LSTMState {
	s := &LSTMState{
		H: make([]*tensor.Tensor[float32], len(l.layers)),
		C: make([]*tensor.Tensor[float32], len(l.layers)),
	}
	for i := range l.layers {
		s.H[i] = tensor.Zeros[float32](tensor.Shape{batch, l.hiddenSize})
		s.C[i] = tensor.Zeros[float32](tensor.Shape{batch, l.hiddenSize})
	}
	return s
}

// Step advances every layer by one time step.
//
// x has shape [batch, input]. Returns the top layer's hidden state
// [batch, hidden] and the next state. A nil state means all zeros.
func (l *LSTM) Step(x *tensor.Tensor[float32], state *LSTMState) (*tensor.Tensor[float32], *LSTMState) {
	s := x.Shape()
	if len(s) != 2 || s[1] != l.inputSize {
		panic(fmt.Sprintf("LSTM.Step: expected input [batch, %d], got %v", l.inputSize, s))
	}
	if state == nil {
		state = l.ZeroState(s[0])
	}
	if len(state.H) != len(l.layers) || state.Batch() != s[0] {
		panic(fmt.Sprintf("LSTM.Step: state for %d layers / batch %d does not match input %v", len(state.H), state.Batch(), s))
	}

	next := &LSTMState{
		H: make([]*tensor.Tensor[float32], len(l.layers)),
		C: make([]*tensor.Tensor[float32], len(l.layers)),
	}
	input := x
	for i, layer := range l.layers {
		if i > 0 {
			input = l.dropout.Forward(input)
		}
		h, c := l.cell(layer, input, state.H[i], state.C[i])
		next.H[i], next.C[i] = h, c
		input = h
	}
	return input, next
}

func (l *LSTM) cell(layer lstmLayer, x, h, c *tensor.Tensor[float32]) (*tensor.Tensor[float32], *tensor.Tensor[float32]) {
	b := l.backend
	H := l.hiddenSize

	gates := b.Add(b.MatMulT(x, layer.weightIH.Tensor()), layer.biasIH.Tensor())
	gates = b.Add(gates, b.Add(b.MatMulT(h, layer.weightHH.Tensor()), layer.biasHH.Tensor()))

	i := b.Sigmoid(b.SliceCols(gates, 0, H))
	f := b.Sigmoid(b.SliceCols(gates, H, 2*H))
	g := b.Tanh(b.SliceCols(gates, 2*H, 3*H))
	o := b.Sigmoid(b.SliceCols(gates, 3*H, 4*H))

	cNext := b.Add(b.Mul(f, c), b.Mul(i, g))
	hNext := b.Mul(o, b.Tanh(cNext))
	return hNext, cNext
}

// Forward runs the LSTM over a sequence of step inputs, returning the top
// layer's hidden state at every step and the final state.
func (l *LSTM) Forward(steps []*tensor.Tensor[float32], state *LSTMState) ([]*tensor.Tensor[float32], *LSTMState) {
	outputs := make([]*tensor.Tensor[float32], len(steps))
	for t, x := range steps {
		outputs[t], state = l.Step(x, state)
	}
	return outputs, state
}

// SetTraining toggles inter-layer dropout.
func (l *LSTM) SetTraining(training bool) {
	l.dropout.SetTraining(training)
}

// HiddenSize returns the hidden state width.
func (l *LSTM) HiddenSize() int {
	return l.hiddenSize
}

// NumLayers returns the number of stacked layers.
func (l *LSTM) NumLayers() int {
	return len(l.layers)
}

// Parameters returns every layer's parameters in layer order.
func (l *LSTM) Parameters() []*Parameter {
	params := make([]*Parameter, 0, 4*len(l.layers))
	for _, layer := range l.layers {
		params = append(params, layer.weightIH, layer.weightHH, layer.biasIH, layer.biasHH)
	}
	return params
}
