package ops

import "github.com/born-ml/captioner/internal/tensor"

// SigmoidOp represents output = sigmoid(x).
//
// Backward: grad_x = outputGrad * y * (1 - y), using the saved output y.
type SigmoidOp struct{ base }

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(x, output *tensor.Tensor[float32]) *SigmoidOp {
	return &SigmoidOp{base{inputs: []*tensor.Tensor[float32]{x}, output: output}}
}

// Backward computes the sigmoid gradient.
func (op *SigmoidOp) Backward(outputGrad *tensor.Tensor[float32], _ tensor.Backend) []*tensor.Tensor[float32] {
	return []*tensor.Tensor[float32]{zipWith(outputGrad, op.output, func(g, y float32) float32 {
		return g * y * (1 - y)
	})}
}

// TanhOp represents output = tanh(x).
//
// Backward: grad_x = outputGrad * (1 - y²).
type TanhOp struct{ base }

// NewTanhOp creates a new TanhOp.
func NewTanhOp(x, output *tensor.Tensor[float32]) *TanhOp {
	return &TanhOp{base{inputs: []*tensor.Tensor[float32]{x}, output: output}}
}

// Backward computes the tanh gradient.
func (op *TanhOp) Backward(outputGrad *tensor.Tensor[float32], _ tensor.Backend) []*tensor.Tensor[float32] {
	return []*tensor.Tensor[float32]{zipWith(outputGrad, op.output, func(g, y float32) float32 {
		return g * (1 - y*y)
	})}
}

// ReLUOp represents output = max(0, x).
//
// Backward: grad_x = outputGrad where x > 0, else 0.
type ReLUOp struct{ base }

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(x, output *tensor.Tensor[float32]) *ReLUOp {
	return &ReLUOp{base{inputs: []*tensor.Tensor[float32]{x}, output: output}}
}

// Backward computes the ReLU gradient.
func (op *ReLUOp) Backward(outputGrad *tensor.Tensor[float32], _ tensor.Backend) []*tensor.Tensor[float32] {
	return []*tensor.Tensor[float32]{zipWith(outputGrad, op.inputs[0], func(g, x float32) float32 {
		if x > 0 {
			return g
		}
		return 0
	})}
}

func zipWith(a, b *tensor.Tensor[float32], f func(x, y float32) float32) *tensor.Tensor[float32] {
	out := tensor.Zeros[float32](a.Shape())
	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := range od {
		od[i] = f(ad[i], bd[i])
	}
	return out
}
