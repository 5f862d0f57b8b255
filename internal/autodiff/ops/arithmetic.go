package ops

import "github.com/born-ml/captioner/internal/tensor"

// AddOp represents output = a + b, where b may be a row vector broadcast
// over the rows of a.
//
// Backward: grad_a = outputGrad; grad_b = outputGrad summed over rows when
// b was broadcast.
type AddOp struct{ base }

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.Tensor[float32]) *AddOp {
	return &AddOp{base{inputs: []*tensor.Tensor[float32]{a, b}, output: output}}
}

// Backward computes input gradients for addition.
func (op *AddOp) Backward(outputGrad *tensor.Tensor[float32], _ tensor.Backend) []*tensor.Tensor[float32] {
	b := op.inputs[1]
	gradB := outputGrad
	if !b.Shape().Equal(outputGrad.Shape()) {
		gradB = sumRows(outputGrad, b.Shape())
	}
	return []*tensor.Tensor[float32]{outputGrad, gradB}
}

// sumRows reduces a [M, N] gradient to a row vector with the given shape.
func sumRows(g *tensor.Tensor[float32], shape tensor.Shape) *tensor.Tensor[float32] {
	cols := g.Shape()[1]
	out := tensor.Zeros[float32](shape)
	od := out.Data()
	for i, v := range g.Data() {
		od[i%cols] += v
	}
	return out
}

// MulOp represents element-wise output = a * b.
//
// Backward: grad_a = outputGrad * b, grad_b = outputGrad * a.
type MulOp struct{ base }

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.Tensor[float32]) *MulOp {
	return &MulOp{base{inputs: []*tensor.Tensor[float32]{a, b}, output: output}}
}

// Backward computes input gradients for multiplication.
func (op *MulOp) Backward(outputGrad *tensor.Tensor[float32], backend tensor.Backend) []*tensor.Tensor[float32] {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.Tensor[float32]{
		backend.Mul(outputGrad, b),
		backend.Mul(outputGrad, a),
	}
}

// ScaleOp represents output = x * s for a constant s.
type ScaleOp struct {
	base
	scale float32
}

// NewScaleOp creates a new ScaleOp.
func NewScaleOp(x, output *tensor.Tensor[float32], scale float32) *ScaleOp {
	return &ScaleOp{base: base{inputs: []*tensor.Tensor[float32]{x}, output: output}, scale: scale}
}

// Backward computes grad_x = outputGrad * s.
func (op *ScaleOp) Backward(outputGrad *tensor.Tensor[float32], backend tensor.Backend) []*tensor.Tensor[float32] {
	return []*tensor.Tensor[float32]{backend.Scale(outputGrad, op.scale)}
}
