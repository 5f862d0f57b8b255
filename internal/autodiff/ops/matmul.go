package ops

import "github.com/born-ml/captioner/internal/tensor"

// MatMulOp represents output = a @ b.
//
// Backward:
//   - grad_a = outputGrad @ b^T
//   - grad_b = a^T @ outputGrad
type MatMulOp struct{ base }

// NewMatMulOp creates a new MatMulOp.
func NewMatMulOp(a, b, output *tensor.Tensor[float32]) *MatMulOp {
	return &MatMulOp{base{inputs: []*tensor.Tensor[float32]{a, b}, output: output}}
}

// Backward computes input gradients for matrix multiplication.
func (op *MatMulOp) Backward(outputGrad *tensor.Tensor[float32], backend tensor.Backend) []*tensor.Tensor[float32] {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.Tensor[float32]{
		backend.MatMulT(outputGrad, b),
		backend.MatMul(backend.Transpose(a), outputGrad),
	}
}

// MatMulTOp represents output = a @ b^T, the layout used by weight matrices
// stored as [out_features, in_features].
//
// Backward:
//   - grad_a = outputGrad @ b
//   - grad_b = outputGrad^T @ a
type MatMulTOp struct{ base }

// NewMatMulTOp creates a new MatMulTOp.
func NewMatMulTOp(a, b, output *tensor.Tensor[float32]) *MatMulTOp {
	return &MatMulTOp{base{inputs: []*tensor.Tensor[float32]{a, b}, output: output}}
}

// Backward computes input gradients for a @ b^T.
func (op *MatMulTOp) Backward(outputGrad *tensor.Tensor[float32], backend tensor.Backend) []*tensor.Tensor[float32] {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.Tensor[float32]{
		backend.MatMul(outputGrad, b),
		backend.MatMul(backend.Transpose(outputGrad), a),
	}
}

// TransposeOp represents output = x^T for a 2D x.
type TransposeOp struct{ base }

// NewTransposeOp creates a new TransposeOp.
func NewTransposeOp(x, output *tensor.Tensor[float32]) *TransposeOp {
	return &TransposeOp{base{inputs: []*tensor.Tensor[float32]{x}, output: output}}
}

// Backward transposes the gradient back.
func (op *TransposeOp) Backward(outputGrad *tensor.Tensor[float32], backend tensor.Backend) []*tensor.Tensor[float32] {
	return []*tensor.Tensor[float32]{backend.Transpose(outputGrad)}
}
