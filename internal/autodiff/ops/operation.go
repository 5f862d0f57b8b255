// Package ops defines the differentiable operations recorded by the autodiff
// backend.
//
// Each operation keeps references to its float32 inputs and output from the
// forward pass and computes input gradients in Backward:
//   - AddOp, MulOp, ScaleOp: element-wise arithmetic (Add supports row broadcast)
//   - MatMulOp, MatMulTOp, TransposeOp: linear algebra
//   - SigmoidOp, TanhOp, ReLUOp: activations
//   - SliceColsOp, StackOp: gate slicing and time-step interleaving
//   - EmbeddingOp: row gather with scatter-add backward
//   - CrossEntropyOp: softmax cross-entropy with an ignored target index
//
// Integer inputs (token indices, targets) are not differentiable and are
// not listed in Inputs.
package ops

import "github.com/born-ml/captioner/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The returned slice is aligned with Inputs; nil entries carry no gradient.
	Backward(outputGrad *tensor.Tensor[float32], backend tensor.Backend) []*tensor.Tensor[float32]

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.Tensor[float32]

	// Output returns the output tensor produced by this operation.
	Output() *tensor.Tensor[float32]
}

// base stores the inputs and output shared by every operation.
type base struct {
	inputs []*tensor.Tensor[float32]
	output *tensor.Tensor[float32]
}

// Inputs returns the input tensors.
func (b *base) Inputs() []*tensor.Tensor[float32] {
	return b.inputs
}

// Output returns the output tensor.
func (b *base) Output() *tensor.Tensor[float32] {
	return b.output
}
