// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps a tensor.Backend and records every differentiable
// operation on a GradientTape while recording is enabled:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := backend.CrossEntropy(logits, targets, -1)
//	grads := autodiff.Backward(loss, backend)
//	backend.Tape().Clear()
//
// Convolution and pooling pass straight through to the wrapped backend and
// are never recorded: they only serve the frozen image backbone.
package autodiff

import (
	"fmt"

	"github.com/born-ml/captioner/internal/autodiff/ops"
	"github.com/born-ml/captioner/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Add performs addition and records the operation.
func (b *AutodiffBackend[B]) Add(x, y *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.Add(x, y)
	b.tape.Record(ops.NewAddOp(x, y, out))
	return out
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(x, y *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.Mul(x, y)
	b.tape.Record(ops.NewMulOp(x, y, out))
	return out
}

// Scale multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) Scale(x *tensor.Tensor[float32], s float32) *tensor.Tensor[float32] {
	out := b.inner.Scale(x, s)
	b.tape.Record(ops.NewScaleOp(x, out, s))
	return out
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(x, y *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.MatMul(x, y)
	b.tape.Record(ops.NewMatMulOp(x, y, out))
	return out
}

// MatMulT performs x @ y^T and records the operation.
func (b *AutodiffBackend[B]) MatMulT(x, y *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.MatMulT(x, y)
	b.tape.Record(ops.NewMatMulTOp(x, y, out))
	return out
}

// Transpose transposes a 2D tensor and records the operation.
func (b *AutodiffBackend[B]) Transpose(x *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.Transpose(x)
	b.tape.Record(ops.NewTransposeOp(x, out))
	return out
}

// Sigmoid applies the logistic function and records the operation.
func (b *AutodiffBackend[B]) Sigmoid(x *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.Sigmoid(x)
	b.tape.Record(ops.NewSigmoidOp(x, out))
	return out
}

// Tanh applies tanh and records the operation.
func (b *AutodiffBackend[B]) Tanh(x *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.Tanh(x)
	b.tape.Record(ops.NewTanhOp(x, out))
	return out
}

// ReLU applies ReLU and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, out))
	return out
}

// SliceCols slices columns and records the operation.
func (b *AutodiffBackend[B]) SliceCols(x *tensor.Tensor[float32], start, end int) *tensor.Tensor[float32] {
	out := b.inner.SliceCols(x, start, end)
	b.tape.Record(ops.NewSliceColsOp(x, out, start))
	return out
}

// Stack interleaves step tensors and records the operation.
func (b *AutodiffBackend[B]) Stack(steps []*tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := b.inner.Stack(steps)
	b.tape.Record(ops.NewStackOp(steps, out))
	return out
}

// Embedding gathers rows and records the operation.
func (b *AutodiffBackend[B]) Embedding(weight *tensor.Tensor[float32], indices *tensor.Tensor[int32]) *tensor.Tensor[float32] {
	out := b.inner.Embedding(weight, indices)
	b.tape.Record(ops.NewEmbeddingOp(weight, indices, out))
	return out
}

// CrossEntropy computes the loss and records the operation.
func (b *AutodiffBackend[B]) CrossEntropy(logits *tensor.Tensor[float32], targets *tensor.Tensor[int32], ignoreIndex int32) *tensor.Tensor[float32] {
	out := b.inner.CrossEntropy(logits, targets, ignoreIndex)
	b.tape.Record(ops.NewCrossEntropyOp(logits, targets, ignoreIndex, out))
	return out
}

// Conv2D runs on the wrapped backend without recording.
func (b *AutodiffBackend[B]) Conv2D(input, kernel, bias *tensor.Tensor[float32], stride, padding int) *tensor.Tensor[float32] {
	return b.inner.Conv2D(input, kernel, bias, stride, padding)
}

// MaxPool2D runs on the wrapped backend without recording.
func (b *AutodiffBackend[B]) MaxPool2D(input *tensor.Tensor[float32], kernelSize, stride int) *tensor.Tensor[float32] {
	return b.inner.MaxPool2D(input, kernelSize, stride)
}

// GlobalAvgPool2D runs on the wrapped backend without recording.
func (b *AutodiffBackend[B]) GlobalAvgPool2D(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return b.inner.GlobalAvgPool2D(input)
}

// Backward computes gradients of a scalar loss with respect to every tensor
// recorded on the backend's tape.
//
// The loss must be the output of the last recorded operation.
func Backward[B tensor.Backend](loss *tensor.Tensor[float32], backend *AutodiffBackend[B]) (map[*tensor.Tensor[float32]]*tensor.Tensor[float32], error) {
	if loss.NumElements() != 1 {
		return nil, fmt.Errorf("autodiff: backward requires a scalar loss, got shape %v", loss.Shape())
	}
	recorded := backend.tape.operations
	if len(recorded) == 0 || recorded[len(recorded)-1].Output() != loss {
		return nil, fmt.Errorf("autodiff: loss is not the last recorded operation")
	}
	seed := tensor.Ones(loss.Shape())
	return backend.tape.Backward(seed, backend.inner), nil
}
