package ops

import "github.com/born-ml/captioner/internal/tensor"

// SliceColsOp represents output = x[:, start:end].
//
// Backward scatters outputGrad into a zero tensor shaped like x.
type SliceColsOp struct {
	base
	start int
}

// NewSliceColsOp creates a new SliceColsOp.
func NewSliceColsOp(x, output *tensor.Tensor[float32], start int) *SliceColsOp {
	return &SliceColsOp{base: base{inputs: []*tensor.Tensor[float32]{x}, output: output}, start: start}
}

// Backward computes the slice gradient.
func (op *SliceColsOp) Backward(outputGrad *tensor.Tensor[float32], _ tensor.Backend) []*tensor.Tensor[float32] {
	x := op.inputs[0]
	rows, cols := x.Shape()[0], x.Shape()[1]
	width := outputGrad.Shape()[1]

	grad := tensor.Zeros[float32](x.Shape())
	gd, od := grad.Data(), outputGrad.Data()
	for r := 0; r < rows; r++ {
		copy(gd[r*cols+op.start:r*cols+op.start+width], od[r*width:(r+1)*width])
	}
	return []*tensor.Tensor[float32]{grad}
}

// StackOp represents the interleaving of T step tensors [N, D] into
// [N*T, D] with step t of row n at n*T+t.
//
// Backward gathers each step's rows back out of outputGrad.
type StackOp struct{ base }

// NewStackOp creates a new StackOp.
func NewStackOp(steps []*tensor.Tensor[float32], output *tensor.Tensor[float32]) *StackOp {
	inputs := make([]*tensor.Tensor[float32], len(steps))
	copy(inputs, steps)
	return &StackOp{base{inputs: inputs, output: output}}
}

// Backward computes per-step gradients.
func (op *StackOp) Backward(outputGrad *tensor.Tensor[float32], _ tensor.Backend) []*tensor.Tensor[float32] {
	T := len(op.inputs)
	N, D := op.inputs[0].Shape()[0], op.inputs[0].Shape()[1]
	od := outputGrad.Data()

	grads := make([]*tensor.Tensor[float32], T)
	for t := range grads {
		g := tensor.Zeros[float32](tensor.Shape{N, D})
		gd := g.Data()
		for n := 0; n < N; n++ {
			src := (n*T + t) * D
			copy(gd[n*D:(n+1)*D], od[src:src+D])
		}
		grads[t] = g
	}
	return grads
}
