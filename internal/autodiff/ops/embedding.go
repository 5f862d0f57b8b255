package ops

import "github.com/born-ml/captioner/internal/tensor"

// EmbeddingOp represents output = weight[indices].
//
// Backward scatter-adds outputGrad rows into a zero gradient shaped like
// the weight; repeated indices accumulate.
type EmbeddingOp struct {
	base
	indices *tensor.Tensor[int32]
}

// NewEmbeddingOp creates a new EmbeddingOp.
func NewEmbeddingOp(weight *tensor.Tensor[float32], indices *tensor.Tensor[int32], output *tensor.Tensor[float32]) *EmbeddingOp {
	return &EmbeddingOp{
		base:    base{inputs: []*tensor.Tensor[float32]{weight}, output: output},
		indices: indices,
	}
}

// Backward computes the weight gradient.
func (op *EmbeddingOp) Backward(outputGrad *tensor.Tensor[float32], _ tensor.Backend) []*tensor.Tensor[float32] {
	weight := op.inputs[0]
	D := weight.Shape()[1]

	grad := tensor.Zeros[float32](weight.Shape())
	gd, od := grad.Data(), outputGrad.Data()
	for i, id := range op.indices.Data() {
		row := gd[int(id)*D : (int(id)+1)*D]
		for j, v := range od[i*D : (i+1)*D] {
			row[j] += v
		}
	}
	return []*tensor.Tensor[float32]{grad}
}
