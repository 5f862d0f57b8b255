package ops

import (
	"math"

	"github.com/born-ml/captioner/internal/tensor"
)

// CrossEntropyOp represents the mean softmax cross-entropy of logits
// against integer targets, skipping rows whose target is ignoreIndex.
//
// Backward, for each counted row i:
//
//	grad_i = outputGrad * (softmax(logits_i) - onehot(target_i)) / count
//
// Ignored rows receive zero gradient.
type CrossEntropyOp struct {
	base
	targets     *tensor.Tensor[int32]
	ignoreIndex int32
}

// NewCrossEntropyOp creates a new CrossEntropyOp.
func NewCrossEntropyOp(logits *tensor.Tensor[float32], targets *tensor.Tensor[int32], ignoreIndex int32, output *tensor.Tensor[float32]) *CrossEntropyOp {
	return &CrossEntropyOp{
		base:        base{inputs: []*tensor.Tensor[float32]{logits}, output: output},
		targets:     targets,
		ignoreIndex: ignoreIndex,
	}
}

// Backward computes the logits gradient.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.Tensor[float32], _ tensor.Backend) []*tensor.Tensor[float32] {
	logits := op.inputs[0]
	N, C := logits.Shape()[0], logits.Shape()[1]
	td := op.targets.Data()

	count := 0
	for _, target := range td {
		if !op.ignored(target) {
			count++
		}
	}

	grad := tensor.Zeros[float32](logits.Shape())
	if count == 0 {
		return []*tensor.Tensor[float32]{grad}
	}

	scale := outputGrad.Data()[0] / float32(count)
	ld, gd := logits.Data(), grad.Data()
	for i := 0; i < N; i++ {
		if op.ignored(td[i]) {
			continue
		}
		row := ld[i*C : (i+1)*C]
		dst := gd[i*C : (i+1)*C]
		softmax(dst, row)
		dst[td[i]] -= 1
		for j := range dst {
			dst[j] *= scale
		}
	}
	return []*tensor.Tensor[float32]{grad}
}

func (op *CrossEntropyOp) ignored(target int32) bool {
	return op.ignoreIndex >= 0 && target == op.ignoreIndex
}

// softmax writes softmax(row) into dst.
func softmax(dst, row []float32) {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range row {
		e := math.Exp(float64(v - maxVal))
		dst[i] = float32(e)
		sum += e
	}
	for i := range dst {
		dst[i] = float32(float64(dst[i]) / sum)
	}
}
