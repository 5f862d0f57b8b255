package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/captioner/internal/tensor"
)

// CrossEntropy computes mean softmax cross-entropy over rows whose target is
// not ignoreIndex.
//
// Uses the log-sum-exp trick for numerical stability:
//
//	loss_i = log(sum_j exp(x_ij - max_i)) + max_i - x_i,target
//
// When every row is ignored the loss is zero.
func (cpu *CPUBackend) CrossEntropy(logits *tensor.Tensor[float32], targets *tensor.Tensor[int32], ignoreIndex int32) *tensor.Tensor[float32] {
	ls := logits.Shape()
	if len(ls) != 2 {
		panic(fmt.Sprintf("crossentropy: expected 2D logits, got %v", ls))
	}
	N, C := ls[0], ls[1]
	if targets.NumElements() != N {
		panic(fmt.Sprintf("crossentropy: %d targets for %d rows", targets.NumElements(), N))
	}

	ld, td := logits.Data(), targets.Data()
	var total float64
	count := 0
	for i := 0; i < N; i++ {
		target := td[i]
		if ignoreIndex >= 0 && target == ignoreIndex {
			continue
		}
		if target < 0 || int(target) >= C {
			panic(fmt.Sprintf("crossentropy: target %d out of range [0, %d)", target, C))
		}
		row := ld[i*C : (i+1)*C]
		total += logSumExp(row) - float64(row[target])
		count++
	}

	out := tensor.Zeros[float32](tensor.Shape{1})
	if count > 0 {
		out.Data()[0] = float32(total / float64(count))
	}
	return out
}

// logSumExp returns log(sum(exp(row))) computed stably.
func logSumExp(row []float32) float64 {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxVal))
	}
	return math.Log(sum) + float64(maxVal)
}
