package nn

import (
	"fmt"

	"github.com/born-ml/captioner/internal/tensor"
)

// NoIgnore disables target masking in CrossEntropyLoss.
const NoIgnore int32 = -1

// CrossEntropyLoss computes mean softmax cross-entropy for classification.
//
//	Loss = mean_i( logsumexp(logits_i) - logits_i[target_i] )
//
// Rows whose target equals the ignore index do not contribute to the loss
// or to the gradient, and are excluded from the mean.
type CrossEntropyLoss struct {
	ignoreIndex int32
	backend     tensor.Backend
}

// NewCrossEntropyLoss creates a loss that ignores targets equal to
// ignoreIndex. Pass NoIgnore to count every row.
func NewCrossEntropyLoss(ignoreIndex int32, backend tensor.Backend) *CrossEntropyLoss {
	return &CrossEntropyLoss{ignoreIndex: ignoreIndex, backend: backend}
}

// Forward computes the loss of logits [N, C] against targets [N].
func (l *CrossEntropyLoss) Forward(logits *tensor.Tensor[float32], targets *tensor.Tensor[int32]) *tensor.Tensor[float32] {
	ls := logits.Shape()
	if len(ls) != 2 || targets.NumElements() != ls[0] {
		panic(fmt.Sprintf("CrossEntropyLoss.Forward: logits %v incompatible with %d targets", ls, targets.NumElements()))
	}
	return l.backend.CrossEntropy(logits, targets, l.ignoreIndex)
}

// IgnoreIndex returns the masked target index, or NoIgnore.
func (l *CrossEntropyLoss) IgnoreIndex() int32 {
	return l.ignoreIndex
}
