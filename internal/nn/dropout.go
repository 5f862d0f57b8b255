package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/captioner/internal/tensor"
)

// Dropout zeroes elements with probability p while training and scales the
// survivors by 1/(1-p). It is the identity in inference mode.
//
// Dropout starts in inference mode; call SetTraining(true) for training.
type Dropout struct {
	p        float32
	training bool
	rng      *rand.Rand
	backend  tensor.Backend
}

// NewDropout creates a Dropout layer. p must lie in [0, 1).
func NewDropout(p float32, backend tensor.Backend, rng *rand.Rand) *Dropout {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("NewDropout: probability must be in [0, 1), got %v", p))
	}
	return &Dropout{p: p, rng: rng, backend: backend}
}

// Forward applies dropout.
func (d *Dropout) Forward(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	if !d.training || d.p == 0 {
		return input
	}
	mask := tensor.Zeros[float32](input.Shape())
	keep := 1 / (1 - d.p)
	md := mask.Data()
	for i := range md {
		if d.rng.Float32() >= d.p {
			md[i] = keep
		}
	}
	return d.backend.Mul(input, mask)
}

// SetTraining switches between training and inference mode.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// Training reports whether dropout is active.
func (d *Dropout) Training() bool {
	return d.training
}

// Parameters returns nil; dropout has no trainable parameters.
func (d *Dropout) Parameters() []*Parameter {
	return nil
}
