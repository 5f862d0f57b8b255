package optim

import (
	"math"

	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/tensor"
)

// ClipGradNorm rescales the gradients of params in place so that their
// global L2 norm does not exceed maxNorm. It returns the norm measured
// before clipping. A non-positive maxNorm only measures.
func ClipGradNorm(params []*nn.Parameter, grads map[*tensor.Tensor[float32]]*tensor.Tensor[float32], maxNorm float32) float32 {
	var sq float64
	for _, p := range params {
		g := getGradient(p, grads)
		if g == nil {
			continue
		}
		for _, v := range g.Data() {
			sq += float64(v) * float64(v)
		}
	}
	norm := float32(math.Sqrt(sq))
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}

	scale := maxNorm / (norm + 1e-6)
	for _, p := range params {
		g := getGradient(p, grads)
		if g == nil {
			continue
		}
		d := g.Data()
		for i := range d {
			d[i] *= scale
		}
	}
	return norm
}
