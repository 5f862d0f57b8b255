package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/captioner/internal/tensor"
)

// Xavier draws Glorot-uniform weights, U(-b, b) with b = sqrt(6/(fanIn+fanOut)).
// Conv2D and Linear weights use it.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor[float32] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.Uniform(shape, -bound, bound, rng)
}

// Recurrent draws LSTM weights and biases from U(-1/sqrt(hidden), 1/sqrt(hidden)).
func Recurrent(hiddenSize int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor[float32] {
	bound := 1.0 / math.Sqrt(float64(hiddenSize))
	return tensor.Uniform(shape, -bound, bound, rng)
}

// Normal draws embedding rows from N(0, std²).
func Normal(shape tensor.Shape, std float64, rng *rand.Rand) *tensor.Tensor[float32] {
	return tensor.Randn(shape, 0, std, rng)
}

// Zeros is the bias initializer.
func Zeros(shape tensor.Shape) *tensor.Tensor[float32] {
	return tensor.Zeros[float32](shape)
}
