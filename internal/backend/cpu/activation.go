package cpu

import (
	"math"

	"github.com/born-ml/captioner/internal/tensor"
)

// Sigmoid computes 1 / (1 + exp(-x)) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return mapFloat32(x, func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(v))))
	})
}

// Tanh computes the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return mapFloat32(x, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return mapFloat32(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

func mapFloat32(x *tensor.Tensor[float32], f func(float32) float32) *tensor.Tensor[float32] {
	out := tensor.Zeros[float32](x.Shape())
	xd, od := x.Data(), out.Data()
	for i, v := range xd {
		od[i] = f(v)
	}
	return out
}
