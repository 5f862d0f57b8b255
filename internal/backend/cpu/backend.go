// Package cpu implements the CPU backend for the captioning engine.
package cpu

import (
	"fmt"

	"github.com/born-ml/captioner/internal/parallel"
	"github.com/born-ml/captioner/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// Row-oriented kernels (matmul, convolution, pooling) are split across
// goroutines with the parallel package.
type CPUBackend struct {
	par parallel.Config
}

// New creates a new CPU backend using all available cores.
func New() *CPUBackend {
	return &CPUBackend{par: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Add performs element-wise addition, broadcasting a row vector b over the
// rows of a when shapes differ.
func (cpu *CPUBackend) Add(a, b *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := tensor.Zeros[float32](a.Shape())
	ad, bd, od := a.Data(), b.Data(), out.Data()

	if a.Shape().Equal(b.Shape()) {
		for i := range od {
			od[i] = ad[i] + bd[i]
		}
		return out
	}

	cols := rowVectorLen(a.Shape(), b.Shape())
	if cols < 0 {
		panic(fmt.Sprintf("add: cannot broadcast %v to %v", b.Shape(), a.Shape()))
	}
	for i := range od {
		od[i] = ad[i] + bd[i%cols]
	}
	return out
}

// rowVectorLen returns the row length when b is [N] or [1, N] and a is
// [M, N], or -1 when b cannot be broadcast over a.
func rowVectorLen(a, b tensor.Shape) int {
	if len(a) != 2 {
		return -1
	}
	n := a[1]
	switch {
	case len(b) == 1 && b[0] == n:
		return n
	case len(b) == 2 && b[0] == 1 && b[1] == n:
		return n
	default:
		return -1
	}
}

// Mul performs element-wise multiplication of same-shaped tensors.
func (cpu *CPUBackend) Mul(a, b *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("mul: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	out := tensor.Zeros[float32](a.Shape())
	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := range od {
		od[i] = ad[i] * bd[i]
	}
	return out
}

// Scale multiplies every element by s.
func (cpu *CPUBackend) Scale(a *tensor.Tensor[float32], s float32) *tensor.Tensor[float32] {
	out := tensor.Zeros[float32](a.Shape())
	ad, od := a.Data(), out.Data()
	for i := range od {
		od[i] = ad[i] * s
	}
	return out
}
