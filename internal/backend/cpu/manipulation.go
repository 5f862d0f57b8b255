package cpu

import (
	"fmt"

	"github.com/born-ml/captioner/internal/tensor"
)

// SliceCols returns columns [start, end) of a 2D tensor as a new tensor.
func (cpu *CPUBackend) SliceCols(x *tensor.Tensor[float32], start, end int) *tensor.Tensor[float32] {
	s := x.Shape()
	if len(s) != 2 {
		panic(fmt.Sprintf("slicecols: expected 2D tensor, got %v", s))
	}
	if start < 0 || end > s[1] || start >= end {
		panic(fmt.Sprintf("slicecols: invalid range [%d, %d) for %d columns", start, end, s[1]))
	}
	rows, cols, width := s[0], s[1], end-start
	out := tensor.Zeros[float32](tensor.Shape{rows, width})
	xd, od := x.Data(), out.Data()
	for r := 0; r < rows; r++ {
		copy(od[r*width:(r+1)*width], xd[r*cols+start:r*cols+end])
	}
	return out
}

// Stack interleaves T tensors of shape [N, D] into [N*T, D] so that step t
// of batch row n lands at row n*T+t. This matches the row-major flattening
// of a [N, T] caption matrix.
func (cpu *CPUBackend) Stack(steps []*tensor.Tensor[float32]) *tensor.Tensor[float32] {
	if len(steps) == 0 {
		panic("stack: no tensors")
	}
	first := steps[0].Shape()
	if len(first) != 2 {
		panic(fmt.Sprintf("stack: expected 2D tensors, got %v", first))
	}
	for i, s := range steps {
		if !s.Shape().Equal(first) {
			panic(fmt.Sprintf("stack: tensor %d has shape %v, want %v", i, s.Shape(), first))
		}
	}

	N, D, T := first[0], first[1], len(steps)
	out := tensor.Zeros[float32](tensor.Shape{N * T, D})
	od := out.Data()
	for t, step := range steps {
		sd := step.Data()
		for n := 0; n < N; n++ {
			dst := (n*T + t) * D
			copy(od[dst:dst+D], sd[n*D:(n+1)*D])
		}
	}
	return out
}

// Embedding gathers rows of weight [V, D] selected by indices [N].
func (cpu *CPUBackend) Embedding(weight *tensor.Tensor[float32], indices *tensor.Tensor[int32]) *tensor.Tensor[float32] {
	ws := weight.Shape()
	if len(ws) != 2 {
		panic(fmt.Sprintf("embedding: expected 2D weight, got %v", ws))
	}
	if len(indices.Shape()) != 1 {
		panic(fmt.Sprintf("embedding: expected 1D indices, got %v", indices.Shape()))
	}
	V, D := ws[0], ws[1]
	idx := indices.Data()

	out := tensor.Zeros[float32](tensor.Shape{len(idx), D})
	wd, od := weight.Data(), out.Data()
	for i, id := range idx {
		if id < 0 || int(id) >= V {
			panic(fmt.Sprintf("embedding: index %d out of range [0, %d)", id, V))
		}
		copy(od[i*D:(i+1)*D], wd[int(id)*D:(int(id)+1)*D])
	}
	return out
}
