package cpu

import (
	"fmt"

	"github.com/born-ml/captioner/internal/parallel"
	"github.com/born-ml/captioner/internal/tensor"
)

// MatMul performs matrix multiplication: [M, K] @ [K, N] = [M, N].
//
// Rows of the result are computed in parallel. The inner loop runs over k
// then j so both b and the output row are walked sequentially.
func (cpu *CPUBackend) MatMul(a, b *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", as, bs))
	}
	if as[1] != bs[0] {
		panic(fmt.Sprintf("matmul: inner dimensions mismatch %v @ %v", as, bs))
	}
	M, K, N := as[0], as[1], bs[1]

	out := tensor.Zeros[float32](tensor.Shape{M, N})
	ad, bd, od := a.Data(), b.Data(), out.Data()

	parallel.For(M, func(i int) {
		row := od[i*N : (i+1)*N]
		for k := 0; k < K; k++ {
			aik := ad[i*K+k]
			if aik == 0 {
				continue
			}
			bRow := bd[k*N : (k+1)*N]
			for j, v := range bRow {
				row[j] += aik * v
			}
		}
	}, cpu.par)

	return out
}

// MatMulT performs a @ b^T: [M, K] @ [N, K]^T = [M, N].
//
// This is the layout used by Linear and LSTM weights ([out, in]), so no
// transposed copy of the weight is materialized.
func (cpu *CPUBackend) MatMulT(a, b *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		panic(fmt.Sprintf("matmulT: expected 2D tensors, got %v and %v", as, bs))
	}
	if as[1] != bs[1] {
		panic(fmt.Sprintf("matmulT: inner dimensions mismatch %v @ %v^T", as, bs))
	}
	M, K, N := as[0], as[1], bs[0]

	out := tensor.Zeros[float32](tensor.Shape{M, N})
	ad, bd, od := a.Data(), b.Data(), out.Data()

	parallel.For(M, func(i int) {
		aRow := ad[i*K : (i+1)*K]
		for j := 0; j < N; j++ {
			bRow := bd[j*K : (j+1)*K]
			var sum float32
			for k, v := range aRow {
				sum += v * bRow[k]
			}
			od[i*N+j] = sum
		}
	}, cpu.par)

	return out
}

// Transpose returns the transpose of a 2D tensor.
func (cpu *CPUBackend) Transpose(a *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	s := a.Shape()
	if len(s) != 2 {
		panic(fmt.Sprintf("transpose: expected 2D tensor, got %v", s))
	}
	rows, cols := s[0], s[1]
	out := tensor.Zeros[float32](tensor.Shape{cols, rows})
	ad, od := a.Data(), out.Data()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			od[j*rows+i] = ad[i*cols+j]
		}
	}
	return out
}
