package cpu

import (
	"fmt"

	"github.com/born-ml/captioner/internal/parallel"
	"github.com/born-ml/captioner/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
//	out_h = (H + 2*padding - KH) / stride + 1
//
// Each image is unfolded into a [C_in*KH*KW, H_out*W_out] column matrix and
// multiplied by the kernel viewed as [C_out, C_in*KH*KW]. Images in the batch
// are processed in parallel.
func (cpu *CPUBackend) Conv2D(input, kernel, bias *tensor.Tensor[float32], stride, padding int) *tensor.Tensor[float32] {
	is, ks := input.Shape(), kernel.Shape()
	if len(is) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %v", is))
	}
	if len(ks) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %v", ks))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d or padding %d", stride, padding))
	}

	N, CIn, H, W := is[0], is[1], is[2], is[3]
	COut, KH, KW := ks[0], ks[2], ks[3]
	if ks[1] != CIn {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, ks[1]))
	}
	if bias != nil && bias.NumElements() != COut {
		panic(fmt.Sprintf("conv2d: bias has %d elements, want %d", bias.NumElements(), COut))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions %dx%d (check stride/padding)", HOut, WOut))
	}

	out := tensor.Zeros[float32](tensor.Shape{N, COut, HOut, WOut})
	inData, kData, outData := input.Data(), kernel.Data(), out.Data()
	var biasData []float32
	if bias != nil {
		biasData = bias.Data()
	}

	colRows := CIn * KH * KW
	colCols := HOut * WOut
	imgSize := CIn * H * W
	outSize := COut * colCols

	parallel.For(N, func(n int) {
		col := make([]float32, colRows*colCols)
		im2col(col, inData[n*imgSize:(n+1)*imgSize], CIn, H, W, KH, KW, HOut, WOut, stride, padding)

		dst := outData[n*outSize : (n+1)*outSize]
		for f := 0; f < COut; f++ {
			row := dst[f*colCols : (f+1)*colCols]
			if biasData != nil {
				for j := range row {
					row[j] = biasData[f]
				}
			}
			kRow := kData[f*colRows : (f+1)*colRows]
			for k, kv := range kRow {
				if kv == 0 {
					continue
				}
				cRow := col[k*colCols : (k+1)*colCols]
				for j, cv := range cRow {
					row[j] += kv * cv
				}
			}
		}
	}, cpu.par)

	return out
}

// im2col unfolds one image [C, H, W] into col [C*KH*KW, HOut*WOut].
// Out-of-bounds (padded) positions stay zero.
func im2col(col, img []float32, C, H, W, KH, KW, HOut, WOut, stride, padding int) {
	colCols := HOut * WOut
	for c := 0; c < C; c++ {
		for kh := 0; kh < KH; kh++ {
			for kw := 0; kw < KW; kw++ {
				rowOff := ((c*KH+kh)*KW + kw) * colCols
				for oh := 0; oh < HOut; oh++ {
					ih := oh*stride - padding + kh
					if ih < 0 || ih >= H {
						continue
					}
					for ow := 0; ow < WOut; ow++ {
						iw := ow*stride - padding + kw
						if iw < 0 || iw >= W {
							continue
						}
						col[rowOff+oh*WOut+ow] = img[(c*H+ih)*W+iw]
					}
				}
			}
		}
	}
}
