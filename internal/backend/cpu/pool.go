package cpu

import (
	"fmt"

	"github.com/born-ml/captioner/internal/parallel"
	"github.com/born-ml/captioner/internal/tensor"
)

// MaxPool2D performs 2D max pooling.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
//	out_height = (height - kernelSize) / stride + 1
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(input *tensor.Tensor[float32], kernelSize, stride int) *tensor.Tensor[float32] {
	s := input.Shape()
	if len(s) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %v", s))
	}
	N, C, H, W := s[0], s[1], s[2], s[3]
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d or stride %d", kernelSize, stride))
	}
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}

	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1
	out := tensor.Zeros[float32](tensor.Shape{N, C, HOut, WOut})
	inData, outData := input.Data(), out.Data()

	parallel.For(N*C, func(plane int) {
		src := inData[plane*H*W : (plane+1)*H*W]
		dst := outData[plane*HOut*WOut : (plane+1)*HOut*WOut]
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				h0, w0 := oh*stride, ow*stride
				best := src[h0*W+w0]
				for kh := 0; kh < kernelSize; kh++ {
					for kw := 0; kw < kernelSize; kw++ {
						if v := src[(h0+kh)*W+w0+kw]; v > best {
							best = v
						}
					}
				}
				dst[oh*WOut+ow] = best
			}
		}
	}, cpu.par)

	return out
}

// GlobalAvgPool2D averages each channel plane: [N, C, H, W] -> [N, C].
func (cpu *CPUBackend) GlobalAvgPool2D(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	s := input.Shape()
	if len(s) != 4 {
		panic(fmt.Sprintf("globalavgpool2d: expected 4D input [N,C,H,W], got %v", s))
	}
	N, C, plane := s[0], s[1], s[2]*s[3]
	out := tensor.Zeros[float32](tensor.Shape{N, C})
	inData, outData := input.Data(), out.Data()
	for i := 0; i < N*C; i++ {
		var sum float32
		for _, v := range inData[i*plane : (i+1)*plane] {
			sum += v
		}
		outData[i] = sum / float32(plane)
	}
	return out
}
