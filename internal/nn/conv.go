package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/captioner/internal/tensor"
)

// Conv2D implements a 2D convolutional layer.
//
// Input:  [batch, in_channels, height, width]
// Weight: [out_channels, in_channels, kernel, kernel]
// Output: [batch, out_channels, out_h, out_w]
type Conv2D struct {
	weight  *Parameter
	bias    *Parameter
	stride  int
	padding int
	backend tensor.Backend
}

// NewConv2D creates a Conv2D layer with Xavier-initialized square kernels
// and zero bias.
func NewConv2D(name string, inChannels, outChannels, kernelSize, stride, padding int, backend tensor.Backend, rng *rand.Rand) *Conv2D {
	area := kernelSize * kernelSize
	shape := tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}
	return &Conv2D{
		weight:  NewParameter(name+".weight", Xavier(inChannels*area, outChannels*area, shape, rng)),
		bias:    NewParameter(name+".bias", Zeros(tensor.Shape{outChannels})),
		stride:  stride,
		padding: padding,
		backend: backend,
	}
}

// Forward applies the convolution.
func (c *Conv2D) Forward(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	s := input.Shape()
	if len(s) != 4 || s[1] != c.InChannels() {
		panic(fmt.Sprintf("Conv2D.Forward: expected input [N, %d, H, W], got %v", c.InChannels(), s))
	}
	return c.backend.Conv2D(input, c.weight.Tensor(), c.bias.Tensor(), c.stride, c.padding)
}

// InChannels returns the expected number of input channels.
func (c *Conv2D) InChannels() int {
	return c.weight.Tensor().Shape()[1]
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int {
	return c.weight.Tensor().Shape()[0]
}

// Parameters returns [weight, bias].
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.weight, c.bias}
}

// MaxPool2D applies max pooling with a square window.
type MaxPool2D struct {
	kernelSize int
	stride     int
	backend    tensor.Backend
}

// NewMaxPool2D creates a MaxPool2D layer.
func NewMaxPool2D(kernelSize, stride int, backend tensor.Backend) *MaxPool2D {
	return &MaxPool2D{kernelSize: kernelSize, stride: stride, backend: backend}
}

// Forward applies pooling.
func (m *MaxPool2D) Forward(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return m.backend.MaxPool2D(input, m.kernelSize, m.stride)
}

// Parameters returns nil.
func (m *MaxPool2D) Parameters() []*Parameter {
	return nil
}

// GlobalAvgPool2D averages each feature map: [N, C, H, W] -> [N, C].
type GlobalAvgPool2D struct {
	backend tensor.Backend
}

// NewGlobalAvgPool2D creates a GlobalAvgPool2D layer.
func NewGlobalAvgPool2D(backend tensor.Backend) *GlobalAvgPool2D {
	return &GlobalAvgPool2D{backend: backend}
}

// Forward applies global average pooling.
func (g *GlobalAvgPool2D) Forward(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return g.backend.GlobalAvgPool2D(input)
}

// Parameters returns nil.
func (g *GlobalAvgPool2D) Parameters() []*Parameter {
	return nil
}

// ReLU applies max(0, x).
type ReLU struct {
	backend tensor.Backend
}

// NewReLU creates a ReLU activation layer.
func NewReLU(backend tensor.Backend) *ReLU {
	return &ReLU{backend: backend}
}

// Forward applies ReLU.
func (r *ReLU) Forward(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	return r.backend.ReLU(input)
}

// Parameters returns nil.
func (r *ReLU) Parameters() []*Parameter {
	return nil
}
