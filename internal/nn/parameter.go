package nn

import (
	"fmt"

	"github.com/born-ml/captioner/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are named with their full dotted path (e.g.
// "decoder.lstm.weight_ih_l0") so that state dicts and checkpoints can be
// built by walking Parameters().
type Parameter struct {
	name   string
	tensor *tensor.Tensor[float32]
	grad   *tensor.Tensor[float32]
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.Tensor[float32]) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor[float32] {
	return p.tensor
}

// Grad returns the gradient tensor, or nil before a backward pass.
func (p *Parameter) Grad() *tensor.Tensor[float32] {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.Tensor[float32]) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// Load copies values into the parameter in place.
//
// The tensor identity is preserved so optimizers and taps keyed by the
// tensor keep working after a checkpoint restore.
func (p *Parameter) Load(src *tensor.Tensor[float32]) error {
	if !src.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("parameter %s: shape mismatch: have %v, got %v", p.name, p.tensor.Shape(), src.Shape())
	}
	copy(p.tensor.Data(), src.Data())
	return nil
}

// CollectGrads copies gradients from a backward-pass map onto parameters.
// Parameters absent from grads have their gradient cleared.
func CollectGrads(params []*Parameter, grads map[*tensor.Tensor[float32]]*tensor.Tensor[float32]) {
	for _, p := range params {
		p.grad = grads[p.tensor]
	}
}
