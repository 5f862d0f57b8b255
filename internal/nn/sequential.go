package nn

import "github.com/born-ml/captioner/internal/tensor"

// Sequential chains layers so that each output feeds the next layer.
type Sequential struct {
	layers []Layer
}

// NewSequential creates a new Sequential container.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{layers: layers}
}

// Forward runs input through every layer in order.
func (s *Sequential) Forward(input *tensor.Tensor[float32]) *tensor.Tensor[float32] {
	out := input
	for _, l := range s.layers {
		out = l.Forward(out)
	}
	return out
}

// Parameters returns the parameters of all layers in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// SetTraining propagates the training flag to layers that support it.
func (s *Sequential) SetTraining(training bool) {
	for _, l := range s.layers {
		if t, ok := l.(Trainable); ok {
			t.SetTraining(training)
		}
	}
}

// Layers returns the contained layers.
func (s *Sequential) Layers() []Layer {
	return s.layers
}
