// Package nn implements the neural network layers of the captioning model.
//
// This package provides:
//   - Module and Layer interfaces
//   - Parameter: named trainable tensors with gradients
//   - Linear, Embedding, LSTM: decoder building blocks
//   - Conv2D, MaxPool2D, GlobalAvgPool2D, ReLU: image backbone blocks
//   - Dropout with an explicit training flag
//   - CrossEntropyLoss with an ignored target index
//
// Layers run their math on a tensor.Backend. Passing an autodiff backend
// records the forward pass for gradient computation.
package nn

import (
	"math/rand"

	"github.com/born-ml/captioner/internal/tensor"
)

// Module is the base interface for all neural network components.
type Module interface {
	// Parameters returns all trainable parameters of this module,
	// including nested modules. Order is stable.
	Parameters() []*Parameter
}

// Layer is a Module mapping one float tensor to another.
type Layer interface {
	Module

	// Forward computes the output of the layer given an input tensor.
	Forward(input *tensor.Tensor[float32]) *tensor.Tensor[float32]
}

// Trainable is implemented by modules whose behavior differs between
// training and inference (dropout).
type Trainable interface {
	SetTraining(training bool)
}

// NewRand returns a random source for weight initialization.
func NewRand(seed int64) *rand.Rand {
	//nolint:gosec // math/rand is appropriate for ML weight initialization
	return rand.New(rand.NewSource(seed))
}

// StateDict maps each parameter name to its tensor.
func StateDict(m Module) map[string]*tensor.Tensor[float32] {
	params := m.Parameters()
	out := make(map[string]*tensor.Tensor[float32], len(params))
	for _, p := range params {
		out[p.Name()] = p.Tensor()
	}
	return out
}
