// Package optim implements optimization algorithms for training the
// captioning model.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//   - ClipGradNorm: global gradient norm clipping
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 3e-4})
//
//	backend.Tape().StartRecording()
//	loss := criterion.Forward(model.Forward(images, captions), targets)
//	grads, _ := autodiff.Backward(loss, backend)
//	optimizer.Step(grads)
//	backend.Tape().Clear()
package optim

import (
	"fmt"
	"strings"

	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters in place.
	// Parameters missing from grads are skipped.
	Step(grads map[*tensor.Tensor[float32]]*tensor.Tensor[float32])

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR changes the learning rate for subsequent steps.
	SetLR(lr float32)
}

// Config selects and configures an optimizer by name.
type Config struct {
	Name     string  // "adam" or "sgd"
	LR       float32 // Learning rate
	Momentum float32 // SGD momentum
}

// New builds the optimizer named in cfg.
func New(params []*nn.Parameter, cfg Config) (Optimizer, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "adam":
		return NewAdam(params, AdamConfig{LR: cfg.LR}), nil
	case "sgd":
		return NewSGD(params, SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}), nil
	default:
		return nil, fmt.Errorf("optim: unknown optimizer %q", cfg.Name)
	}
}

// getGradient retrieves the gradient for a parameter, or nil if the
// parameter was not part of the computation graph.
func getGradient(param *nn.Parameter, grads map[*tensor.Tensor[float32]]*tensor.Tensor[float32]) *tensor.Tensor[float32] {
	if param == nil {
		return nil
	}
	return grads[param.Tensor()]
}
