package encoder

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/born-ml/captioner/internal/serialization"
	"github.com/born-ml/captioner/internal/tensor"
)

// BackboneModelType identifies backbone weight files.
const BackboneModelType = "captioner-backbone"

const paramPrefix = "encoder."

// LoadBackbone copies pretrained backbone weights into the encoder.
//
// Weights may be keyed by full parameter name ("encoder.backbone.conv0.weight")
// or relative to the encoder ("backbone.conv0.weight"). Every backbone
// parameter must be present with a matching shape; extra entries are ignored.
func (e *Encoder) LoadBackbone(weights map[string]*tensor.Tensor[float32]) error {
	for _, p := range e.FrozenParameters() {
		src, ok := weights[p.Name()]
		if !ok {
			src, ok = weights[strings.TrimPrefix(p.Name(), paramPrefix)]
		}
		if !ok {
			return fmt.Errorf("encoder: backbone weight %s missing", p.Name())
		}
		if err := p.Load(src); err != nil {
			return fmt.Errorf("encoder: %w", err)
		}
	}
	return nil
}

// LoadBackboneFile loads backbone weights from a .born or .safetensors
// file, chosen by extension.
func (e *Encoder) LoadBackboneFile(path string) error {
	var (
		weights map[string]*tensor.Tensor[float32]
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".safetensors") {
		weights, _, err = serialization.ReadSafeTensorsFile(path)
	} else {
		weights, _, err = serialization.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("encoder: %w", err)
	}
	return e.LoadBackbone(weights)
}

// SaveBackboneFile writes the backbone weights, keyed relative to the
// encoder, so they can seed another model.
func (e *Encoder) SaveBackboneFile(path string) error {
	weights := make(map[string]*tensor.Tensor[float32])
	for _, p := range e.FrozenParameters() {
		weights[strings.TrimPrefix(p.Name(), paramPrefix)] = p.Tensor()
	}
	return serialization.WriteFile(path, weights, serialization.Header{ModelType: BackboneModelType}, serialization.WriteOptions{})
}
