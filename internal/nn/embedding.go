package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/captioner/internal/tensor"
)

// Embedding is a lookup table that maps token indices to dense vectors.
//
// Architecture:
//   - Weight: [NumEmbed, EmbedDim] learnable parameter
//   - Forward: indices [batch] -> embeddings [batch, EmbedDim]
//   - Backward: gradients scatter-add to weight rows
type Embedding struct {
	Weight   *Parameter
	NumEmbed int
	EmbedDim int
	backend  tensor.Backend
}

// NewEmbedding creates a new Embedding layer with weights drawn from N(0, 1).
func NewEmbedding(name string, numEmbeddings, embeddingDim int, backend tensor.Backend, rng *rand.Rand) *Embedding {
	weight := Normal(tensor.Shape{numEmbeddings, embeddingDim}, 1, rng)
	return &Embedding{
		Weight:   NewParameter(name+".weight", weight),
		NumEmbed: numEmbeddings,
		EmbedDim: embeddingDim,
		backend:  backend,
	}
}

// Forward looks up embeddings for a 1D index tensor.
func (e *Embedding) Forward(indices *tensor.Tensor[int32]) *tensor.Tensor[float32] {
	if len(indices.Shape()) != 1 {
		panic(fmt.Sprintf("Embedding.Forward: expected 1D indices, got %v", indices.Shape()))
	}
	return e.backend.Embedding(e.Weight.Tensor(), indices)
}

// Parameters returns [weight].
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}
