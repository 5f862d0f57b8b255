package serialization

import (
	"encoding/json"
	"time"
)

// Format constants.
const (
	MagicBytes      = "BORN"
	FormatVersion   = uint32(2)
	HeaderAlignment = 64
	FixedHeaderSize = 64
	ChecksumOffset  = 0x20
)

// Flags stored in the fixed header.
const (
	FlagHasMetadata   uint32 = 1 << 0
	FlagCheckpoint    uint32 = 1 << 1
	FlagHalfPrecision uint32 = 1 << 2
)

// Tensor data types.
const (
	DTypeFloat32 = "float32"
	DTypeFloat16 = "float16"
)

func dtypeSize(dtype string) (int, bool) {
	switch dtype {
	case DTypeFloat32:
		return 4, true
	case DTypeFloat16:
		return 2, true
	default:
		return 0, false
	}
}

// Header is the JSON header of a .born file.
type Header struct {
	FormatVersion uint32            `json:"format_version"`
	ModelType     string            `json:"model_type,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Checkpoint    *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta describes the training run a checkpoint came from.
type CheckpointMeta struct {
	RunID            string          `json:"run_id"`
	Epoch            int             `json:"epoch"`
	Step             int64           `json:"step"`
	Loss             float64         `json:"loss"`
	Optimizer        string          `json:"optimizer,omitempty"`
	VocabFingerprint string          `json:"vocab_fingerprint,omitempty"`
	ModelConfig      json.RawMessage `json:"model_config,omitempty"`
}

// TensorMeta locates one tensor inside the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

// Tensor returns the metadata for name, or false.
func (h *Header) Tensor(name string) (TensorMeta, bool) {
	for _, meta := range h.Tensors {
		if meta.Name == name {
			return meta, true
		}
	}
	return TensorMeta{}, false
}

func alignUp(n int64) int64 {
	return (n + HeaderAlignment - 1) / HeaderAlignment * HeaderAlignment
}
