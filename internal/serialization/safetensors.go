package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/x448/float16"

	"github.com/born-ml/captioner/internal/tensor"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Only floating point tensors are imported; they are widened to float32.

// SafeTensorsDType names a SafeTensors element type.
type SafeTensorsDType string

// Supported SafeTensors dtypes.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsF32  SafeTensorsDType = "F32"
)

func (d SafeTensorsDType) size() (int, error) {
	switch d {
	case SafeTensorsF16, SafeTensorsBF16:
		return 2, nil
	case SafeTensorsF32:
		return 4, nil
	default:
		return 0, fmt.Errorf("unsupported safetensors dtype %s", d)
	}
}

// SafeTensorInfo describes a tensor in a SafeTensors header.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end)
}

// ReadSafeTensors reads every tensor of a SafeTensors stream. The
// "__metadata__" entry is returned separately.
func ReadSafeTensors(r io.Reader) (map[string]*tensor.Tensor[float32], map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("safetensors: reading header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: safetensors header is %d bytes", ErrHeaderTooLarge, headerSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("safetensors: reading header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: safetensors: %w", ErrInvalidHeader, err)
	}

	var metadata map[string]string
	infos := make(map[string]SafeTensorInfo, len(raw))
	var dataSize int64
	for name, value := range raw {
		if name == "__metadata__" {
			if err := json.Unmarshal(value, &metadata); err != nil {
				return nil, nil, fmt.Errorf("safetensors: metadata: %w", err)
			}
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, nil, fmt.Errorf("safetensors: tensor %s: %w", name, err)
		}
		if err := checkSafeTensor(name, info); err != nil {
			return nil, nil, err
		}
		infos[name] = info
		dataSize = max(dataSize, info.DataOffsets[1])
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, nil, fmt.Errorf("safetensors: reading data: %w", err)
	}

	out := make(map[string]*tensor.Tensor[float32], len(infos))
	for name, info := range infos {
		out[name] = tensor.Wrap(widen(data[info.DataOffsets[0]:info.DataOffsets[1]], info.DType), tensor.Shape(info.Shape))
	}
	return out, metadata, nil
}

// ReadSafeTensorsFile reads a .safetensors file.
func ReadSafeTensorsFile(path string) (map[string]*tensor.Tensor[float32], map[string]string, error) {
	//nolint:gosec // G304: weight path is user supplied by design
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	tensors, metadata, err := ReadSafeTensors(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return tensors, metadata, nil
}

func checkSafeTensor(name string, info SafeTensorInfo) error {
	elem, err := info.DType.size()
	if err != nil {
		return fmt.Errorf("safetensors: tensor %s: %w", name, err)
	}
	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("safetensors: tensor %s: %w", name, err)
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end-start != int64(shape.NumElements()*elem) {
		return &ValidationError{
			Type:    "size_mismatch",
			Tensor:  name,
			Details: fmt.Sprintf("offsets [%d, %d) do not hold %v %s", start, end, info.Shape, info.DType),
		}
	}
	return nil
}

func widen(raw []byte, dtype SafeTensorsDType) []float32 {
	switch dtype {
	case SafeTensorsF32:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out
	case SafeTensorsF16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out
	default: // BF16 is the upper half of a float32.
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
		return out
	}
}
