package serialization

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/x448/float16"

	"github.com/born-ml/captioner/internal/tensor"
)

// Read decodes a .born stream into float32 tensors keyed by name.
//
// The data section is verified against the stored SHA-256 before any
// tensor is decoded.
func Read(r io.Reader) (map[string]*tensor.Tensor[float32], Header, error) {
	header, data, err := readSections(r)
	if err != nil {
		return nil, Header{}, err
	}

	tensors := make(map[string]*tensor.Tensor[float32], len(header.Tensors))
	for _, meta := range header.Tensors {
		raw := data[meta.Offset : meta.Offset+meta.Size]
		values, err := decodeTensor(raw, meta.DType)
		if err != nil {
			return nil, Header{}, fmt.Errorf("tensor %s: %w", meta.Name, err)
		}
		tensors[meta.Name] = tensor.Wrap(values, tensor.Shape(meta.Shape))
	}
	return tensors, header, nil
}

// ReadFile reads a .born file.
func ReadFile(path string) (map[string]*tensor.Tensor[float32], Header, error) {
	//nolint:gosec // G304: path is user supplied by design
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	tensors, header, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return tensors, header, nil
}

// ReadHeaderFile reads only the fixed and JSON headers of a .born file.
func ReadHeaderFile(path string) (Header, error) {
	//nolint:gosec // G304: path is user supplied by design
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header, _, _, err := readHeader(bufio.NewReader(f))
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return header, nil
}

func readHeader(r io.Reader) (Header, uint64, [32]byte, error) {
	var checksum [32]byte
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return Header{}, 0, checksum, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return Header{}, 0, checksum, fmt.Errorf("%w: got %q, expected %q", ErrInvalidMagic, fixed[0:4], MagicBytes)
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return Header{}, 0, checksum, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	copy(checksum[:], fixed[ChecksumOffset:ChecksumOffset+32])
	if headerSize > MaxHeaderSize {
		return Header{}, 0, checksum, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return Header{}, 0, checksum, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Header{}, 0, checksum, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	if dataSize > math.MaxInt64 {
		return Header{}, 0, checksum, fmt.Errorf("%w: data size %d", ErrInvalidHeader, dataSize)
	}
	if err := ValidateHeader(&header, int64(dataSize)); err != nil {
		return Header{}, 0, checksum, err
	}

	//nolint:gosec // G115: bounded by MaxHeaderSize
	end := int64(FixedHeaderSize) + int64(headerSize)
	if pad := alignUp(end) - end; pad > 0 {
		if _, err := io.CopyN(io.Discard, r, pad); err != nil {
			return Header{}, 0, checksum, fmt.Errorf("failed to read padding: %w", err)
		}
	}
	return header, dataSize, checksum, nil
}

func readSections(r io.Reader) (Header, []byte, error) {
	header, dataSize, checksum, err := readHeader(r)
	if err != nil {
		return Header{}, nil, err
	}

	var data bytes.Buffer
	n, err := io.CopyN(&data, r, int64(dataSize))
	if err != nil {
		return Header{}, nil, fmt.Errorf("failed to read tensor data (%d of %d bytes): %w", n, dataSize, err)
	}
	if sha256.Sum256(data.Bytes()) != checksum {
		return Header{}, nil, ErrChecksumMismatch
	}
	return header, data.Bytes(), nil
}

func decodeTensor(raw []byte, dtype string) ([]float32, error) {
	switch dtype {
	case DTypeFloat32:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case DTypeFloat16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}
