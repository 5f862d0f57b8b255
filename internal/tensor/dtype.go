// Package tensor provides the core tensor types for the captioning engine.
package tensor

// DType constrains tensor elements. Weights, activations and pixels are
// float32; token indices and sequence lengths are int32.
type DType interface {
	~float32 | ~int32
}

// DataType names a DType at runtime.
type DataType uint8

const (
	Float32 DataType = iota
	Int32
)

func (dt DataType) String() string {
	if dt == Int32 {
		return "int32"
	}
	return "float32"
}

func dataTypeOf[T DType]() DataType {
	var zero T
	if _, ok := any(zero).(int32); ok {
		return Int32
	}
	return Float32
}
