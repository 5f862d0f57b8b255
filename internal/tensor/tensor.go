package tensor

import "fmt"

// Tensor is a dense, row-major, CPU-resident tensor with element type T.
//
// Tensors are plain data: they carry no gradient or graph state. Gradient
// tracking is the job of the autodiff backend, which keys gradients by
// tensor identity.
//
// Example:
//
//	t := tensor.Zeros[float32](tensor.Shape{3, 4})
//	t.Set(1.5, 1, 2)
type Tensor[T DType] struct {
	data    []T
	shape   Shape
	strides []int
}

// Zeros creates a tensor filled with zeros.
// Panics if the shape is invalid.
func Zeros[T DType](shape Shape) *Tensor[T] {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.Zeros: %v", err))
	}
	return &Tensor[T]{
		data:    make([]T, shape.NumElements()),
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
	}
}

// Full creates a tensor filled with a specific value.
func Full[T DType](shape Shape, value T) *Tensor[T] {
	t := Zeros[T](shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[T DType](data []T, shape Shape) (*Tensor[T], error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t := Zeros[T](shape)
	copy(t.data, data)
	return t, nil
}

// Wrap creates a tensor that takes ownership of data without copying.
// Panics if the shape and data length disagree.
func Wrap[T DType](data []T, shape Shape) *Tensor[T] {
	if shape.NumElements() != len(data) {
		panic(fmt.Sprintf("tensor.Wrap: shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data)))
	}
	return &Tensor[T]{
		data:    data,
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
	}
}

// Shape returns the tensor's shape.
func (t *Tensor[T]) Shape() Shape {
	return t.shape
}

// DType returns the tensor's data type.
func (t *Tensor[T]) DType() DataType {
	return dataTypeOf[T]()
}

// NumElements returns the total number of elements.
func (t *Tensor[T]) NumElements() int {
	return len(t.data)
}

// Data returns the underlying storage (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor[T]) Data() []T {
	return t.data
}

// Dim returns the size of dimension i.
func (t *Tensor[T]) Dim(i int) int {
	return t.shape[i]
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor[T]) At(indices ...int) T {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor[T]) Set(value T, indices ...int) {
	t.data[t.offset(indices)] = value
}

func (t *Tensor[T]) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		offset += idx * t.strides[i]
	}
	return offset
}

// Row returns a view of row i of a 2D tensor.
func (t *Tensor[T]) Row(i int) []T {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("Row() only works for 2D tensors, got shape %v", t.shape))
	}
	if i < 0 || i >= t.shape[0] {
		panic(fmt.Sprintf("row %d out of bounds (rows %d)", i, t.shape[0]))
	}
	cols := t.shape[1]
	return t.data[i*cols : (i+1)*cols]
}

// Reshape returns a tensor sharing the same data with a different shape.
// The new shape must have the same number of elements.
func (t *Tensor[T]) Reshape(newShape ...int) *Tensor[T] {
	s := Shape(newShape)
	if s.NumElements() != len(t.data) {
		panic(fmt.Sprintf("cannot reshape %v (%d elements) to %v", t.shape, len(t.data), s))
	}
	return &Tensor[T]{
		data:    t.data,
		shape:   s.Clone(),
		strides: s.ComputeStrides(),
	}
}

// Clone creates a deep copy of the tensor.
func (t *Tensor[T]) Clone() *Tensor[T] {
	data := make([]T, len(t.data))
	copy(data, t.data)
	return &Tensor[T]{
		data:    data,
		shape:   t.shape.Clone(),
		strides: t.shape.ComputeStrides(),
	}
}

// String returns a human-readable representation of the tensor.
func (t *Tensor[T]) String() string {
	return fmt.Sprintf("Tensor[%s]%v", t.DType(), t.shape)
}
