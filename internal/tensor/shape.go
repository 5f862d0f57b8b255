package tensor

import (
	"fmt"
	"slices"
)

// Shape is the list of tensor dimensions, outermost first. Images are
// [N, C, H, W], token batches [N, L] and logits [N, L, V].
type Shape []int

// NumElements returns the product of the dimensions; a scalar holds one.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate rejects zero or negative dimensions.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d < 1 }); i >= 0 {
		return fmt.Errorf("dimension %d of %v is %d", i, s, s[i])
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	return slices.Clone(s)
}

// ComputeStrides returns row-major strides.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

// ShapeError reports a tensor whose shape does not match what an operation
// requires. It is returned from component entry points; kernels panic instead.
type ShapeError struct {
	Op   string // Operation that rejected the tensor (e.g. "decoder.Forward")
	What string // Which input (e.g. "features")
	Want string // Expected shape, human readable
	Got  Shape  // Actual shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s shape mismatch: want %s, got %v", e.Op, e.What, e.Want, e.Got)
}
