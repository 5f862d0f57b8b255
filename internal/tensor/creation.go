package tensor

import "math/rand"

// Ones creates a float32 tensor filled with ones.
func Ones(shape Shape) *Tensor[float32] {
	return Full[float32](shape, 1)
}

// Randn creates a float32 tensor with values drawn from N(mean, std²).
//
// The caller supplies the random source so initialization is reproducible.
func Randn(shape Shape, mean, std float64, rng *rand.Rand) *Tensor[float32] {
	t := Zeros[float32](shape)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64()*std + mean)
	}
	return t
}

// Uniform creates a float32 tensor with values drawn from U(low, high).
func Uniform(shape Shape, low, high float64, rng *rand.Rand) *Tensor[float32] {
	t := Zeros[float32](shape)
	span := high - low
	for i := range t.data {
		t.data[i] = float32(low + rng.Float64()*span)
	}
	return t
}

// Indices creates an int32 tensor of shape [len(idx)] from token indices.
func Indices(idx []int32) *Tensor[int32] {
	if len(idx) == 0 {
		panic("tensor.Indices: empty index list")
	}
	t := Zeros[int32](Shape{len(idx)})
	copy(t.data, idx)
	return t
}
