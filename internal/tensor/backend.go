package tensor

// Backend defines the compute operations the captioning model is built from.
//
// Kernels panic on malformed shapes; components validate their inputs and
// return *ShapeError before reaching a kernel. Every operation allocates a
// fresh result and never mutates its inputs, which keeps tensors recorded on
// a gradient tape valid until the backward pass.
type Backend interface {
	// Name returns a human-readable backend name.
	Name() string

	// Add returns a + b. b may have the same shape as a, or be a row vector
	// ([N] or [1, N]) broadcast over the rows of a 2D a.
	Add(a, b *Tensor[float32]) *Tensor[float32]

	// Mul returns the element-wise product of two same-shaped tensors.
	Mul(a, b *Tensor[float32]) *Tensor[float32]

	// Scale returns a * s.
	Scale(a *Tensor[float32], s float32) *Tensor[float32]

	// MatMul returns a @ b for 2D a [M, K] and b [K, N].
	MatMul(a, b *Tensor[float32]) *Tensor[float32]

	// MatMulT returns a @ b^T for 2D a [M, K] and b [N, K].
	MatMulT(a, b *Tensor[float32]) *Tensor[float32]

	// Transpose returns the transpose of a 2D tensor.
	Transpose(a *Tensor[float32]) *Tensor[float32]

	// Activations.
	Sigmoid(x *Tensor[float32]) *Tensor[float32]
	Tanh(x *Tensor[float32]) *Tensor[float32]
	ReLU(x *Tensor[float32]) *Tensor[float32]

	// SliceCols returns columns [start, end) of a 2D tensor.
	SliceCols(x *Tensor[float32], start, end int) *Tensor[float32]

	// Stack interleaves T step tensors of shape [N, D] into [N*T, D], placing
	// step t of batch row n at row n*T+t.
	Stack(steps []*Tensor[float32]) *Tensor[float32]

	// Embedding gathers rows of weight [V, D] at indices [N], giving [N, D].
	Embedding(weight *Tensor[float32], indices *Tensor[int32]) *Tensor[float32]

	// CrossEntropy returns the mean softmax cross-entropy of logits [N, C]
	// against targets [N] as a tensor of shape [1]. Rows whose target equals
	// ignoreIndex are excluded from the mean. A negative ignoreIndex keeps
	// every row.
	CrossEntropy(logits *Tensor[float32], targets *Tensor[int32], ignoreIndex int32) *Tensor[float32]

	// Conv2D convolves input [N, C, H, W] with kernel [F, C, KH, KW].
	// bias ([F]) may be nil.
	Conv2D(input, kernel, bias *Tensor[float32], stride, padding int) *Tensor[float32]

	// MaxPool2D applies max pooling over [N, C, H, W].
	MaxPool2D(input *Tensor[float32], kernelSize, stride int) *Tensor[float32]

	// GlobalAvgPool2D averages [N, C, H, W] over H and W, giving [N, C].
	GlobalAvgPool2D(input *Tensor[float32]) *Tensor[float32]
}
