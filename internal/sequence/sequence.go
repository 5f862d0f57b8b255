// Package sequence turns captions into START/END framed index sequences and
// pads batches of them into rectangular tensors.
package sequence

import (
	"fmt"
	"strings"

	"github.com/born-ml/captioner/internal/tensor"
	"github.com/born-ml/captioner/internal/vocab"
)

// PadStrategy selects the padded length of a batch.
type PadStrategy int

const (
	// PadPerBatch pads every row to the longest sequence in the batch.
	PadPerBatch PadStrategy = iota
	// PadGlobalMax pads every row to a fixed dataset-wide maximum.
	PadGlobalMax
)

// String returns the config name of the strategy.
func (p PadStrategy) String() string {
	switch p {
	case PadPerBatch:
		return "batch"
	case PadGlobalMax:
		return "global"
	default:
		return fmt.Sprintf("PadStrategy(%d)", int(p))
	}
}

// ParsePadStrategy parses "batch" or "global".
func ParsePadStrategy(s string) (PadStrategy, error) {
	switch strings.ToLower(s) {
	case "", "batch":
		return PadPerBatch, nil
	case "global":
		return PadGlobalMax, nil
	default:
		return 0, fmt.Errorf("sequence: unknown padding strategy %q", s)
	}
}

// Encoder frames captions with START and END.
type Encoder struct {
	vocab *vocab.Vocabulary
}

// NewEncoder creates an Encoder over v.
func NewEncoder(v *vocab.Vocabulary) *Encoder {
	return &Encoder{vocab: v}
}

// EncodeCaption returns [START] + vocab.Encode(caption) + [END]. An empty
// caption yields [START, END].
func (e *Encoder) EncodeCaption(caption string) []int32 {
	body := e.vocab.Encode(caption)
	out := make([]int32, 0, len(body)+2)
	out = append(out, vocab.START)
	out = append(out, body...)
	return append(out, vocab.END)
}

// MaxLength returns the longest framed length over corpus. It is the
// global maximum used by PadGlobalMax.
func (e *Encoder) MaxLength(corpus []string) int {
	longest := 2
	for _, c := range corpus {
		if n := len(e.vocab.Encode(c)) + 2; n > longest {
			longest = n
		}
	}
	return longest
}

// PadBatch right-pads every sequence with pad to the batch maximum and
// stacks them into an [N, maxLen] tensor. Row order is preserved.
func PadBatch(seqs [][]int32, pad int32) (*tensor.Tensor[int32], error) {
	longest := 0
	for _, s := range seqs {
		longest = max(longest, len(s))
	}
	return PadTo(seqs, pad, longest)
}

// PadTo right-pads every sequence to length. A sequence longer than length
// is an error; sequences are never truncated.
func PadTo(seqs [][]int32, pad int32, length int) (*tensor.Tensor[int32], error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("sequence: empty batch")
	}
	for i, s := range seqs {
		if len(s) < 2 {
			return nil, fmt.Errorf("sequence: row %d has length %d, want >= 2", i, len(s))
		}
		if len(s) > length {
			return nil, fmt.Errorf("sequence: row %d has length %d, exceeds pad length %d", i, len(s), length)
		}
	}

	out := tensor.Full(tensor.Shape{len(seqs), length}, pad)
	data := out.Data()
	for i, s := range seqs {
		copy(data[i*length:], s)
	}
	return out, nil
}

// Collator pads batches according to a strategy.
type Collator struct {
	Strategy  PadStrategy
	GlobalMax int // Used by PadGlobalMax
}

// Collate pads seqs with PAD.
func (c Collator) Collate(seqs [][]int32) (*tensor.Tensor[int32], error) {
	switch c.Strategy {
	case PadPerBatch:
		return PadBatch(seqs, vocab.PAD)
	case PadGlobalMax:
		if c.GlobalMax < 2 {
			return nil, fmt.Errorf("sequence: global max length %d, want >= 2", c.GlobalMax)
		}
		return PadTo(seqs, vocab.PAD, c.GlobalMax)
	default:
		return nil, fmt.Errorf("sequence: unknown padding strategy %v", c.Strategy)
	}
}

// Inputs returns the teacher-forced prefix: every column but the last.
// captions must be [N, L] with L >= 2.
func Inputs(captions *tensor.Tensor[int32]) *tensor.Tensor[int32] {
	if s := captions.Shape(); len(s) != 2 || s[1] < 2 {
		panic(fmt.Sprintf("sequence.Inputs: expected [N, L>=2], got %v", s))
	}
	return sliceCols(captions, 0, captions.Shape()[1]-1)
}

// Targets flattens captions row-major into [N*L], aligned with decoder
// logits row n*L+t.
func Targets(captions *tensor.Tensor[int32]) *tensor.Tensor[int32] {
	return captions.Reshape(captions.NumElements())
}

func sliceCols(x *tensor.Tensor[int32], start, end int) *tensor.Tensor[int32] {
	rows, cols := x.Shape()[0], x.Shape()[1]
	width := end - start
	out := tensor.Zeros[int32](tensor.Shape{rows, width})
	src, dst := x.Data(), out.Data()
	for r := 0; r < rows; r++ {
		copy(dst[r*width:(r+1)*width], src[r*cols+start:r*cols+end])
	}
	return out
}

// Lengths returns the non-pad prefix length of each row.
func Lengths(captions *tensor.Tensor[int32], pad int32) []int {
	rows, cols := captions.Shape()[0], captions.Shape()[1]
	data := captions.Data()
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		n := cols
		for n > 0 && data[r*cols+n-1] == pad {
			n--
		}
		out[r] = n
	}
	return out
}
