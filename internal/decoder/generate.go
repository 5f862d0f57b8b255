package decoder

import (
	"fmt"

	"github.com/born-ml/captioner/internal/generate"
	"github.com/born-ml/captioner/internal/tensor"
	"github.com/born-ml/captioner/internal/vocab"
)

// GenerateOptions configures Generate.
type GenerateOptions struct {
	// MaxLen caps produced tokens, END included. Zero means
	// generate.DefaultMaxLen.
	MaxLen int
	// InitialState seeds the first transition; nil means zeros.
	InitialState *State
	// Policy chooses tokens; nil means generate.Greedy.
	Policy generate.Policy
	// Vocab, when set, fills Result.Tokens and Result.Words.
	Vocab *vocab.Vocabulary
}

// Result is a generated caption.
type Result struct {
	// Raw holds the produced indices, including END when it was produced.
	Raw []int32
	// Tokens is Raw mapped to surface forms.
	Tokens []string
	// Words is Tokens without START, END and PAD.
	Words []string
	// Stopped reports whether generation ended on END.
	Stopped bool
}

// Generate produces a caption for one visual embedding, [1, EmbedSize] or
// [EmbedSize].
//
// Generation never records gradients on its own, but the decoder's backend
// does: callers holding an autodiff backend should stop the tape and switch
// to inference mode first. For fixed weights and options the result is
// deterministic.
func (d *Decoder) Generate(feature *tensor.Tensor[float32], opts GenerateOptions) (Result, error) {
	s := feature.Shape()
	switch {
	case len(s) == 1 && s[0] == d.cfg.EmbedSize:
		feature = feature.Reshape(1, s[0])
	case len(s) == 2 && s[0] == 1 && s[1] == d.cfg.EmbedSize:
	default:
		return Result{}, &tensor.ShapeError{Op: "decoder.Generate", What: "feature", Want: fmt.Sprintf("[1, %d]", d.cfg.EmbedSize), Got: s}
	}

	if opts.MaxLen == 0 {
		opts.MaxLen = generate.DefaultMaxLen
	}
	policy := opts.Policy
	if policy == nil {
		policy = generate.Greedy{}
	}

	seq, err := policy.Decode(&stepper{d: d, feature: feature}, generate.Options{
		MaxLen:  opts.MaxLen,
		End:     vocab.END,
		Initial: opts.InitialState,
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Raw: seq.Tokens, Stopped: seq.Stopped}
	if opts.Vocab != nil {
		if res.Tokens, err = opts.Vocab.Decode(res.Raw); err != nil {
			return Result{}, err
		}
		res.Words = make([]string, 0, len(res.Raw))
		for i, idx := range res.Raw {
			if idx == vocab.START || idx == vocab.END || idx == vocab.PAD {
				continue
			}
			res.Words = append(res.Words, res.Tokens[i])
		}
	}
	return res, nil
}

// stepper adapts a decoder conditioned on one embedding to generate.Stepper.
type stepper struct {
	d       *Decoder
	feature *tensor.Tensor[float32]
}

func (s *stepper) Begin(initial generate.State) ([]float32, generate.State, error) {
	state, ok := initial.(*State)
	if initial != nil && !ok {
		return nil, nil, fmt.Errorf("decoder: initial state has type %T", initial)
	}
	return s.step(s.feature, state)
}

func (s *stepper) Next(token int32, state generate.State) ([]float32, generate.State, error) {
	input, err := s.d.EmbedToken(token)
	if err != nil {
		return nil, nil, err
	}
	return s.step(input, state.(*State))
}

func (s *stepper) step(input *tensor.Tensor[float32], state *State) ([]float32, generate.State, error) {
	logits, next, err := s.d.Step(input, state)
	if err != nil {
		return nil, nil, err
	}
	return logits.Data(), next, nil
}
