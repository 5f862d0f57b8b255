// Package generate implements decoding policies for autoregressive caption
// generation.
//
// A policy drives a Stepper, which wraps one conditioned decoder: Begin
// consumes the conditioning input (the image embedding) and Next feeds back
// a chosen token. Both return the logits for the following position.
// Policies never see tensors or weights, so the same policy works with any
// recurrent model.
package generate

import "fmt"

// DefaultMaxLen bounds generated sequences, END included.
const DefaultMaxLen = 25

// State is an opaque recurrent state owned by a Stepper. Policies only pass
// it back; they never inspect it. Steppers must not mutate a state they
// were given, so a policy may branch from the same state several times.
type State any

// Stepper advances a conditioned sequence model by one position.
type Stepper interface {
	// Begin runs the conditioning transition from the initial state (nil
	// means zeros) and returns logits for the first token.
	Begin(initial State) ([]float32, State, error)

	// Next feeds token and returns logits for the position after it.
	Next(token int32, state State) ([]float32, State, error)
}

// Options bound a decoding run.
type Options struct {
	// MaxLen caps the number of produced tokens, END included.
	MaxLen int
	// End stops a sequence once produced.
	End int32
	// Initial is passed to Stepper.Begin.
	Initial State
}

// Sequence is the outcome of a decoding run.
type Sequence struct {
	// Tokens are the produced indices, including End when it was produced.
	Tokens []int32
	// Stopped reports whether the sequence ended with End rather than
	// hitting MaxLen.
	Stopped bool
	// LogProb is the summed log-probability of Tokens.
	LogProb float64
}

// Policy chooses tokens from a Stepper until End or MaxLen.
type Policy interface {
	Decode(s Stepper, opts Options) (Sequence, error)
	Name() string
}

func (o Options) validate() error {
	if o.MaxLen < 1 {
		return fmt.Errorf("generate: max length must be positive, got %d", o.MaxLen)
	}
	return nil
}

// New returns Greedy for width <= 1 and BeamSearch otherwise.
func New(beamWidth int) Policy {
	if beamWidth <= 1 {
		return Greedy{}
	}
	return BeamSearch{Width: beamWidth}
}
