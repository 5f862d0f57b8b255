package generate

import "math"

// Greedy picks the arg-max token at every step.
type Greedy struct{}

// Name returns "greedy".
func (Greedy) Name() string { return "greedy" }

// Decode runs greedy decoding.
func (Greedy) Decode(s Stepper, opts Options) (Sequence, error) {
	if err := opts.validate(); err != nil {
		return Sequence{}, err
	}

	logits, state, err := s.Begin(opts.Initial)
	if err != nil {
		return Sequence{}, err
	}

	var seq Sequence
	for {
		token := Argmax(logits)
		seq.Tokens = append(seq.Tokens, token)
		seq.LogProb += LogSoftmax(logits)[token]
		if token == opts.End {
			seq.Stopped = true
			return seq, nil
		}
		if len(seq.Tokens) >= opts.MaxLen {
			return seq, nil
		}
		if logits, state, err = s.Next(token, state); err != nil {
			return Sequence{}, err
		}
	}
}

// Argmax returns the index of the largest value. Ties resolve to the
// lowest index.
func Argmax(logits []float32) int32 {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return int32(best)
}

// LogSoftmax returns log(softmax(logits)) computed stably.
func LogSoftmax(logits []float32) []float64 {
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxVal))
	}
	logSum := math.Log(sum) + float64(maxVal)

	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = float64(v) - logSum
	}
	return out
}
