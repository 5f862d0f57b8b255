package generate

import (
	"fmt"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// BeamSearch keeps the Width most probable partial sequences at each step.
//
// Finished sequences stay in the beam and compete with live ones by total
// log-probability. A width of 1 reproduces Greedy.
type BeamSearch struct {
	Width int
}

// Name returns "beam".
func (b BeamSearch) Name() string { return fmt.Sprintf("beam(%d)", b.Width) }

type hypothesis struct {
	tokens  []int32
	logProb float64
	state   State
	logits  []float32
	done    bool
}

type candidate struct {
	parent  *hypothesis
	token   int32
	logProb float64
	order   int // insertion order, breaks score ties
}

// byScore orders candidates best first; equal scores keep insertion order.
func byScore(a, b interface{}) int {
	ca, cb := a.(candidate), b.(candidate)
	switch {
	case ca.logProb > cb.logProb:
		return -1
	case ca.logProb < cb.logProb:
		return 1
	case ca.order < cb.order:
		return -1
	case ca.order > cb.order:
		return 1
	default:
		return 0
	}
}

// Decode runs beam search.
func (b BeamSearch) Decode(s Stepper, opts Options) (Sequence, error) {
	if err := opts.validate(); err != nil {
		return Sequence{}, err
	}
	if b.Width < 1 {
		return Sequence{}, fmt.Errorf("generate: beam width must be positive, got %d", b.Width)
	}

	logits, state, err := s.Begin(opts.Initial)
	if err != nil {
		return Sequence{}, err
	}
	beam := []*hypothesis{{state: state, logits: logits}}

	for step := 0; step < opts.MaxLen; step++ {
		frontier := binaryheap.NewWith(byScore)
		order := 0
		for _, h := range beam {
			if h.done {
				frontier.Push(candidate{parent: h, token: -1, logProb: h.logProb, order: order})
				order++
				continue
			}
			for tok, lp := range LogSoftmax(h.logits) {
				frontier.Push(candidate{parent: h, token: int32(tok), logProb: h.logProb + lp, order: order})
				order++
			}
		}

		next := make([]*hypothesis, 0, b.Width)
		live := false
		for len(next) < b.Width {
			v, ok := frontier.Pop()
			if !ok {
				break
			}
			c := v.(candidate)
			if c.token < 0 {
				next = append(next, c.parent)
				continue
			}
			h := &hypothesis{
				tokens:  append(append(make([]int32, 0, len(c.parent.tokens)+1), c.parent.tokens...), c.token),
				logProb: c.logProb,
				done:    c.token == opts.End,
			}
			if !h.done && len(h.tokens) < opts.MaxLen {
				if h.logits, h.state, err = s.Next(c.token, c.parent.state); err != nil {
					return Sequence{}, err
				}
				live = true
			}
			next = append(next, h)
		}
		beam = next
		if !live {
			break
		}
	}

	best := beam[0]
	return Sequence{Tokens: best.tokens, Stopped: best.done, LogProb: best.logProb}, nil
}
