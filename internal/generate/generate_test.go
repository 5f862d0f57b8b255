package generate

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEnd   int32 = 2
	testVocab       = 6
)

// tableStepper returns logits that depend only on the last fed token.
// Begin uses the entry for -1. The state counts transitions.
type tableStepper struct {
	table   map[int32][]float32
	initial State
	calls   int
	failAt  int
}

func (s *tableStepper) Begin(initial State) ([]float32, State, error) {
	s.initial = initial
	return s.table[-1], 0, nil
}

func (s *tableStepper) Next(token int32, state State) ([]float32, State, error) {
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return nil, nil, errors.New("stepper failed")
	}
	logits, ok := s.table[token]
	if !ok {
		logits = s.table[-1]
	}
	return logits, state.(int) + 1, nil
}

// probs converts probabilities to logits; missing entries get a tiny mass.
func probs(p map[int32]float64) []float32 {
	out := make([]float32, testVocab)
	for i := range out {
		out[i] = -30
	}
	for tok, v := range p {
		out[tok] = float32(math.Log(v))
	}
	return out
}

func TestGreedy(t *testing.T) {
	tests := []struct {
		name    string
		table   map[int32][]float32
		maxLen  int
		want    []int32
		stopped bool
	}{
		{
			name: "stops on end",
			table: map[int32][]float32{
				-1: probs(map[int32]float64{4: 1}),
				4:  probs(map[int32]float64{5: 1}),
				5:  probs(map[int32]float64{testEnd: 1}),
			},
			maxLen: 25, want: []int32{4, 5, testEnd}, stopped: true,
		},
		{
			name: "capped by max length",
			table: map[int32][]float32{
				-1: probs(map[int32]float64{4: 1}),
				4:  probs(map[int32]float64{4: 1}),
			},
			maxLen: 3, want: []int32{4, 4, 4}, stopped: false,
		},
		{
			name: "end on first step",
			table: map[int32][]float32{
				-1: probs(map[int32]float64{testEnd: 1}),
			},
			maxLen: 25, want: []int32{testEnd}, stopped: true,
		},
		{
			name: "ties pick lowest index",
			table: map[int32][]float32{
				-1: {0, 0, 0, 1, 1, 0},
				3:  probs(map[int32]float64{testEnd: 1}),
			},
			maxLen: 25, want: []int32{3, testEnd}, stopped: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &tableStepper{table: tt.table}
			seq, err := Greedy{}.Decode(s, Options{MaxLen: tt.maxLen, End: testEnd, Initial: "init"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, seq.Tokens)
			assert.Equal(t, tt.stopped, seq.Stopped)
			assert.LessOrEqual(t, len(seq.Tokens), tt.maxLen)
			assert.Equal(t, "init", s.initial)
			assert.LessOrEqual(t, seq.LogProb, 0.0)
		})
	}
}

func TestBeamSearchBeatsGreedy(t *testing.T) {
	table := map[int32][]float32{
		-1: probs(map[int32]float64{4: 0.55, 5: 0.45}),
		4:  probs(map[int32]float64{testEnd: 0.3, 3: 0.25, 4: 0.25, 5: 0.2}),
		5:  probs(map[int32]float64{testEnd: 0.99, 3: 0.01}),
	}
	opts := Options{MaxLen: 10, End: testEnd}

	greedy, err := Greedy{}.Decode(&tableStepper{table: table}, opts)
	require.NoError(t, err)
	assert.Equal(t, []int32{4, testEnd}, greedy.Tokens)

	beam, err := BeamSearch{Width: 2}.Decode(&tableStepper{table: table}, opts)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, testEnd}, beam.Tokens)
	assert.True(t, beam.Stopped)
	assert.Greater(t, beam.LogProb, greedy.LogProb)
}

func TestBeamWidthOneMatchesGreedy(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		table := make(map[int32][]float32)
		for tok := int32(-1); tok < testVocab; tok++ {
			row := make([]float32, testVocab)
			for i := range row {
				row[i] = float32(rng.NormFloat64())
			}
			table[tok] = row
		}
		opts := Options{MaxLen: 8, End: testEnd}

		greedy, err := Greedy{}.Decode(&tableStepper{table: table}, opts)
		require.NoError(t, err)
		beam, err := BeamSearch{Width: 1}.Decode(&tableStepper{table: table}, opts)
		require.NoError(t, err)
		assert.Equal(t, greedy.Tokens, beam.Tokens, "trial %d", trial)
		assert.Equal(t, greedy.Stopped, beam.Stopped)
	}
}

func TestBeamSearchRespectsMaxLen(t *testing.T) {
	table := map[int32][]float32{-1: probs(map[int32]float64{4: 0.5, 5: 0.5})}
	seq, err := BeamSearch{Width: 3}.Decode(&tableStepper{table: table}, Options{MaxLen: 4, End: testEnd})
	require.NoError(t, err)
	assert.Len(t, seq.Tokens, 4)
	assert.False(t, seq.Stopped)
}

func TestDecodeErrors(t *testing.T) {
	table := map[int32][]float32{-1: probs(map[int32]float64{4: 1})}

	_, err := Greedy{}.Decode(&tableStepper{table: table}, Options{MaxLen: 0})
	assert.Error(t, err)
	_, err = BeamSearch{Width: 0}.Decode(&tableStepper{table: table}, Options{MaxLen: 3})
	assert.Error(t, err)

	for _, p := range []Policy{Greedy{}, BeamSearch{Width: 2}} {
		_, err = p.Decode(&tableStepper{table: table, failAt: 1}, Options{MaxLen: 5, End: testEnd})
		assert.EqualError(t, err, "stepper failed", p.Name())
	}
}

func TestNew(t *testing.T) {
	assert.Equal(t, Greedy{}, New(0))
	assert.Equal(t, Greedy{}, New(1))
	assert.Equal(t, BeamSearch{Width: 4}, New(4))
	assert.Equal(t, "beam(4)", New(4).Name())
}

func TestArgmaxLogSoftmax(t *testing.T) {
	assert.Equal(t, int32(1), Argmax([]float32{0, 3, 3, -1}))
	lp := LogSoftmax([]float32{1, 1})
	assert.InDelta(t, math.Log(0.5), lp[0], 1e-9)
	assert.InDelta(t, math.Log(0.5), lp[1], 1e-9)
}
