package score

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBLEU(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		hyp  string
		opts Options
		want float64
	}{
		{"identical", "a cat sits on a mat", "a cat sits on a mat", Options{}, 1},
		{"identical short", "a cat", "a cat", Options{}, 1},
		{"single word", "cat", "cat", Options{}, 1},
		// Without reweighting the missing 4-grams would zero this out.
		{"three words scored over orders 1..3", "a cat sits", "a cat sits", Options{}, 1},
		{"no overlap", "a cat sits", "the dog runs", Options{}, 0},
		{"empty hypothesis", "a cat", "", Options{}, 0},
		{
			// 3-word hypothesis uses orders 1..3: p1 = p2 = p3 = 1, BP = exp(1 - 6/3).
			name: "brevity penalty",
			ref:  "a cat sits on a mat",
			hyp:  "a cat sits",
			want: math.Exp(1 - 2.0),
		},
		{
			// "a" is clipped to its single reference occurrence: p1 = 1/2, p2 = 0/1.
			name: "clipping without smoothing",
			ref:  "a cat",
			hyp:  "a a",
			want: 0,
		},
		{
			name: "clipping with epsilon smoothing",
			ref:  "a cat",
			hyp:  "a a",
			opts: Options{Smoothing: SmoothEpsilon},
			want: math.Exp(0.5*math.Log(0.5) + 0.5*math.Log(0.1)),
		},
		{
			// Longer hypothesis: no brevity penalty, p1 = 4/5, p2 = 3/4, p3 = 2/3, p4 = 1/2.
			name: "partial overlap",
			ref:  "a cat sits on",
			hyp:  "a cat sits on mat",
			want: math.Pow(0.8*0.75*(2.0/3.0)*0.5, 0.25),
		},
		{
			name: "max order",
			ref:  "a cat sits on",
			hyp:  "a cat sits on mat",
			opts: Options{MaxOrder: 1},
			want: 0.8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BLEU(strings.Fields(tt.ref), strings.Fields(tt.hyp), tt.opts)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestBLEUBounds(t *testing.T) {
	refs := []string{"a cat sits on a mat", "two dogs play", "a dog"}
	hyps := []string{"a cat", "a dog plays on a mat with a cat", "dogs", "a a a a"}
	for _, r := range refs {
		for _, h := range hyps {
			for _, sm := range []Smoothing{SmoothNone, SmoothEpsilon} {
				got := BLEU(strings.Fields(r), strings.Fields(h), Options{Smoothing: sm})
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, 1.0)
			}
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		refs      []string
		generated string
		wantRef   string
		wantScore float64
	}{
		{
			name:      "identical reference wins",
			refs:      []string{"a dog runs", "A cat sits on a mat.", "two birds"},
			generated: "a cat sits on a mat.",
			wantRef:   "A cat sits on a mat.",
			wantScore: 1,
		},
		{
			name:      "first max on ties",
			refs:      []string{"a cat sits", "a cat sits"},
			generated: "a cat sits",
			wantRef:   "a cat sits",
			wantScore: 1,
		},
		{
			name:      "all zero keeps first",
			refs:      []string{"one", "two"},
			generated: "three",
			wantRef:   "one",
			wantScore: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, sc, err := Score(tt.refs, tt.generated)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRef, ref)
			assert.InDelta(t, tt.wantScore, sc, 1e-9)
		})
	}
}

func TestScoreTieBreakIsOrderDependent(t *testing.T) {
	s := New(nil, Options{})
	// Both references score identically against the hypothesis.
	refs := []string{"a cat sits on", "a cat sits in"}
	first, sa, err := s.Score(refs, "a cat sits")
	require.NoError(t, err)
	second, sb, err := s.Score([]string{refs[1], refs[0]}, "a cat sits")
	require.NoError(t, err)

	assert.Equal(t, sa, sb, "the best score does not depend on order")
	assert.Equal(t, refs[0], first)
	assert.Equal(t, refs[1], second)
}

func TestScoreNoReferences(t *testing.T) {
	_, _, err := Score(nil, "a cat")
	assert.ErrorIs(t, err, ErrNoReferences)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
	s := Summarize([]float64{0.5, 1, 0})
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 0.5, s.Mean, 1e-12)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 1.0, s.Max)
}
