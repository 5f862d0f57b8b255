package score

import (
	"errors"
	"math"

	"github.com/born-ml/captioner/internal/tokenizer"
)

// ErrNoReferences is returned when scoring against an empty reference set.
var ErrNoReferences = errors.New("score: no reference captions")

// Scorer picks the reference caption that best matches a generated one.
type Scorer struct {
	tok  tokenizer.Tokenizer
	opts Options
}

// New creates a Scorer. A nil tokenizer means the word tokenizer.
func New(tok tokenizer.Tokenizer, opts Options) *Scorer {
	if tok == nil {
		tok = tokenizer.NewWord()
	}
	return &Scorer{tok: tok, opts: opts.withDefaults()}
}

// Score returns the reference with the highest BLEU against generated and
// that score. The generated caption is tokenized once. When several
// references share the maximum, the first one wins; when every score is
// zero, the first reference is returned.
func (s *Scorer) Score(refs []string, generated string) (string, float64, error) {
	if len(refs) == 0 {
		return "", 0, ErrNoReferences
	}
	hyp := s.tok.Tokenize(generated)

	best, bestScore := refs[0], -1.0
	for _, ref := range refs {
		if sc := BLEU(s.tok.Tokenize(ref), hyp, s.opts); sc > bestScore {
			best, bestScore = ref, sc
		}
	}
	return best, bestScore, nil
}

// Score scores with the word tokenizer and default options.
func Score(refs []string, generated string) (string, float64, error) {
	return New(nil, Options{}).Score(refs, generated)
}

// Summary aggregates scores over a set of examples.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summarize computes count, mean, min and max. The zero Summary is
// returned for no scores.
func Summarize(scores []float64) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	s := Summary{Count: len(scores), Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range scores {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(scores))
	return s
}
