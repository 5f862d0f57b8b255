// Package score measures caption quality with sentence-level BLEU.
//
// BLEU is the geometric mean of clipped n-gram precisions multiplied by a
// brevity penalty:
//
//	BLEU = BP * exp(sum_n w_n * log p_n)
//	BP   = 1 if c > r, else exp(1 - r/c)
//
// where c and r are the hypothesis and reference lengths. Weights are
// uniform over orders 1..N with N = min(MaxOrder, len(hypothesis)), so a
// short hypothesis is not zeroed out by n-gram orders it cannot contain.
package score

import (
	"math"
	"strings"
)

// DefaultMaxOrder is the highest n-gram order used by default.
const DefaultMaxOrder = 4

// Smoothing selects how zero n-gram matches are handled.
type Smoothing int

const (
	// SmoothNone yields a score of zero when any order has no match.
	SmoothNone Smoothing = iota
	// SmoothEpsilon replaces a zero match count with Epsilon.
	SmoothEpsilon
)

// Options configure BLEU.
type Options struct {
	MaxOrder  int       // Zero means DefaultMaxOrder
	Smoothing Smoothing // Default SmoothNone
	Epsilon   float64   // Zero means 0.1
}

func (o Options) withDefaults() Options {
	if o.MaxOrder <= 0 {
		o.MaxOrder = DefaultMaxOrder
	}
	if o.Epsilon <= 0 {
		o.Epsilon = 0.1
	}
	return o
}

// BLEU scores a tokenized hypothesis against one tokenized reference.
// The result lies in [0, 1]; an empty hypothesis or reference scores 0.
// Hypotheses shorter than MaxOrder are scored over the orders they have, so
// those scores are not comparable to nltk's sentence_bleu, which gives 0.
func BLEU(ref, hyp []string, opts Options) float64 {
	opts = opts.withDefaults()
	if len(hyp) == 0 || len(ref) == 0 {
		return 0
	}

	order := opts.MaxOrder
	if len(hyp) < order {
		order = len(hyp)
	}
	weight := 1 / float64(order)

	var logSum float64
	for n := 1; n <= order; n++ {
		matches, total := clippedMatches(ref, hyp, n)
		if matches == 0 {
			if opts.Smoothing != SmoothEpsilon {
				return 0
			}
			logSum += weight * math.Log(opts.Epsilon/float64(total))
			continue
		}
		logSum += weight * math.Log(float64(matches)/float64(total))
	}

	return brevityPenalty(len(ref), len(hyp)) * math.Exp(logSum)
}

// clippedMatches counts hypothesis n-grams that also occur in the
// reference, each clipped to its reference count, and the total number of
// hypothesis n-grams.
func clippedMatches(ref, hyp []string, n int) (matches, total int) {
	refCounts := ngrams(ref, n)
	for gram, count := range ngrams(hyp, n) {
		total += count
		matches += min(count, refCounts[gram])
	}
	return matches, total
}

func ngrams(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], "\x00")]++
	}
	return counts
}

func brevityPenalty(refLen, hypLen int) float64 {
	if hypLen > refLen {
		return 1
	}
	return math.Exp(1 - float64(refLen)/float64(hypLen))
}
