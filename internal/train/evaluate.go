package train

import (
	"context"
	"strings"

	"github.com/born-ml/captioner/internal/dataset"
	"github.com/born-ml/captioner/internal/generate"
	"github.com/born-ml/captioner/internal/model"
	"github.com/born-ml/captioner/internal/score"
	"github.com/born-ml/captioner/internal/vocab"
)

// EvalOptions configure Evaluate.
type EvalOptions struct {
	Limit  int // Images to evaluate; zero means all
	MaxLen int
	Policy generate.Policy
	Scorer *score.Scorer // Nil uses the default BLEU scorer
}

// EvalRow is the result for one image.
type EvalRow struct {
	Image         string
	Generated     string
	BestReference string
	BLEU          float64
}

// Report is the result of Evaluate.
type Report struct {
	Rows    []EvalRow
	Summary score.Summary
}

// Evaluate captions every image of ds (up to Limit, in first-seen order)
// and scores each caption against that image's references.
func Evaluate(ctx context.Context, m *model.EncoderDecoder, v *vocab.Vocabulary, ds *dataset.Dataset, opts EvalOptions) (Report, error) {
	scorer := opts.Scorer
	if scorer == nil {
		scorer = score.New(v.Tokenizer(), score.Options{})
	}
	images := ds.Images()
	if opts.Limit > 0 && opts.Limit < len(images) {
		images = images[:opts.Limit]
	}

	var report Report
	scores := make([]float64, 0, len(images))
	for _, image := range images {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pixels, err := ds.LoadImage(image)
		if err != nil {
			return report, err
		}
		res, err := m.Caption(pixels, model.CaptionOptions{MaxLen: opts.MaxLen, Policy: opts.Policy, Vocab: v})
		if err != nil {
			return report, err
		}
		generated := strings.Join(res.Words, " ")
		best, bleu, err := scorer.Score(ds.References(image), generated)
		if err != nil {
			return report, err
		}
		report.Rows = append(report.Rows, EvalRow{Image: image, Generated: generated, BestReference: best, BLEU: bleu})
		scores = append(scores, bleu)
	}
	report.Summary = score.Summarize(scores)
	return report, nil
}
