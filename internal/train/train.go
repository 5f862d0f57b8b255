// Package train drives teacher-forced training of the captioning model.
//
// Each step zeroes gradients, runs the model on the recording backend,
// computes cross-entropy of the logits against the flattened captions
// (PAD targets masked unless disabled), backpropagates, clips, and applies
// one optimizer step over the trainable parameters. The frozen backbone is
// never updated.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/born-ml/captioner/internal/autodiff"
	"github.com/born-ml/captioner/internal/dataset"
	"github.com/born-ml/captioner/internal/generate"
	"github.com/born-ml/captioner/internal/logutil"
	"github.com/born-ml/captioner/internal/model"
	"github.com/born-ml/captioner/internal/nn"
	"github.com/born-ml/captioner/internal/optim"
	"github.com/born-ml/captioner/internal/sequence"
	"github.com/born-ml/captioner/internal/vocab"
)

// Config configures a Trainer.
type Config struct {
	Epochs        int
	Optimizer     string  // "adam" or "sgd"
	LR            float32
	Momentum      float32 // SGD only
	ClipNorm      float32 // Zero disables clipping
	MaskPadding   bool    // Exclude PAD targets from the loss
	LogEvery      int     // Log every n steps; zero disables step logs
	CheckpointDir string  // Empty disables checkpoints
	Half          bool    // Store checkpoints as float16
	MaxLen        int     // Cap for the per-epoch sample caption
	Policy        generate.Policy
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch      int
	Steps      int
	TrainLoss  float64
	ValLoss    float64 // NaN without a validation loader
	Sample     string  // Caption generated for the first validation image
	Checkpoint string  // Path written, if any
	Duration   time.Duration
}

// Trainer owns the optimizer and loss for one model.
type Trainer struct {
	cfg    Config
	model  *model.EncoderDecoder
	vocab  *vocab.Vocabulary
	opt    optim.Optimizer
	loss   *nn.CrossEntropyLoss
	runID  string
	step   int64
	logger *slog.Logger
}

// New creates a Trainer. A nil logger uses slog.Default.
func New(m *model.EncoderDecoder, v *vocab.Vocabulary, cfg Config, logger *slog.Logger) (*Trainer, error) {
	if v.Len() != m.Config().Decoder.VocabSize {
		return nil, fmt.Errorf("train: %w: vocabulary has %d tokens, model has %d",
			model.ErrVocabularyMismatch, v.Len(), m.Config().Decoder.VocabSize)
	}
	opt, err := optim.New(m.Parameters(), optim.Config{Name: cfg.Optimizer, LR: cfg.LR, Momentum: cfg.Momentum})
	if err != nil {
		return nil, err
	}
	ignore := nn.NoIgnore
	if cfg.MaskPadding {
		ignore = vocab.PAD
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		cfg:    cfg,
		model:  m,
		vocab:  v,
		opt:    opt,
		loss:   nn.NewCrossEntropyLoss(ignore, m.Backend()),
		runID:  model.NewRunID(),
		logger: logger,
	}, nil
}

// RunID identifies the run in checkpoints.
func (t *Trainer) RunID() string { return t.runID }

// Steps returns how many optimizer steps have been taken.
func (t *Trainer) Steps() int64 { return t.step }

// TrainStep performs one optimization step on b and returns its loss.
func (t *Trainer) TrainStep(b *dataset.Batch) (float64, error) {
	backend := t.model.Backend()
	tape := backend.Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	t.model.SetTraining(true)
	t.opt.ZeroGrad()

	logits, err := t.model.Forward(b.Images, b.Captions)
	if err != nil {
		return 0, err
	}
	loss := t.loss.Forward(logits, sequence.Targets(b.Captions))
	value := float64(loss.Data()[0])

	grads, err := autodiff.Backward(loss, backend)
	if err != nil {
		return 0, err
	}
	params := t.model.Parameters()
	norm := optim.ClipGradNorm(params, grads, t.cfg.ClipNorm)
	t.opt.Step(grads)
	t.step++

	logutil.Trace("train step", "step", t.step, "loss", value, "grad_norm", norm)
	return value, nil
}

// Validate returns the mean loss over every batch of l. Recording and
// dropout are off for the duration.
func (t *Trainer) Validate(ctx context.Context, l *dataset.Loader) (float64, error) {
	tape := t.model.Backend().Tape()
	wasRecording, wasTraining := tape.IsRecording(), t.model.Training()
	tape.StopRecording()
	t.model.SetTraining(false)
	defer func() {
		t.model.SetTraining(wasTraining)
		if wasRecording {
			tape.StartRecording()
		}
	}()

	// Cancelling on return releases the producer when a batch fails early.
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var total float64
	var batches int
	for r := range l.Batches(batchCtx) {
		if r.Err != nil {
			return 0, r.Err
		}
		logits, err := t.model.Forward(r.Batch.Images, r.Batch.Captions)
		if err != nil {
			return 0, err
		}
		total += float64(t.loss.Forward(logits, sequence.Targets(r.Batch.Captions)).Data()[0])
		batches++
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if batches == 0 {
		return math.NaN(), nil
	}
	return total / float64(batches), nil
}

// Fit trains for cfg.Epochs epochs. After each epoch it computes the
// validation loss (when val is non-nil), logs a sample caption and writes a
// checkpoint. Cancelling ctx stops training between batches.
func (t *Trainer) Fit(ctx context.Context, train, val *dataset.Loader) ([]EpochStats, error) {
	var history []EpochStats
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		stats, err := t.epoch(ctx, epoch, train, val)
		if err != nil {
			return history, err
		}
		history = append(history, stats)
	}
	return history, nil
}

func (t *Trainer) epoch(ctx context.Context, epoch int, train, val *dataset.Loader) (EpochStats, error) {
	start := time.Now()
	stats := EpochStats{Epoch: epoch, ValLoss: math.NaN()}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var total float64
	for r := range train.Batches(batchCtx) {
		if r.Err != nil {
			return stats, fmt.Errorf("train: epoch %d: %w", epoch, r.Err)
		}
		loss, err := t.TrainStep(r.Batch)
		if err != nil {
			return stats, fmt.Errorf("train: epoch %d step %d: %w", epoch, t.step+1, err)
		}
		total += loss
		stats.Steps++
		if t.cfg.LogEvery > 0 && stats.Steps%t.cfg.LogEvery == 0 {
			t.logger.Info("training", "epoch", epoch, "step", stats.Steps, "of", train.NumBatches(), "loss", loss)
		}
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if stats.Steps == 0 {
		return stats, errors.New("train: loader produced no batches")
	}
	stats.TrainLoss = total / float64(stats.Steps)

	sampleFrom := train.Dataset()
	if val != nil {
		loss, err := t.Validate(ctx, val)
		if err != nil {
			return stats, fmt.Errorf("train: validation: %w", err)
		}
		stats.ValLoss = loss
		sampleFrom = val.Dataset()
	}

	sample, err := t.sample(sampleFrom)
	if err != nil {
		return stats, err
	}
	stats.Sample = sample

	if t.cfg.CheckpointDir != "" {
		path := filepath.Join(t.cfg.CheckpointDir, fmt.Sprintf("captioner-e%03d.born", epoch))
		err := t.model.Save(path, t.vocab, model.SaveOptions{
			RunID:     t.runID,
			Epoch:     epoch,
			Step:      t.step,
			Loss:      stats.TrainLoss,
			Optimizer: t.cfg.Optimizer,
			Half:      t.cfg.Half,
		})
		if err != nil {
			return stats, fmt.Errorf("train: checkpoint: %w", err)
		}
		stats.Checkpoint = path
	}

	stats.Duration = time.Since(start)
	t.logger.Info("epoch done",
		"epoch", epoch,
		"train_loss", stats.TrainLoss,
		"val_loss", stats.ValLoss,
		"sample", stats.Sample,
		"checkpoint", stats.Checkpoint,
		"elapsed", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// sample captions the first image of ds.
func (t *Trainer) sample(ds *dataset.Dataset) (string, error) {
	images := ds.Images()
	if len(images) == 0 {
		return "", nil
	}
	pixels, err := ds.LoadImage(images[0])
	if err != nil {
		return "", err
	}
	res, err := t.model.Caption(pixels, model.CaptionOptions{MaxLen: t.cfg.MaxLen, Policy: t.cfg.Policy, Vocab: t.vocab})
	if err != nil {
		return "", err
	}
	return strings.Join(res.Words, " "), nil
}
