package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/captioner/internal/dataset"
	"github.com/born-ml/captioner/internal/generate"
	"github.com/born-ml/captioner/internal/model"
	"github.com/born-ml/captioner/internal/train"
	"github.com/born-ml/captioner/internal/vocab"
)

var errNoBackboneWeights = errors.New("model.backbone_weights is not set; set model.allow_random_backbone to train on a random frozen backbone")

func (a *app) trainCmd() *cobra.Command {
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train a captioning model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("epochs") {
				a.cfg.Train.Epochs, _ = cmd.Flags().GetInt("epochs")
			}
			resume, _ := cmd.Flags().GetString("resume")
			return a.runTrain(cmd, resume)
		},
	}
	trainCmd.Flags().Int("epochs", 0, "Number of epochs")
	trainCmd.Flags().String("resume", "", "Continue from a checkpoint")
	return trainCmd
}

func (a *app) runTrain(cmd *cobra.Command, resume string) error {
	trainRecords, valRecords, err := a.splitRecords()
	if err != nil {
		return err
	}

	v, err := a.trainingVocab()
	if err != nil {
		return err
	}

	var m *model.EncoderDecoder
	if resume != "" {
		if m, _, err = model.Load(resume, v); err != nil {
			return err
		}
	} else {
		if m, err = model.New(a.modelConfig(v.Len())); err != nil {
			return err
		}
		switch path := a.cfg.Model.BackboneWeights; {
		case path != "":
			if err := m.Encoder().LoadBackboneFile(path); err != nil {
				return err
			}
		case !a.cfg.Model.AllowRandomBackbone:
			return errNoBackboneWeights
		default:
			slog.Warn("training on a random frozen backbone; captions will not track image content",
				"hint", "set model.backbone_weights to a .born or .safetensors file with backbone.conv{i}.weight/bias")
		}
		if path := a.cfg.Model.WordVectors; path != "" {
			found, err := m.LoadWordVectorsFile(path, v)
			if err != nil {
				return err
			}
			slog.Info("loaded word vectors", "path", path, "found", found, "vocab", v.Len())
		}
	}

	imageSize := m.Config().Encoder.ImageSize
	trainSet, err := a.newDataset(trainRecords, v, imageSize)
	if err != nil {
		return err
	}
	trainLoader, err := dataset.NewLoader(trainSet, dataset.LoaderOptions{
		BatchSize: a.cfg.Data.BatchSize,
		Shuffle:   true,
		Seed:      a.cfg.Train.Seed,
		Workers:   a.cfg.Data.Workers,
		Prefetch:  a.cfg.Data.Prefetch,
	})
	if err != nil {
		return err
	}

	var valLoader *dataset.Loader
	if len(valRecords) > 0 {
		valSet, err := a.newDataset(valRecords, v, imageSize)
		if err != nil {
			return err
		}
		valLoader, err = dataset.NewLoader(valSet, dataset.LoaderOptions{
			BatchSize: a.cfg.Data.BatchSize,
			Workers:   a.cfg.Data.Workers,
			Prefetch:  a.cfg.Data.Prefetch,
		})
		if err != nil {
			return err
		}
	}

	tr, err := train.New(m, v, train.Config{
		Epochs:        a.cfg.Train.Epochs,
		Optimizer:     a.cfg.Train.Optimizer,
		LR:            a.cfg.Train.LR,
		Momentum:      a.cfg.Train.Momentum,
		ClipNorm:      a.cfg.Train.ClipNorm,
		MaskPadding:   a.cfg.Train.MaskPadding,
		LogEvery:      a.cfg.Train.LogEvery,
		CheckpointDir: a.cfg.Train.CheckpointDir,
		Half:          a.cfg.Train.Half,
		MaxLen:        a.cfg.Generate.MaxLen,
		Policy:        generate.New(a.cfg.Generate.BeamWidth),
	}, slog.Default())
	if err != nil {
		return err
	}

	slog.Info("training",
		"run", tr.RunID(),
		"train_captions", trainSet.Len(),
		"val_captions", len(valRecords),
		"batches", trainLoader.NumBatches(),
		"params", countParameters(m))

	history, err := tr.Fit(cmd.Context(), trainLoader, valLoader)
	if err != nil {
		return err
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		fmt.Fprintf(cmd.OutOrStdout(), "epoch %d: train loss %.4f, val loss %.4f, checkpoint %s\n",
			last.Epoch, last.TrainLoss, last.ValLoss, last.Checkpoint)
	}
	return nil
}

// trainingVocab loads the configured vocabulary, building and saving it
// when the file does not exist yet.
func (a *app) trainingVocab() (*vocab.Vocabulary, error) {
	v, err := vocab.Load(a.cfg.Vocab.Path)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if v, err = a.buildVocab(); err != nil {
		return nil, err
	}
	if err := v.Save(a.cfg.Vocab.Path); err != nil {
		return nil, err
	}
	return v, nil
}

func countParameters(m *model.EncoderDecoder) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}
