package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/captioner/internal/config"
	"github.com/born-ml/captioner/internal/dataset"
	"github.com/born-ml/captioner/internal/decoder"
	"github.com/born-ml/captioner/internal/encoder"
	"github.com/born-ml/captioner/internal/logutil"
	"github.com/born-ml/captioner/internal/model"
	"github.com/born-ml/captioner/internal/sequence"
	"github.com/born-ml/captioner/internal/version"
	"github.com/born-ml/captioner/internal/vocab"
)

// app carries the configuration resolved before a command runs.
type app struct {
	cfg config.Config
}

func NewCLI() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "captioner",
		Short: "Image captioning with a CNN encoder and an LSTM decoder",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "trace, debug, info, warn or error")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		a.vocabCmd(),
		a.trainCmd(),
		a.captionCmd(),
		a.evaluateCmd(),
		a.serveCmd(),
		versionCmd(),
		envCmd(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	level, err := logutil.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(logutil.NewLogger(os.Stderr, level))
	a.cfg = cfg
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "captioner version %s\n", version.Version)
			return nil
		},
	}
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, ev := range config.EnvVars() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %s\n", ev.Name, ev.Description)
			}
			return nil
		},
	}
}

// modelConfig maps the configuration onto the model architecture.
func (a *app) modelConfig(vocabSize int) model.Config {
	m := a.cfg.Model
	return model.Config{
		Encoder: encoder.Config{
			ImageSize:  a.cfg.Data.ImageSize,
			Channels:   m.Channels,
			FeatureDim: m.FeatureDim,
			EmbedSize:  m.EmbedSize,
			Dropout:    m.EncoderDropout,
			Seed:       m.Seed,
		},
		Decoder: decoder.Config{
			VocabSize:  vocabSize,
			EmbedSize:  m.EmbedSize,
			HiddenSize: m.HiddenSize,
			NumLayers:  m.NumLayers,
			Dropout:    m.DecoderDropout,
			Seed:       m.Seed + 1,
		},
	}
}

// splitRecords reads the captions file and splits it as configured.
func (a *app) splitRecords() (train, val []dataset.Record, err error) {
	records, err := dataset.ReadCaptions(a.cfg.Data.Captions)
	if err != nil {
		return nil, nil, err
	}
	strategy, err := dataset.ParseSplitStrategy(a.cfg.Data.Split)
	if err != nil {
		return nil, nil, err
	}
	return dataset.Split(records, dataset.SplitOptions{
		Strategy:    strategy,
		ValFraction: a.cfg.Data.ValFraction,
		Seed:        a.cfg.Data.SplitSeed,
	})
}

// newDataset builds a dataset over the configured image directory.
func (a *app) newDataset(records []dataset.Record, v *vocab.Vocabulary, imageSize int) (*dataset.Dataset, error) {
	padding, err := sequence.ParsePadStrategy(a.cfg.Data.Padding)
	if err != nil {
		return nil, err
	}
	return dataset.New(records, v, dataset.DirSource(a.cfg.Data.Images), dataset.NewImageLoader(imageSize), dataset.Options{Padding: padding})
}

// loadModel loads a checkpoint and the vocabulary it was trained with.
func (a *app) loadModel(checkpoint, vocabPath string) (*model.EncoderDecoder, *vocab.Vocabulary, error) {
	if vocabPath == "" {
		vocabPath = a.cfg.Vocab.Path
	}
	v, err := vocab.Load(vocabPath)
	if err != nil {
		return nil, nil, err
	}
	m, header, err := model.Load(checkpoint, v)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("loaded checkpoint", "path", checkpoint, "run", header.Checkpoint.RunID, "epoch", header.Checkpoint.Epoch)
	return m, v, nil
}
