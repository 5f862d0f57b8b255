package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/captioner/internal/dataset"
	"github.com/born-ml/captioner/internal/generate"
	"github.com/born-ml/captioner/internal/model"
	"github.com/born-ml/captioner/internal/tensor"
)

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("checkpoint", "", "Model checkpoint (.born)")
	cmd.Flags().String("vocab", "", "Vocabulary file (defaults to vocab.path)")
	cmd.Flags().Int("beam", 0, "Beam width; 1 is greedy (defaults to generate.beam_width)")
	cmd.Flags().Int("max-len", 0, "Maximum caption tokens (defaults to generate.max_len)")
	_ = cmd.MarkFlagRequired("checkpoint")
}

// captionOptions resolves generation flags against the configuration.
func (a *app) captionOptions(cmd *cobra.Command) model.CaptionOptions {
	if cmd.Flags().Changed("beam") {
		a.cfg.Generate.BeamWidth, _ = cmd.Flags().GetInt("beam")
	}
	if cmd.Flags().Changed("max-len") {
		a.cfg.Generate.MaxLen, _ = cmd.Flags().GetInt("max-len")
	}
	return model.CaptionOptions{MaxLen: a.cfg.Generate.MaxLen, Policy: generate.New(a.cfg.Generate.BeamWidth)}
}

func (a *app) captionCmd() *cobra.Command {
	captionCmd := &cobra.Command{
		Use:   "caption IMAGE...",
		Short: "Caption images with a trained model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checkpoint, _ := cmd.Flags().GetString("checkpoint")
			vocabPath, _ := cmd.Flags().GetString("vocab")
			m, v, err := a.loadModel(checkpoint, vocabPath)
			if err != nil {
				return err
			}
			opts := a.captionOptions(cmd)
			opts.Vocab = v

			images := dataset.NewImageLoader(m.Config().Encoder.ImageSize)
			for _, path := range args {
				pixels, err := decodeFile(images, path)
				if err != nil {
					return err
				}
				res, err := m.Caption(pixels, opts)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, strings.Join(res.Words, " "))
			}
			return nil
		},
	}
	addModelFlags(captionCmd)
	return captionCmd
}

// decodeFile reads one image from disk.
func decodeFile(images *dataset.ImageLoader, path string) (*tensor.Tensor[float32], error) {
	//nolint:gosec // G304: image paths are command arguments
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pixels, err := images.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pixels, nil
}
