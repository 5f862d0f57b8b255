package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/captioner/internal/dataset"
	"github.com/born-ml/captioner/internal/tokenizer"
	"github.com/born-ml/captioner/internal/vocab"
)

func (a *app) vocabCmd() *cobra.Command {
	vocabCmd := &cobra.Command{
		Use:   "vocab",
		Short: "Vocabulary tools",
	}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a vocabulary from the training captions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("captions") {
				a.cfg.Data.Captions, _ = cmd.Flags().GetString("captions")
			}
			if cmd.Flags().Changed("threshold") {
				a.cfg.Vocab.Threshold, _ = cmd.Flags().GetInt("threshold")
			}
			if cmd.Flags().Changed("tokenizer") {
				a.cfg.Vocab.Tokenizer, _ = cmd.Flags().GetString("tokenizer")
			}
			if cmd.Flags().Changed("output") {
				a.cfg.Vocab.Path, _ = cmd.Flags().GetString("output")
			}

			v, err := a.buildVocab()
			if err != nil {
				return err
			}
			if err := v.Save(a.cfg.Vocab.Path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tokens to %s\n", v.Len(), a.cfg.Vocab.Path)
			return nil
		},
	}
	buildCmd.Flags().String("captions", "", "Captions CSV (image,caption)")
	buildCmd.Flags().Int("threshold", 0, "Minimum word frequency")
	buildCmd.Flags().String("tokenizer", "", "word or a tiktoken encoding such as cl100k_base")
	buildCmd.Flags().StringP("output", "o", "", "Vocabulary file to write")

	vocabCmd.AddCommand(buildCmd)
	return vocabCmd
}

// buildVocab builds a vocabulary from the training side of the split, so
// validation captions never influence it.
func (a *app) buildVocab() (*vocab.Vocabulary, error) {
	tok, err := tokenizer.New(a.cfg.Vocab.Tokenizer)
	if err != nil {
		return nil, err
	}
	train, _, err := a.splitRecords()
	if err != nil {
		return nil, err
	}
	v, err := vocab.Build(dataset.Captions(train), a.cfg.Vocab.Threshold, tok)
	if err != nil {
		return nil, err
	}
	slog.Info("built vocabulary", "captions", len(train), "tokens", v.Len(), "threshold", a.cfg.Vocab.Threshold)
	return v, nil
}
