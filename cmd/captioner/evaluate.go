package main

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/captioner/internal/train"
)

func (a *app) evaluateCmd() *cobra.Command {
	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score generated captions against held-out references with BLEU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checkpoint, _ := cmd.Flags().GetString("checkpoint")
			vocabPath, _ := cmd.Flags().GetString("vocab")
			limit, _ := cmd.Flags().GetInt("limit")

			m, v, err := a.loadModel(checkpoint, vocabPath)
			if err != nil {
				return err
			}
			opts := a.captionOptions(cmd)

			trainRecords, valRecords, err := a.splitRecords()
			if err != nil {
				return err
			}
			records := valRecords
			if len(records) == 0 {
				records = trainRecords
			}
			ds, err := a.newDataset(records, v, m.Config().Encoder.ImageSize)
			if err != nil {
				return err
			}

			report, err := train.Evaluate(cmd.Context(), m, v, ds, train.EvalOptions{
				Limit:  limit,
				MaxLen: opts.MaxLen,
				Policy: opts.Policy,
			})
			if err != nil {
				return err
			}

			var data [][]string
			for _, row := range report.Rows {
				data = append(data, []string{row.Image, strconv.FormatFloat(row.BLEU, 'f', 4, 64), row.Generated, row.BestReference})
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"IMAGE", "BLEU", "GENERATED", "REFERENCE"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			table.AppendBulk(data)
			table.Render()

			s := report.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d images, mean BLEU %.4f (min %.4f, max %.4f)\n", s.Count, s.Mean, s.Min, s.Max)
			return nil
		},
	}
	addModelFlags(evaluateCmd)
	evaluateCmd.Flags().Int("limit", 0, "Evaluate at most this many images")
	return evaluateCmd
}
