package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-studio/internal/history"
	"github.com/YuminosukeSato/scigo-studio/internal/studio"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

var (
	trainCSV    string
	trainTarget string
	trainSeed   int64
	trainTrees  int
	trainOut    string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model on a local CSV file and print its metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(trainCSV)
		if err != nil {
			return errors.Wrapf(err, "open %s", trainCSV)
		}
		defer f.Close()

		sessionOpts := []studio.SessionOption{
			studio.WithLogger(logger),
			studio.WithDefaults(trainDefaults()),
		}
		if cfg.History.Enabled {
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			sessionOpts = append(sessionOpts, studio.WithRunRecorder(store))
		}
		session := studio.NewSession(sessionOpts...)

		if _, err := session.Ingest(f); err != nil {
			return err
		}

		opts := studio.TrainOptions{TargetColumn: trainTarget, NEstimators: trainTrees}
		if cmd.Flags().Changed("seed") {
			opts.Seed = studio.Seed(trainSeed)
		}
		metrics, err := session.Train(cmd.Context(), opts)
		if err != nil {
			return err
		}

		if trainOut != "" {
			artifact, err := session.Export()
			if err != nil {
				return err
			}
			if err := os.WriteFile(trainOut, artifact.Data, 0o644); err != nil {
				return errors.Wrapf(err, "write %s", trainOut)
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainCSV, "csv", "", "CSV file with a header row")
	trainCmd.Flags().StringVar(&trainTarget, "target", "", "target column (default: last column)")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 0, "random seed for the split and the forest")
	trainCmd.Flags().IntVar(&trainTrees, "n-estimators", 0, "number of trees (default from config)")
	trainCmd.Flags().StringVar(&trainOut, "out", "", "write the model artifact to this file")
	_ = trainCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(trainCmd)
}
