// pcctl is the operator CLI: it trains model artifacts, cross-validates
// configurations, and inspects what is on disk, without touching the
// serving process (which picks up new artifacts via POST /model/reload).
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/passivecaptcha/server/internal/ml"
	"github.com/passivecaptcha/server/internal/training"
)

func main() {
	root := &cobra.Command{
		Use:           "pcctl",
		Short:         "Train, evaluate and inspect passivecaptcha model artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(trainCmd(), evaluateCmd(), inspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pcctl:", err)
		os.Exit(1)
	}
}

func trainFlags(cmd *cobra.Command, cfg *training.Config) {
	cmd.Flags().IntVar(&cfg.HumanSamples, "humans", cfg.HumanSamples, "synthetic human samples")
	cmd.Flags().IntVar(&cfg.BotSamples, "bots", cfg.BotSamples, "synthetic bot samples (split across tiers)")
	cmd.Flags().Float64Var(&cfg.TestFraction, "test-fraction", cfg.TestFraction, "held-out share per class")
	cmd.Flags().Float64Var(&cfg.MinAccuracy, "min-accuracy", cfg.MinAccuracy, "accuracy gate on the held-out split")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "rng seed for data generation and the forest")
	cmd.Flags().IntVar(&cfg.ForestTrees, "trees", cfg.ForestTrees, "trees in the random forest")
	cmd.Flags().IntVar(&cfg.BoostRounds, "rounds", cfg.BoostRounds, "boosting rounds")
}

func trainCmd() *cobra.Command {
	cfg := training.DefaultConfig()
	var out string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an ensemble and write the artifact to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, report, err := training.Train(cfg)
			if err != nil {
				if errors.Is(err, training.ErrAccuracyGate) {
					// Report what the run achieved, but never write a failing
					// artifact over a good one.
					fmt.Fprintln(cmd.OutOrStdout(), report)
				}
				return err
			}

			if err := artifact.Save(out); err != nil {
				return fmt.Errorf("save artifact: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			fmt.Fprintf(cmd.OutOrStdout(), "artifact written to %s\n", out)
			return nil
		},
	}
	trainFlags(cmd, &cfg)
	cmd.Flags().StringVarP(&out, "out", "o", "./model", "artifact output directory")
	return cmd
}

func evaluateCmd() *cobra.Command {
	cfg := training.DefaultConfig()
	var folds int

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Cross-validate a training configuration without writing an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := training.CrossValidate(cfg, folds)
			if err != nil {
				return err
			}

			var sum training.Report
			for i, r := range reports {
				fmt.Fprintf(cmd.OutOrStdout(), "fold %d: %s\n", i+1, r)
				sum.Accuracy += r.Accuracy
				sum.Precision += r.Precision
				sum.Recall += r.Recall
				sum.F1 += r.F1
			}
			n := float64(len(reports))
			fmt.Fprintf(cmd.OutOrStdout(), "mean: accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n",
				sum.Accuracy/n, sum.Precision/n, sum.Recall/n, sum.F1/n)
			return nil
		},
	}
	trainFlags(cmd, &cfg)
	cmd.Flags().IntVarP(&folds, "folds", "k", 5, "number of cross-validation folds")
	return cmd
}

func inspectCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print metadata for an artifact on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := ml.Load(dir)
			if err != nil {
				return fmt.Errorf("load artifact: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"dir":          dir,
				"dim":          artifact.Classifier.Dim(),
				"algorithm":    artifact.Meta.Algorithm,
				"accuracy":     artifact.Meta.Accuracy,
				"precision":    artifact.Meta.Precision,
				"recall":       artifact.Meta.Recall,
				"f1_score":     artifact.Meta.F1Score,
				"last_trained": artifact.Meta.LastTrained,
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "./model", "artifact directory")
	return cmd
}
