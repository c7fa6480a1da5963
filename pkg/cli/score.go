package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mchmarny/walletscore/pkg/pipeline"
	"github.com/mchmarny/walletscore/pkg/score"
	"github.com/mchmarny/walletscore/pkg/tx"
	"github.com/urfave/cli/v3"
)

const (
	flagOutput = "output"
	flagSave   = "save"
	flagFromDB = "from-db"
	flagScaler = "scaler"
	flagModel  = "model"

	scoreFileDefault   = "wallet_scores.json"
	predictFileDefault = "wallet_scores.csv"
)

type runSummary struct {
	Scorer  string     `json:"scorer" yaml:"scorer"`
	Input   string     `json:"input" yaml:"input"`
	Output  string     `json:"output" yaml:"output"`
	Wallets int        `json:"wallets" yaml:"wallets"`
	Skipped int        `json:"skipped" yaml:"skipped"`
	Report  *tx.Report `json:"report,omitempty" yaml:"report,omitempty"`
	RunID   string     `json:"run_id,omitempty" yaml:"runID,omitempty"`
}

func scoreCmd(a *appConfig) *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "Score wallets with the heuristic scorer",
		ArgsUsage: "<transactions.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagOutput,
				Usage: "Output file, .csv writes a table (default: <outputDir>/" + scoreFileDefault + ")",
			},
			&cli.BoolFlag{
				Name:  flagSave,
				Usage: "Store the scores as the latest per wallet",
			},
			&cli.BoolFlag{
				Name:  flagFromDB,
				Usage: "Score the imported transactions instead of a file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runScore(ctx, cmd, score.NewHeuristic(a.Config.Heuristic), scoreFileDefault)
		},
	}
}

func predictCmd(a *appConfig) *cli.Command {
	return &cli.Command{
		Name:      "predict",
		Usage:     "Score wallets with a fitted scaler and regressor",
		ArgsUsage: "<transactions.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagScaler,
				Usage:    "Path to the scaler artifact",
				Required: true,
			},
			&cli.StringFlag{
				Name:     flagModel,
				Usage:    "Path to the regressor artifact",
				Required: true,
			},
			&cli.StringFlag{
				Name:  flagOutput,
				Usage: "Output file (default: <outputDir>/" + predictFileDefault + ")",
			},
			&cli.BoolFlag{
				Name:  flagSave,
				Usage: "Store the scores as the latest per wallet",
			},
			&cli.BoolFlag{
				Name:  flagFromDB,
				Usage: "Score the imported transactions instead of a file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			m, err := score.LoadModel(cmd.String(flagScaler), cmd.String(flagModel))
			if err != nil {
				return err
			}
			return a.runScore(ctx, cmd, m, predictFileDefault)
		},
	}
}

func (a *appConfig) runScore(ctx context.Context, cmd *cli.Command, s score.Scorer, defaultFile string) error {
	p, err := a.newPipeline(s)
	if err != nil {
		return err
	}

	sum := &runSummary{Scorer: s.Name()}
	var res *pipeline.Result

	if cmd.Bool(flagFromDB) {
		store, err := a.getStore(ctx)
		if err != nil {
			return err
		}
		rows, err := store.GetTransactions(ctx, "")
		if err != nil {
			return fmt.Errorf("reading stored transactions: %w", err)
		}
		sum.Input = "db"
		if res, err = p.RunTransactions(ctx, rows); err != nil {
			return err
		}
	} else {
		path, err := requireFileArg(cmd)
		if err != nil {
			return err
		}
		raw, err := tx.LoadFile(path)
		if err != nil {
			return err
		}
		sum.Input = path
		if res, err = p.Run(ctx, raw); err != nil {
			return err
		}
	}

	sum.Output = cmd.String(flagOutput)
	if sum.Output == "" {
		sum.Output = filepath.Join(a.Config.OutputDir, defaultFile)
	}
	if err := res.Table.WriteFile(sum.Output); err != nil {
		return fmt.Errorf("writing scores: %w", err)
	}

	if cmd.Bool(flagSave) {
		store, err := a.getStore(ctx)
		if err != nil {
			return err
		}
		if sum.RunID, err = store.SaveScores(ctx, s.Name(), res.Table); err != nil {
			return fmt.Errorf("saving scores: %w", err)
		}
	}

	sum.Wallets = res.Table.Len()
	sum.Skipped = len(res.Skipped)
	sum.Report = res.Report

	slog.Info("wallets scored", "scorer", sum.Scorer, "wallets", sum.Wallets, "output", sum.Output)
	return a.encode(sum)
}
