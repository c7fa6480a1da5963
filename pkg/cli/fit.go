package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mchmarny/walletscore/pkg/feature"
	"github.com/mchmarny/walletscore/pkg/score"
	"github.com/mchmarny/walletscore/pkg/tx"
	"github.com/urfave/cli/v3"
)

const (
	flagOutDir       = "out-dir"
	flagSeed         = "seed"
	flagTestFraction = "test-fraction"

	outDirDefault = "model"
	scalerFile    = "scaler.yaml"
	modelFile     = "model.yaml"
	dirMode       = 0700
)

type fitSummary struct {
	Wallets    int               `json:"wallets" yaml:"wallets"`
	Scaler     string            `json:"scaler" yaml:"scaler"`
	Model      string            `json:"model" yaml:"model"`
	Evaluation *score.Evaluation `json:"evaluation" yaml:"evaluation"`
}

func fitCmd(a *appConfig) *cli.Command {
	return &cli.Command{
		Name:      "fit",
		Usage:     "Fit a demo linear model on the simulated target",
		ArgsUsage: "<transactions.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagOutDir,
				Usage: "Directory for the scaler and model artifacts",
				Value: outDirDefault,
			},
			&cli.IntFlag{
				Name:  flagSeed,
				Usage: "Seed of the train/test split",
				Value: 42,
			},
			&cli.FloatFlag{
				Name:  flagTestFraction,
				Usage: "Share of wallets held out for evaluation",
				Value: 0.2,
			},
		},
		Action: a.cmdFit,
	}
}

func (a *appConfig) cmdFit(_ context.Context, cmd *cli.Command) error {
	path, err := requireFileArg(cmd)
	if err != nil {
		return err
	}

	raw, err := tx.LoadFile(path)
	if err != nil {
		return err
	}

	opts, err := a.Config.NormalizerOptions()
	if err != nil {
		return err
	}

	rows, _, err := tx.NewNormalizer(opts...).Normalize(raw)
	if err != nil {
		return err
	}

	wallets := feature.Sorted(feature.Aggregate(rows))
	res, err := score.Fit(wallets, score.FitOptions{
		TestFraction: cmd.Float(flagTestFraction),
		Seed:         uint64(cmd.Int(flagSeed)),
	})
	if err != nil {
		return err
	}

	dir := cmd.String(flagOutDir)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("creating artifact dir %s: %w", dir, err)
	}

	sum := &fitSummary{
		Wallets:    len(wallets),
		Scaler:     filepath.Join(dir, scalerFile),
		Model:      filepath.Join(dir, modelFile),
		Evaluation: res.Evaluation,
	}

	if err := score.SaveScaler(sum.Scaler, res.Scaler); err != nil {
		return err
	}
	if err := score.SaveRegressor(sum.Model, res.Regressor); err != nil {
		return err
	}

	return a.encode(sum)
}
