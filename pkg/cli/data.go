package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/walletscore/pkg/data"
	"github.com/mchmarny/walletscore/pkg/tx"
	"github.com/urfave/cli/v3"
)

const flagYes = "yes"

type importSummary struct {
	File     string     `json:"file" yaml:"file"`
	Inserted int        `json:"inserted" yaml:"inserted"`
	Report   *tx.Report `json:"report" yaml:"report"`
}

func importCmd(a *appConfig) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Normalize and store transactions",
		ArgsUsage: "<transactions.json>",
		Action:    a.cmdImport,
	}
}

func stateCmd(a *appConfig) *cli.Command {
	return &cli.Command{
		Name:   "state",
		Usage:  "Print stored row counts",
		Action: a.cmdState,
	}
}

func resetCmd(a *appConfig) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Delete all stored data and start fresh",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagYes,
				Usage: "Skip the confirmation prompt",
			},
		},
		Action: a.cmdReset,
	}
}

func (a *appConfig) cmdImport(ctx context.Context, cmd *cli.Command) error {
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

	rows, rep, err := tx.NewNormalizer(opts...).Normalize(raw)
	if err != nil {
		return err
	}

	store, err := a.getStore(ctx)
	if err != nil {
		return err
	}

	n, err := store.SaveTransactions(ctx, rows)
	if err != nil {
		return fmt.Errorf("saving transactions: %w", err)
	}

	slog.Info("transactions imported", "file", path, "rows", rep.Rows, "inserted", n)
	return a.encode(&importSummary{File: path, Inserted: n, Report: rep})
}

func (a *appConfig) cmdState(ctx context.Context, _ *cli.Command) error {
	store, err := a.getStore(ctx)
	if err != nil {
		return err
	}

	state, err := store.GetDataState(ctx)
	if err != nil {
		return fmt.Errorf("getting data state: %w", err)
	}

	return a.encode(state)
}

func (a *appConfig) cmdReset(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool(flagYes) {
		fmt.Fprintln(a.out, "This will permanently delete all stored transactions and scores")
		fmt.Fprint(a.out, "Are you sure? [y/N]: ")

		answer, err := bufio.NewReader(a.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(a.out, "Aborted.")
			return nil
		}
	}

	if data.IsPostgres(a.DSN) {
		store, err := a.getStore(ctx)
		if err != nil {
			return err
		}
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("resetting database: %w", err)
		}
		fmt.Fprintln(a.out, "Reset complete.")
		return nil
	}

	// close the DB before deleting the file
	if err := a.close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}

	if err := os.Remove(a.DSN); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting database: %w", err)
	}
	slog.Info("database deleted", "path", a.DSN)

	if err := data.Init(ctx, a.DSN); err != nil {
		return fmt.Errorf("re-initializing database: %w", err)
	}

	slog.Info("database re-initialized", "path", a.DSN)
	fmt.Fprintln(a.out, "Reset complete.")
	return nil
}
