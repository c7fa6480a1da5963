package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mchmarny/walletscore/pkg/config"
	"github.com/mchmarny/walletscore/pkg/data"
	"github.com/mchmarny/walletscore/pkg/logging"
	"github.com/mchmarny/walletscore/pkg/pipeline"
	"github.com/mchmarny/walletscore/pkg/score"
	"github.com/mchmarny/walletscore/pkg/tx"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "walletscore"

	formatJSON = "json"
	formatYAML = "yaml"

	configEnvVar = "WALLETSCORE_CONFIG"
	dbEnvVar     = "WALLETSCORE_DB"

	flagDebug  = "debug"
	flagDB     = "db"
	flagFormat = "format"
	flagConfig = "config"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdout, os.Stdin)
	if err := app.Run(ctx, os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

// appConfig is the state shared by all commands of one run.
type appConfig struct {
	DSN    string
	Debug  bool
	Format string
	Config *config.Config

	store *data.Store
	out   io.Writer
	in    io.Reader
}

func newApp(out io.Writer, in io.Reader) *cli.Command {
	a := &appConfig{out: out, in: in, Format: formatJSON}

	return &cli.Command{
		Name:            appName,
		Version:         fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:           "Credit score DeFi lending wallets from their transaction history",
		HideHelpCommand: true,
		Writer:          out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:    flagDB,
				Usage:   "Sqlite database file or postgres:// URL (default: $HOME/.walletscore/data.db)",
				Sources: cli.EnvVars(dbEnvVar),
			},
			&cli.StringFlag{
				Name:  flagFormat,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Usage:   "Path to the config file (default: $HOME/.walletscore/config.yaml)",
				Sources: cli.EnvVars(configEnvVar),
			},
		},
		Commands: []*cli.Command{
			scoreCmd(a),
			predictCmd(a),
			fitCmd(a),
			importCmd(a),
			stateCmd(a),
			resetCmd(a),
			serverCmd(a),
		},
		Before: a.before,
		After: func(_ context.Context, _ *cli.Command) error {
			return a.close()
		},
	}
}

func (a *appConfig) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	a.Debug = cmd.Bool(flagDebug)
	if a.Debug {
		logging.SetDefaultCLILogger("debug")
	}

	switch f := strings.ToLower(cmd.String(flagFormat)); f {
	case formatJSON:
		a.Format = formatJSON
	case formatYAML, "yml":
		a.Format = formatYAML
	default:
		return ctx, fmt.Errorf("unsupported output format: %s", f)
	}

	var err error
	if p := cmd.String(flagConfig); p != "" {
		a.Config, err = config.Load(p)
	} else {
		a.Config, err = config.ReadOrCreate(getHomeDir())
	}
	if err != nil {
		return ctx, fmt.Errorf("loading config: %w", err)
	}

	a.DSN = cmd.String(flagDB)
	if a.DSN == "" {
		a.DSN = filepath.Join(getHomeDir(), data.DataFileName)
	}

	return ctx, nil
}

// getStore opens the database on first use.
func (a *appConfig) getStore(ctx context.Context) (*data.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := data.Open(ctx, a.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.store = s
	return s, nil
}

func (a *appConfig) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// newPipeline builds a pipeline for s using the validation and worker
// settings of the config.
func (a *appConfig) newPipeline(s score.Scorer) (*pipeline.Pipeline, error) {
	opts, err := a.Config.NormalizerOptions()
	if err != nil {
		return nil, err
	}
	return pipeline.New(s,
		pipeline.WithNormalizer(tx.NewNormalizer(opts...)),
		pipeline.WithWorkers(a.Config.Workers),
	), nil
}

func (a *appConfig) encode(v any) error {
	if a.Format == formatYAML {
		e := yaml.NewEncoder(a.out)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(a.out)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func requireFileArg(cmd *cli.Command) (string, error) {
	p := strings.TrimSpace(cmd.Args().First())
	if p == "" {
		return "", errors.New("transaction file argument required")
	}
	return p, nil
}

func getHomeDir() string {
	dir, created, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}
	if created {
		slog.Debug("home dir created", "path", dir)
	}
	return dir
}
