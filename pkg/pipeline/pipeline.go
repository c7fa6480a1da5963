// Package pipeline wires normalization, aggregation, scoring and table
// building into a single batch run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mchmarny/walletscore/pkg/feature"
	"github.com/mchmarny/walletscore/pkg/score"
	"github.com/mchmarny/walletscore/pkg/table"
	"github.com/mchmarny/walletscore/pkg/tx"
)

// Stage names a pipeline step.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageAggregate Stage = "aggregate"
	StageScore     Stage = "score"
)

// StageError wraps the failure of one stage. The wrapped error carries the
// causing record or wallet.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the output of a single run.
type Result struct {
	Scorer       string                       `json:"scorer" yaml:"scorer"`
	Transactions []*tx.Transaction            `json:"-" yaml:"-"`
	Report       *tx.Report                   `json:"report" yaml:"report"`
	Wallets      []*feature.Wallet            `json:"-" yaml:"-"`
	Table        *table.Table                 `json:"-" yaml:"-"`
	Skipped      []*score.InvalidFeatureError `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Pipeline runs raw records through every stage with one scorer.
type Pipeline struct {
	scorer     score.Scorer
	normalizer *tx.Normalizer
	workers    int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNormalizer replaces the permissive default normalizer.
func WithNormalizer(n *tx.Normalizer) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.normalizer = n
		}
	}
}

// WithWorkers bounds scoring concurrency. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// New returns a pipeline scoring with s.
func New(s score.Scorer, opts ...Option) *Pipeline {
	p := &Pipeline{
		scorer:     s,
		normalizer: tx.NewNormalizer(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run normalizes raw, aggregates per wallet, scores and builds the table.
func (p *Pipeline) Run(ctx context.Context, raw []*tx.RawTransaction) (*Result, error) {
	rows, rep, err := p.normalizer.Normalize(raw)
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Err: err}
	}

	res, err := p.RunTransactions(ctx, rows)
	if err != nil {
		return nil, err
	}
	res.Report = rep
	return res, nil
}

// RunTransactions scores already normalized rows, e.g. ones read back from
// the store.
func (p *Pipeline) RunTransactions(ctx context.Context, rows []*tx.Transaction) (*Result, error) {
	if p.scorer == nil {
		return nil, &StageError{Stage: StageScore, Err: errors.New("scorer required")}
	}

	for i, t := range rows {
		if t == nil || strings.TrimSpace(t.Wallet) == "" {
			return nil, &StageError{Stage: StageAggregate, Err: fmt.Errorf("row %d has no wallet", i)}
		}
	}

	wallets := feature.Sorted(feature.Aggregate(rows))

	br, err := score.Batch(ctx, wallets, p.scorer, p.workers)
	if err != nil {
		return nil, &StageError{Stage: StageScore, Err: err}
	}

	for _, s := range br.Skipped {
		slog.Info("wallet skipped", "wallet", s.Wallet, "field", s.Field, "reason", s.Reason)
	}

	tbl := table.Build(br.Scores,
		table.WithColumn(table.ColumnFor(p.scorer.Name())),
		table.WithPrecision(p.scorer.Precision()),
	)

	slog.Debug("pipeline complete",
		"scorer", p.scorer.Name(),
		"rows", len(rows),
		"wallets", len(wallets),
		"scored", tbl.Len(),
	)

	return &Result{
		Scorer:       p.scorer.Name(),
		Transactions: rows,
		Report:       report(rows),
		Wallets:      wallets,
		Table:        tbl,
		Skipped:      br.Skipped,
	}, nil
}

func report(rows []*tx.Transaction) *tx.Report {
	rep := &tx.Report{Rows: len(rows)}
	for _, t := range rows {
		switch t.Status {
		case tx.ValueDefaulted:
			rep.Defaulted++
		case tx.ValueRejected:
			rep.Rejected++
		}
	}
	return rep
}
