// Package table turns per-wallet scores into a deterministic two column
// table and reads and writes it as CSV or JSON.
package table

import (
	"math"
	"sort"
)

const (
	ColumnWallet         = "userWallet"
	ColumnCreditScore    = "credit_score"
	ColumnPredictedScore = "predicted_score"

	minScore = 0
	maxScore = 1000
)

// Row is one wallet and its score.
type Row struct {
	Wallet string
	Score  float64
}

// Table holds rows sorted by wallet address.
type Table struct {
	Column    string
	Precision int
	Rows      []Row
}

// Option configures Build.
type Option func(*Table)

// WithColumn sets the score column name.
func WithColumn(name string) Option {
	return func(t *Table) {
		if name != "" {
			t.Column = name
		}
	}
}

// WithPrecision rounds scores to p decimals. Negative p keeps them as is.
func WithPrecision(p int) Option {
	return func(t *Table) {
		t.Precision = p
	}
}

// ColumnFor returns the score column used for the named scorer.
func ColumnFor(scorer string) string {
	if scorer == "model" {
		return ColumnPredictedScore
	}
	return ColumnCreditScore
}

// Build creates a table from scores. NaN scores become 0 and everything is
// clamped to [0, 1000]. The same input always yields the same rows.
func Build(scores map[string]float64, opts ...Option) *Table {
	t := &Table{Column: ColumnCreditScore, Precision: -1}
	for _, o := range opts {
		o(t)
	}

	t.Rows = make([]Row, 0, len(scores))
	for w, s := range scores {
		t.Rows = append(t.Rows, Row{Wallet: w, Score: t.normalize(s)})
	}

	sort.Slice(t.Rows, func(i, j int) bool {
		return t.Rows[i].Wallet < t.Rows[j].Wallet
	})

	return t
}

// Scores returns the table as a wallet to score map.
func (t *Table) Scores() map[string]float64 {
	m := make(map[string]float64, len(t.Rows))
	for _, r := range t.Rows {
		m[r.Wallet] = r.Score
	}
	return m
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) normalize(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	s = math.Max(minScore, math.Min(s, maxScore))
	if t.Precision >= 0 {
		p := math.Pow(10, float64(t.Precision))
		s = math.RoundToEven(s*p) / p
	}
	return s
}
