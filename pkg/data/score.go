package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/walletscore/pkg/table"
)

const (
	upsertScoreSQL = `INSERT INTO wallet_score (
			wallet, scorer, score, run_id, scored_at
		)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(wallet, scorer) DO UPDATE SET
			score = excluded.score,
			run_id = excluded.run_id,
			scored_at = excluded.scored_at
	`

	selectScoresSQL = `SELECT wallet, scorer, score, run_id, scored_at
		FROM wallet_score
		WHERE scorer = ?
		ORDER BY wallet
	`
)

// Score is the latest stored score of a wallet for one scorer.
type Score struct {
	Wallet   string    `json:"wallet" yaml:"wallet"`
	Scorer   string    `json:"scorer" yaml:"scorer"`
	Value    float64   `json:"score" yaml:"score"`
	RunID    string    `json:"run_id" yaml:"runID"`
	ScoredAt time.Time `json:"scored_at" yaml:"scoredAt"`
}

// SaveScores replaces the stored score of every wallet in t for scorer.
// All rows share one new run id, which is returned.
func (s *Store) SaveScores(ctx context.Context, scorer string, t *table.Table) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	if scorer == "" || t == nil {
		return "", errors.New("scorer and score table are required")
	}

	runID := uuid.NewString()
	now := time.Now().UTC().UnixNano()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := dbTx.PrepareContext(ctx, s.q(upsertScoreSQL))
	if err != nil {
		rollbackTransaction(dbTx)
		return "", fmt.Errorf("failed to prepare score upsert statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range t.Rows {
		if _, err := stmt.ExecContext(ctx, r.Wallet, scorer, r.Score, runID, now); err != nil {
			rollbackTransaction(dbTx)
			return "", fmt.Errorf("error saving score[%d]: %s: %w", i, r.Wallet, err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("scores saved", "scorer", scorer, "wallets", t.Len(), "run", runID)
	return runID, nil
}

// GetScores returns the latest scores stored for scorer ordered by wallet.
func (s *Store) GetScores(ctx context.Context, scorer string) ([]*Score, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rs, err := s.db.QueryContext(ctx, s.q(selectScoresSQL), scorer)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rs.Close()

	list := make([]*Score, 0)
	for rs.Next() {
		var (
			sc Score
			at int64
		)
		if err := rs.Scan(&sc.Wallet, &sc.Scorer, &sc.Value, &sc.RunID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		sc.ScoredAt = time.Unix(0, at).UTC()
		list = append(list, &sc)
	}

	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scores: %w", err)
	}

	return list, nil
}
