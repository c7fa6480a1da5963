package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var stateQueries = map[string]string{
	"transactions": "SELECT COUNT(*) FROM wallet_tx",
	"wallets":      "SELECT COUNT(DISTINCT wallet) FROM wallet_tx",
	"defaulted":    "SELECT COUNT(*) FROM wallet_tx WHERE status = 'defaulted'",
	"rejected":     "SELECT COUNT(*) FROM wallet_tx WHERE status = 'rejected'",
	"scores":       "SELECT COUNT(*) FROM wallet_score",
	"runs":         "SELECT COUNT(DISTINCT run_id) FROM wallet_score",
}

var resetTables = []string{"wallet_score", "wallet_tx"}

// GetDataState returns row counts of the stored data.
func (s *Store) GetDataState(ctx context.Context) (map[string]int64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	state := make(map[string]int64, len(stateQueries))
	for k, v := range stateQueries {
		var count int64
		if err := s.db.QueryRowContext(ctx, v).Scan(&count); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				state[k] = 0
				continue
			}
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = count
	}

	return state, nil
}

// Reset deletes all stored transactions and scores. The schema is kept.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	for _, t := range resetTables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("error clearing %s: %w", t, err)
		}
	}
	return nil
}
