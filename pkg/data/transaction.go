package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/walletscore/pkg/tx"
)

const (
	insertTransactionSQL = `INSERT INTO wallet_tx (
			wallet, tx_hash, action, ts, usd_value, status
		)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet, tx_hash, action, ts) DO NOTHING
	`

	selectTransactionsSQL = `SELECT wallet, tx_hash, action, ts, usd_value, status
		FROM wallet_tx
		ORDER BY wallet, ts, tx_hash, action
	`

	selectWalletTransactionsSQL = `SELECT wallet, tx_hash, action, ts, usd_value, status
		FROM wallet_tx
		WHERE wallet = ?
		ORDER BY ts, tx_hash, action
	`
)

// SaveTransactions stores rows in a single transaction. Rows already stored
// are ignored. It returns the number of rows inserted.
func (s *Store) SaveTransactions(ctx context.Context, rows []*tx.Transaction) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	if len(rows) == 0 {
		return 0, nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := dbTx.PrepareContext(ctx, s.q(insertTransactionSQL))
	if err != nil {
		rollbackTransaction(dbTx)
		return 0, fmt.Errorf("failed to prepare transaction insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i, t := range rows {
		if t == nil {
			continue
		}
		res, err := stmt.ExecContext(ctx, t.Wallet, t.Hash, t.Action, t.Time.UnixNano(), t.USDValue, string(t.Status))
		if err != nil {
			slog.Error("failed to insert transaction",
				"index", i,
				"error", err,
				"wallet", t.Wallet,
				"hash", t.Hash,
			)
			rollbackTransaction(dbTx)
			return 0, fmt.Errorf("error inserting transaction[%d]: %s: %w", i, t.Hash, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err = dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("transactions saved", "rows", len(rows), "inserted", inserted)
	return inserted, nil
}

// GetTransactions returns stored rows ordered by wallet and time. A non
// empty wallet limits the result to that wallet.
func (s *Store) GetTransactions(ctx context.Context, wallet string) ([]*tx.Transaction, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	query, args := selectTransactionsSQL, []any{}
	if wallet != "" {
		query, args = selectWalletTransactionsSQL, []any{wallet}
	}

	rs, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rs.Close()

	list := make([]*tx.Transaction, 0)
	for rs.Next() {
		var (
			t      tx.Transaction
			ts     int64
			status string
		)
		if err := rs.Scan(&t.Wallet, &t.Hash, &t.Action, &ts, &t.USDValue, &status); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		t.Time = time.Unix(0, ts).UTC()
		t.Status = tx.ValueStatus(status)
		list = append(list, &t)
	}

	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return list, nil
}
