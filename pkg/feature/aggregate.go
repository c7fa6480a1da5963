package feature

import (
	"log/slog"
	"time"

	"github.com/mchmarny/walletscore/pkg/tx"
)

const day = 24 * time.Hour

// accumulator collects the running reductions of one wallet.
type accumulator struct {
	w       *Wallet
	actions map[string]struct{}
}

func (a *accumulator) add(t *tx.Transaction) {
	w := a.w
	w.TxCount++
	w.TotalUSD += t.USDValue

	if t.Action != "" {
		a.actions[t.Action] = struct{}{}
	}

	switch t.Action {
	case tx.ActionDeposit:
		w.DepositTotal += t.USDValue
	case tx.ActionBorrow:
		w.BorrowTotal += t.USDValue
	case tx.ActionRepay:
		w.RepayTotal += t.USDValue
	case tx.ActionLiquidation:
		w.LiquidationCount++
	}

	if w.TxCount == 1 || t.Time.Before(w.FirstTx) {
		w.FirstTx = t.Time
	}
	if w.TxCount == 1 || t.Time.After(w.LastTx) {
		w.LastTx = t.Time
	}
}

func (a *accumulator) finish() *Wallet {
	w := a.w
	w.UniqueActions = len(a.actions)
	w.DaysActive = int(w.LastTx.Sub(w.FirstTx)/day) + 1
	if w.DaysActive < 1 {
		w.DaysActive = 1
	}
	w.LoanToValue = w.BorrowTotal / (w.DepositTotal + 1)
	w.RepayRatio = w.RepayTotal / (w.BorrowTotal + 1)
	return w
}

// Aggregate groups rows by wallet and reduces each group in a single pass.
func Aggregate(rows []*tx.Transaction) map[string]*Wallet {
	accs := make(map[string]*accumulator)

	for _, t := range rows {
		if t == nil {
			continue
		}
		a, ok := accs[t.Wallet]
		if !ok {
			a = &accumulator{
				w:       &Wallet{Address: t.Wallet},
				actions: make(map[string]struct{}),
			}
			accs[t.Wallet] = a
		}
		a.add(t)
	}

	out := make(map[string]*Wallet, len(accs))
	for k, a := range accs {
		out[k] = a.finish()
	}

	slog.Debug("wallet features aggregated", "rows", len(rows), "wallets", len(out))
	return out
}
