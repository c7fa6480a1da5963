// Package feature reduces normalized transactions into one fixed-width
// behavioral feature vector per wallet.
package feature

import (
	"math"
	"sort"
	"time"
)

const (
	NameTxCount          = "tx_count"
	NameTotalUSD         = "total_usd"
	NameUniqueActions    = "unique_actions"
	NameDepositTotal     = "deposit_total"
	NameBorrowTotal      = "borrow_total"
	NameRepayTotal       = "repay_total"
	NameLiquidationCount = "liquidation_count"
	NameDaysActive       = "days_active"
	NameLoanToValue      = "loan_to_value"
	NameRepayRatio       = "repay_ratio"
)

// Names is the ordered feature list models are fitted on. Order matters.
var Names = []string{
	NameTxCount,
	NameTotalUSD,
	NameUniqueActions,
	NameDepositTotal,
	NameBorrowTotal,
	NameRepayTotal,
	NameLiquidationCount,
	NameDaysActive,
	NameLoanToValue,
	NameRepayRatio,
}

// Wallet is the feature vector of a single wallet address.
type Wallet struct {
	Address          string    `json:"userWallet" yaml:"userWallet"`
	TxCount          int       `json:"tx_count" yaml:"txCount"`
	TotalUSD         float64   `json:"total_usd" yaml:"totalUSD"`
	UniqueActions    int       `json:"unique_actions" yaml:"uniqueActions"`
	DepositTotal     float64   `json:"deposit_total" yaml:"depositTotal"`
	BorrowTotal      float64   `json:"borrow_total" yaml:"borrowTotal"`
	RepayTotal       float64   `json:"repay_total" yaml:"repayTotal"`
	LiquidationCount int       `json:"liquidation_count" yaml:"liquidationCount"`
	FirstTx          time.Time `json:"first_tx" yaml:"firstTx"`
	LastTx           time.Time `json:"last_tx" yaml:"lastTx"`
	DaysActive       int       `json:"days_active" yaml:"daysActive"`
	LoanToValue      float64   `json:"loan_to_value" yaml:"loanToValue"`
	RepayRatio       float64   `json:"repay_ratio" yaml:"repayRatio"`
}

// Values returns the numeric features keyed by name.
func (w *Wallet) Values() map[string]float64 {
	return map[string]float64{
		NameTxCount:          float64(w.TxCount),
		NameTotalUSD:         w.TotalUSD,
		NameUniqueActions:    float64(w.UniqueActions),
		NameDepositTotal:     w.DepositTotal,
		NameBorrowTotal:      w.BorrowTotal,
		NameRepayTotal:       w.RepayTotal,
		NameLiquidationCount: float64(w.LiquidationCount),
		NameDaysActive:       float64(w.DaysActive),
		NameLoanToValue:      w.LoanToValue,
		NameRepayRatio:       w.RepayRatio,
	}
}

// Vector projects the wallet onto names. Unknown names and non-finite
// values are filled with 0.
func (w *Wallet) Vector(names []string) []float64 {
	vals := w.Values()
	out := make([]float64, len(names))
	for i, n := range names {
		v := vals[n]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[i] = v
	}
	return out
}

// Sorted returns the wallets ordered by address.
func Sorted(m map[string]*Wallet) []*Wallet {
	list := make([]*Wallet, 0, len(m))
	for _, w := range m {
		list = append(list, w)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Address < list[j].Address
	})
	return list
}
