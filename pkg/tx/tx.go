package tx

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	ActionDeposit     = "deposit"
	ActionBorrow      = "borrow"
	ActionRepay       = "repay"
	ActionLiquidation = "liquidationcall"
)

// RawTransaction is a single lending protocol ledger event as exported by the
// indexer. Everything but the wallet is kept raw so that a malformed value
// degrades its own row during normalization instead of failing the decode of
// the whole batch.
type RawTransaction struct {
	UserWallet string          `json:"userWallet"`
	TxHash     json.RawMessage `json:"txHash,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
	Action     json.RawMessage `json:"action,omitempty"`
	ActionData json.RawMessage `json:"actionData,omitempty"`
}

// Hash returns the transaction hash. Non-string values are returned as their
// JSON text.
func (r *RawTransaction) Hash() string {
	if r == nil {
		return ""
	}
	return rawText(r.TxHash)
}

// rawText decodes a JSON string, or returns any other non-null literal as is.
func rawText(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			return str
		}
	}
	return s
}

// ActionData holds the action specific token amount and USD unit price.
type ActionData struct {
	Amount        json.RawMessage `json:"amount,omitempty"`
	AssetPriceUSD json.RawMessage `json:"assetPriceUSD,omitempty"`
}

// ValueStatus records how the USD value of a row was derived.
type ValueStatus string

const (
	ValueOK        ValueStatus = "ok"
	ValueDefaulted ValueStatus = "defaulted"
	ValueRejected  ValueStatus = "rejected"
)

// Transaction is the canonical, typed form of a RawTransaction.
type Transaction struct {
	Wallet   string      `json:"wallet" yaml:"wallet"`
	Hash     string      `json:"hash" yaml:"hash"`
	Action   string      `json:"action" yaml:"action"`
	Time     time.Time   `json:"time" yaml:"time"`
	USDValue float64     `json:"usd_value" yaml:"usdValue"`
	Status   ValueStatus `json:"status" yaml:"status"`
}

// MalformedInputError is returned when a record lacks a field required to
// place it in the batch (wallet or timestamp). It fails the whole batch.
type MalformedInputError struct {
	Index  int
	TxHash string
	Field  string
	Err    error
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("malformed record %d (tx: %q): field %s", e.Index, e.TxHash, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}
