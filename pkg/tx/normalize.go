package tx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	errNoValue = errors.New("no value")

	// timestamps are stored as Unix nanoseconds
	minUnix = decimal.NewFromInt(math.MinInt64 / 1_000_000_000)
	maxUnix = decimal.NewFromInt(math.MaxInt64 / 1_000_000_000)
)

// Report summarizes a normalization run.
type Report struct {
	Rows      int `json:"rows" yaml:"rows"`
	Defaulted int `json:"defaulted" yaml:"defaulted"`
	Rejected  int `json:"rejected" yaml:"rejected"`
}

// Normalizer converts raw records into canonical transactions.
type Normalizer struct {
	rule *Rule
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithRule zeroes the USD value of rows for which the rule does not hold.
func WithRule(r *Rule) Option {
	return func(n *Normalizer) {
		n.rule = r
	}
}

// NewNormalizer returns a Normalizer. Without options it is permissive:
// negative amounts and prices are accepted as-is.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize normalizes raw with the permissive default Normalizer.
func Normalize(raw []*RawTransaction) ([]*Transaction, error) {
	list, _, err := NewNormalizer().Normalize(raw)
	return list, err
}

// Normalize parses every record. A missing wallet or timestamp fails the
// batch with a MalformedInputError; amount and price failures degrade the
// row to a zero USD value.
func (n *Normalizer) Normalize(raw []*RawTransaction) ([]*Transaction, *Report, error) {
	rep := &Report{}
	list := make([]*Transaction, 0, len(raw))

	for i, r := range raw {
		if r == nil || strings.TrimSpace(r.UserWallet) == "" {
			return nil, nil, &MalformedInputError{Index: i, TxHash: r.Hash(), Field: "userWallet", Err: errNoValue}
		}

		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, nil, &MalformedInputError{Index: i, TxHash: r.Hash(), Field: "timestamp", Err: err}
		}

		t := &Transaction{
			Wallet: r.UserWallet,
			Hash:   r.Hash(),
			Action: strings.ToLower(rawText(r.Action)),
			Time:   ts,
			Status: ValueOK,
		}

		v := parseValue(r.ActionData)
		if v.err != nil {
			t.Status = ValueDefaulted
			rep.Defaulted++
		} else {
			t.USDValue = v.usd
			if n.rule != nil {
				ok, ruleErr := n.rule.allows(t, v)
				if ruleErr != nil || !ok {
					t.USDValue = 0
					t.Status = ValueRejected
					rep.Rejected++
				}
			}
		}

		list = append(list, t)
	}

	rep.Rows = len(list)
	slog.Debug("transactions normalized",
		"rows", rep.Rows,
		"defaulted", rep.Defaulted,
		"rejected", rep.Rejected,
	)

	return list, rep, nil
}

// value is the parse result for the amount and price of one row.
type value struct {
	amount float64
	price  float64
	usd    float64
	err    error
}

func parseValue(raw json.RawMessage) value {
	var d ActionData
	if s := strings.TrimSpace(string(raw)); s != "" && s != "null" {
		if err := json.Unmarshal(raw, &d); err != nil {
			return value{err: fmt.Errorf("action data: %w", err)}
		}
	}

	amount, err := parseNumber(d.Amount)
	if err != nil {
		return value{err: fmt.Errorf("amount: %w", err)}
	}

	price, err := parseNumber(d.AssetPriceUSD)
	if err != nil {
		return value{err: fmt.Errorf("price: %w", err)}
	}

	a, _ := amount.Float64()
	p, _ := price.Float64()
	usd := a * p
	if math.IsNaN(usd) || math.IsInf(usd, 0) {
		return value{err: fmt.Errorf("usd value not finite: %v x %v", a, p)}
	}

	return value{amount: a, price: p, usd: usd}
}

// parseNumber accepts a JSON number or a JSON string holding a number.
func parseNumber(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, errNoValue
	}

	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, fmt.Errorf("decoding string: %w", err)
		}
		s = strings.TrimSpace(str)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %q: %w", s, err)
	}
	return d, nil
}

// parseTimestamp parses seconds since epoch, fractional seconds included.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	d, err := parseNumber(raw)
	if err != nil {
		return time.Time{}, err
	}

	if d.LessThan(minUnix) || d.GreaterThan(maxUnix) {
		return time.Time{}, fmt.Errorf("%s seconds out of range", d.String())
	}

	sec := d.IntPart()
	nsec := d.Sub(decimal.NewFromInt(sec)).Shift(9).IntPart()
	return time.Unix(sec, nsec).UTC(), nil
}
