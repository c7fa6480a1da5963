package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mchmarny/walletscore/pkg/feature"
	"github.com/mchmarny/walletscore/pkg/score"
	"github.com/mchmarny/walletscore/pkg/table"
	"github.com/mchmarny/walletscore/pkg/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batch = `[
  {"userWallet": "0xb", "txHash": "h1", "timestamp": 1629178166, "action": "deposit",
   "actionData": {"amount": "100", "assetPriceUSD": "1"}},
  {"userWallet": "0xa", "txHash": "h2", "timestamp": 1629178166, "action": "deposit",
   "actionData": {"amount": "abc", "assetPriceUSD": "1"}},
  {"userWallet": "0xc", "txHash": "h3", "timestamp": 1629178166, "action": "liquidationcall",
   "actionData": {}},
  {"userWallet": "0xc", "txHash": "h4", "timestamp": 1629181766, "action": "liquidationcall",
   "actionData": {}},
  {"userWallet": "0xc", "txHash": "h5", "timestamp": 1629185366, "action": "liquidationcall",
   "actionData": {}}
]`

func decode(t *testing.T, s string) []*tx.RawTransaction {
	raw, err := tx.Decode(strings.NewReader(s))
	require.NoError(t, err)
	return raw
}

func TestRun_Heuristic(t *testing.T) {
	p := New(score.NewHeuristic(score.DefaultWeights()), WithWorkers(2))
	res, err := p.Run(context.Background(), decode(t, batch))
	require.NoError(t, err)

	assert.Equal(t, "heuristic", res.Scorer)
	assert.Equal(t, 5, res.Report.Rows)
	assert.Equal(t, 4, res.Report.Defaulted)
	assert.Len(t, res.Wallets, 3)
	assert.Empty(t, res.Skipped)

	require.NotNil(t, res.Table)
	assert.Equal(t, table.ColumnCreditScore, res.Table.Column)
	assert.Equal(t, []table.Row{
		{Wallet: "0xa", Score: 413},
		{Wallet: "0xb", Score: 414},
		{Wallet: "0xc", Score: 267},
	}, res.Table.Rows)
}

func TestRun_Model(t *testing.T) {
	n := len(feature.Names)
	scaler := &score.MinMaxScaler{DataMin: make([]float64, n), DataMax: make([]float64, n)}
	coef := make([]float64, n)
	coef[0] = 1.5
	m, err := score.NewModel(scaler, &score.LinearRegressor{Intercept: 10, Coefficients: coef})
	require.NoError(t, err)

	res, err := New(m).Run(context.Background(), decode(t, batch))
	require.NoError(t, err)
	assert.Equal(t, table.ColumnPredictedScore, res.Table.Column)
	assert.Equal(t, map[string]float64{"0xa": 11.5, "0xb": 11.5, "0xc": 14.5}, res.Table.Scores())
}

func TestRun_Malformed(t *testing.T) {
	in := `[{"userWallet": "0xa", "txHash": "h1", "action": "deposit", "actionData": {}}]`
	_, err := New(score.NewHeuristic(score.DefaultWeights())).Run(context.Background(), decode(t, in))
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageNormalize, se.Stage)

	var me *tx.MalformedInputError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "h1", me.TxHash)
}

func TestRun_RejectRule(t *testing.T) {
	rule, err := tx.NewRule(tx.NonNegativeRule)
	require.NoError(t, err)

	in := `[{"userWallet": "0xa", "txHash": "h1", "timestamp": 1, "action": "deposit",
	  "actionData": {"amount": -100, "assetPriceUSD": 1}}]`
	p := New(score.NewHeuristic(score.DefaultWeights()), WithNormalizer(tx.NewNormalizer(tx.WithRule(rule))))
	res, err := p.Run(context.Background(), decode(t, in))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Rejected)
	assert.Equal(t, 0.0, res.Wallets[0].DepositTotal)
}

type skippingScorer struct{}

func (skippingScorer) Name() string   { return "heuristic" }
func (skippingScorer) Precision() int { return 0 }
func (skippingScorer) Score(v *feature.Wallet) (float64, error) {
	if v.Address == "0xc" {
		return 0, &score.InvalidFeatureError{Wallet: v.Address, Field: feature.NameLoanToValue, Reason: "not a number"}
	}
	return 1, nil
}

func TestRun_SkipsInvalidWallets(t *testing.T) {
	res, err := New(skippingScorer{}).Run(context.Background(), decode(t, batch))
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "0xc", res.Skipped[0].Wallet)
	assert.Equal(t, 2, res.Table.Len())
}

type brokenScorer struct{}

func (brokenScorer) Name() string   { return "model" }
func (brokenScorer) Precision() int { return 2 }
func (brokenScorer) Score(*feature.Wallet) (float64, error) {
	return 0, &score.FeatureMismatchError{Msg: "boom"}
}

func TestRun_ScoreStage(t *testing.T) {
	_, err := New(brokenScorer{}).Run(context.Background(), decode(t, batch))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageScore, se.Stage)

	var fme *score.FeatureMismatchError
	assert.True(t, errors.As(err, &fme))

	_, err = New(nil).Run(context.Background(), decode(t, batch))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageScore, se.Stage)
}

func TestRunTransactions(t *testing.T) {
	p := New(score.NewHeuristic(score.DefaultWeights()))

	res, err := p.RunTransactions(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.Len())

	_, err = p.RunTransactions(context.Background(), []*tx.Transaction{{Action: tx.ActionDeposit}})
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageAggregate, se.Stage)
}

func repeatedBatch(wallets int) string {
	actions := []string{"deposit", "borrow", "repay", "redeemunderlying", "liquidationcall"}
	var b strings.Builder
	b.WriteString("[")
	for i := range wallets * 5 {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"userWallet": "0x%02d", "txHash": "h%d", "timestamp": %d, "action": %q,
			"actionData": {"amount": "%d.37", "assetPriceUSD": "0.%d1"}}`,
			i%wallets, i, 1629178166+i*3600, actions[i%len(actions)], i*7%1000, i%9)
	}
	b.WriteString("]")
	return b.String()
}

func TestRun_Repeatable(t *testing.T) {
	n := len(feature.Names)
	dataMax := make([]float64, n)
	coef := make([]float64, n)
	for i := range n {
		dataMax[i] = 1000
		coef[i] = float64(i+1) * 3.3
	}
	m, err := score.NewModel(
		&score.MinMaxScaler{DataMin: make([]float64, n), DataMax: dataMax},
		&score.LinearRegressor{Intercept: 7, Coefficients: coef},
	)
	require.NoError(t, err)

	scorers := []score.Scorer{score.NewHeuristic(score.DefaultWeights()), m}
	in := repeatedBatch(40)

	for _, s := range scorers {
		t.Run(s.Name(), func(t *testing.T) {
			p := New(s, WithWorkers(4))

			first, err := p.Run(context.Background(), decode(t, in))
			require.NoError(t, err)
			require.Len(t, first.Table.Rows, 40)

			second, err := p.Run(context.Background(), decode(t, in))
			require.NoError(t, err)
			assert.Equal(t, first.Table.Rows, second.Table.Rows)
			assert.Equal(t, first.Skipped, second.Skipped)
		})
	}
}
