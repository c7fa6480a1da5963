package score

import (
	"errors"
	"math"
	"testing"

	"github.com/mchmarny/walletscore/pkg/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleDeposit() *feature.Wallet {
	return &feature.Wallet{
		Address:       "0xa",
		TxCount:       1,
		TotalUSD:      100,
		UniqueActions: 1,
		DepositTotal:  100,
		DaysActive:    1,
	}
}

func TestScoreHeuristic_SingleDeposit(t *testing.T) {
	s, err := ScoreHeuristic(singleDeposit())
	require.NoError(t, err)
	assert.Equal(t, 414, s)
}

func TestScoreHeuristic_Liquidations(t *testing.T) {
	v := &feature.Wallet{Address: "0xl", TxCount: 3, UniqueActions: 1, LiquidationCount: 3, DaysActive: 1}
	s, err := ScoreHeuristic(v)
	require.NoError(t, err)
	// 400 + 6 + 10 + 1 - 150
	assert.Equal(t, 267, s)

	v.LiquidationCount = 10
	v.TxCount = 10
	s, err = ScoreHeuristic(v)
	require.NoError(t, err)
	assert.Equal(t, MinScore, s)
}

func TestScoreHeuristic_Caps(t *testing.T) {
	v := &feature.Wallet{
		Address:       "0xbig",
		TxCount:       10_000,
		TotalUSD:      1e9,
		UniqueActions: 4,
		DepositTotal:  1e9,
		RepayRatio:    10,
		DaysActive:    5_000,
	}
	s, err := ScoreHeuristic(v)
	require.NoError(t, err)
	// 400 + 200 + 150 + 100 + 40 + 100
	assert.Equal(t, 990, s)

	v.UniqueActions = 100
	s, err = ScoreHeuristic(v)
	require.NoError(t, err)
	assert.Equal(t, MaxScore, s)
}

func TestScoreHeuristic_LeveragePenalty(t *testing.T) {
	v := singleDeposit()
	v.LoanToValue = 2
	s, err := ScoreHeuristic(v)
	require.NoError(t, err)
	assert.Equal(t, 314, s)
}

func TestScoreHeuristic_Invalid(t *testing.T) {
	tests := map[string]struct {
		v     *feature.Wallet
		field string
	}{
		"nil":       {v: nil, field: "wallet"},
		"zero days": {v: &feature.Wallet{Address: "0x1", TxCount: 1}, field: feature.NameDaysActive},
		"nan ratio": {v: &feature.Wallet{Address: "0x1", TxCount: 1, DaysActive: 1, RepayRatio: math.NaN()}, field: feature.NameRepayRatio},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ScoreHeuristic(tc.v)
			require.Error(t, err)
			var ife *InvalidFeatureError
			require.True(t, errors.As(err, &ife))
			assert.Equal(t, tc.field, ife.Field)
		})
	}
}

func TestHeuristic_CustomWeights(t *testing.T) {
	w := DefaultWeights()
	w.Base = 0
	w.DepositDivisor = 0

	h := NewHeuristic(w)
	assert.Equal(t, "heuristic", h.Name())
	assert.Equal(t, 0, h.Precision())

	s, err := h.Score(singleDeposit())
	require.NoError(t, err)
	assert.Equal(t, 14.0, s)
}

func TestScoreHeuristic_InfiniteTotals(t *testing.T) {
	v := singleDeposit()
	v.DepositTotal = math.Inf(-1)
	v.LoanToValue = math.Inf(-1)
	_, err := ScoreHeuristic(v)
	var ife *InvalidFeatureError
	require.ErrorAs(t, err, &ife)
	assert.Equal(t, "score", ife.Field)
}
