package score

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mchmarny/walletscore/pkg/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_Heuristic(t *testing.T) {
	wallets := make([]*feature.Wallet, 0, 50)
	for i := range 50 {
		w := singleDeposit()
		w.Address = fmt.Sprintf("0x%02d", i)
		wallets = append(wallets, w)
	}
	wallets = append(wallets, &feature.Wallet{Address: "0xbad"})

	res, err := Batch(context.Background(), wallets, NewHeuristic(DefaultWeights()), 4)
	require.NoError(t, err)
	require.Len(t, res.Scores, 50)
	for _, s := range res.Scores {
		assert.Equal(t, 414.0, s)
	}
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "0xbad", res.Skipped[0].Wallet)
}

func TestBatch_Empty(t *testing.T) {
	res, err := Batch(context.Background(), nil, NewHeuristic(DefaultWeights()), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Scores)
	assert.Empty(t, res.Skipped)
}

type failingScorer struct{}

func (failingScorer) Name() string   { return "failing" }
func (failingScorer) Precision() int { return 0 }
func (failingScorer) Score(*feature.Wallet) (float64, error) {
	return 0, errors.New("boom")
}

func TestBatch_Errors(t *testing.T) {
	wallets := []*feature.Wallet{singleDeposit()}

	_, err := Batch(context.Background(), wallets, failingScorer{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = Batch(context.Background(), wallets, nil, 1)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Batch(ctx, wallets, NewHeuristic(DefaultWeights()), 1)
	require.ErrorIs(t, err, context.Canceled)
}
