package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/mchmarny/walletscore/pkg/feature"
	"golang.org/x/sync/errgroup"
)

// Scorer maps a wallet feature vector to a bounded score.
type Scorer interface {
	// Name identifies the scorer in logs and stored results.
	Name() string
	// Precision is the number of decimals the scores are rounded to.
	Precision() int
	Score(v *feature.Wallet) (float64, error)
}

// BatchResult holds the scores of one batch plus the wallets that could not
// be scored.
type BatchResult struct {
	Scores  map[string]float64
	Skipped []*InvalidFeatureError
}

// Batch scores wallets in parallel with up to workers goroutines (defaults
// to GOMAXPROCS). Every goroutine writes only its own result slot.
// InvalidFeatureErrors skip the wallet; any other error fails the batch.
func Batch(ctx context.Context, wallets []*feature.Wallet, s Scorer, workers int) (*BatchResult, error) {
	if s == nil {
		return nil, errors.New("scorer required")
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	type slot struct {
		score   float64
		skipped *InvalidFeatureError
	}
	slots := make([]slot, len(wallets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, w := range wallets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			v, err := s.Score(w)
			if err != nil {
				var ife *InvalidFeatureError
				if errors.As(err, &ife) {
					slots[i].skipped = ife
					return nil
				}
				addr := ""
				if w != nil {
					addr = w.Address
				}
				return fmt.Errorf("scoring wallet %q: %w", addr, err)
			}
			slots[i].score = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &BatchResult{Scores: make(map[string]float64, len(wallets))}
	for i, w := range wallets {
		if slots[i].skipped != nil {
			res.Skipped = append(res.Skipped, slots[i].skipped)
			continue
		}
		res.Scores[w.Address] = slots[i].score
	}

	slog.Debug("batch scored",
		"scorer", s.Name(),
		"wallets", len(wallets),
		"scored", len(res.Scores),
		"skipped", len(res.Skipped),
	)

	return res, nil
}
