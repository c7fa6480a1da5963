package score

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/mchmarny/walletscore/pkg/feature"
)

const (
	testFractionDefault = 0.2
	ridgeDefault        = 1e-6
	splitSeedDefault    = 42
	minFitRows          = 2
)

// SimulatedTarget is the demo label the reference model is trained on.
func SimulatedTarget(w *feature.Wallet) float64 {
	s := 300 +
		0.2*w.DepositTotal -
		0.3*float64(w.LiquidationCount) +
		100*w.RepayRatio -
		50*w.LoanToValue +
		0.5*float64(w.TxCount)
	return clamp(s)
}

// FitOptions controls Fit.
type FitOptions struct {
	TestFraction float64 `json:"test_fraction" yaml:"testFraction"`
	Ridge        float64 `json:"ridge" yaml:"ridge"`
	Seed         uint64  `json:"seed" yaml:"seed"`
}

// Evaluation holds hold-out metrics. MAPE is a percentage computed over
// non-zero targets only.
type Evaluation struct {
	Train int     `json:"train" yaml:"train"`
	Test  int     `json:"test" yaml:"test"`
	RMSE  float64 `json:"rmse" yaml:"rmse"`
	MAPE  float64 `json:"mape" yaml:"mape"`
}

// FitResult pairs fitted artifacts with their evaluation.
type FitResult struct {
	Scaler     *MinMaxScaler    `json:"-" yaml:"-"`
	Regressor  *LinearRegressor `json:"-" yaml:"-"`
	Evaluation *Evaluation      `json:"evaluation" yaml:"evaluation"`
}

// Fit scales the wallet features, splits them into train and test sets and
// fits a ridge regression on SimulatedTarget.
func Fit(wallets []*feature.Wallet, opts FitOptions) (*FitResult, error) {
	if len(wallets) < minFitRows {
		return nil, fmt.Errorf("at least %d wallets required to fit, got %d", minFitRows, len(wallets))
	}
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = testFractionDefault
	}
	if opts.Ridge <= 0 {
		opts.Ridge = ridgeDefault
	}
	if opts.Seed == 0 {
		opts.Seed = splitSeedDefault
	}

	x := make([][]float64, len(wallets))
	y := make([]float64, len(wallets))
	for i, w := range wallets {
		x[i] = w.Vector(feature.Names)
		y[i] = SimulatedTarget(w)
	}

	scaler := FitMinMax(x)
	xs, err := scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("scaling features: %w", err)
	}

	trainIdx, testIdx := Split(len(xs), opts.TestFraction, opts.Seed)

	reg, err := FitLinear(pick(xs, trainIdx), pick(y, trainIdx), opts.Ridge)
	if err != nil {
		return nil, fmt.Errorf("fitting regressor: %w", err)
	}

	testX, testY := pick(xs, testIdx), pick(y, testIdx)
	pred, err := reg.Predict(testX)
	if err != nil {
		return nil, fmt.Errorf("predicting test set: %w", err)
	}

	eval := Evaluate(testY, pred)
	eval.Train = len(trainIdx)
	eval.Test = len(testIdx)

	return &FitResult{Scaler: scaler, Regressor: reg, Evaluation: eval}, nil
}

// FitMinMax records the per-column minimum and maximum of x.
func FitMinMax(x [][]float64) *MinMaxScaler {
	s := &MinMaxScaler{
		Kind:         KindMinMax,
		Features:     slices.Clone(feature.Names),
		FeatureRange: [2]float64{0, 1},
	}
	if len(x) == 0 {
		return s
	}

	n := len(x[0])
	s.DataMin = slices.Clone(x[0])
	s.DataMax = slices.Clone(x[0])
	for _, row := range x[1:] {
		for j := 0; j < n && j < len(row); j++ {
			s.DataMin[j] = math.Min(s.DataMin[j], row[j])
			s.DataMax[j] = math.Max(s.DataMax[j], row[j])
		}
	}
	return s
}

// FitLinear solves the ridge normal equations (X'X + ridge*I) b = X'y with
// an unpenalized intercept.
func FitLinear(x [][]float64, y []float64, ridge float64) (*LinearRegressor, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("need matching non-empty x and y, got %d and %d", len(x), len(y))
	}

	// column 0 is the intercept
	p := len(x[0]) + 1
	a := make([][]float64, p)
	for i := range a {
		a[i] = make([]float64, p+1)
	}

	for r, row := range x {
		if len(row) != p-1 {
			return nil, &FeatureMismatchError{Msg: fmt.Sprintf("row %d has %d features, want %d", r, len(row), p-1)}
		}
		for i := 0; i < p; i++ {
			xi := 1.0
			if i > 0 {
				xi = row[i-1]
			}
			for j := 0; j < p; j++ {
				xj := 1.0
				if j > 0 {
					xj = row[j-1]
				}
				a[i][j] += xi * xj
			}
			a[i][p] += xi * y[r]
		}
	}
	for i := 1; i < p; i++ {
		a[i][i] += ridge
	}

	b, err := solve(a)
	if err != nil {
		return nil, err
	}

	return &LinearRegressor{
		Kind:         KindLinear,
		Features:     slices.Clone(feature.Names),
		Intercept:    b[0],
		Coefficients: b[1:],
	}, nil
}

// solve runs Gauss-Jordan elimination with partial pivoting on the
// augmented matrix a.
func solve(a [][]float64) ([]float64, error) {
	n := len(a)
	for c := 0; c < n; c++ {
		piv := c
		for r := c + 1; r < n; r++ {
			if math.Abs(a[r][c]) > math.Abs(a[piv][c]) {
				piv = r
			}
		}
		if math.Abs(a[piv][c]) < 1e-12 {
			return nil, errors.New("singular system, try a larger ridge")
		}
		a[c], a[piv] = a[piv], a[c]

		for r := 0; r < n; r++ {
			if r == c {
				continue
			}
			f := a[r][c] / a[c][c]
			for k := c; k <= n; k++ {
				a[r][k] -= f * a[c][k]
			}
		}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = a[i][n] / a[i][i]
	}
	return out, nil
}

// Split shuffles 0..n-1 with a seeded generator and returns train and test
// indexes. The test set gets at least one row when n > 1.
func Split(n int, testFraction float64, seed uint64) (train, test []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	k := int(math.Ceil(float64(n) * testFraction))
	if n > 1 {
		k = max(1, min(k, n-1))
	} else {
		k = 0
	}
	return idx[k:], idx[:k]
}

// Evaluate returns RMSE over all rows and MAPE over non-zero targets.
func Evaluate(y, pred []float64) *Evaluation {
	e := &Evaluation{}
	if len(y) == 0 || len(y) != len(pred) {
		return e
	}

	var se, ape float64
	nonZero := 0
	for i := range y {
		d := y[i] - pred[i]
		se += d * d
		if y[i] != 0 {
			ape += math.Abs(d / y[i])
			nonZero++
		}
	}

	e.RMSE = math.Sqrt(se / float64(len(y)))
	if nonZero > 0 {
		e.MAPE = ape / float64(nonZero) * 100
	}
	return e
}

func pick[T any](list []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = list[j]
	}
	return out
}
