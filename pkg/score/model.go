package score

import (
	"fmt"
	"math"
	"slices"

	"github.com/mchmarny/walletscore/pkg/feature"
)

const modelPrecision = 2

// Scaler normalizes feature rows before they reach a Regressor.
type Scaler interface {
	Transform(x [][]float64) ([][]float64, error)
}

// Regressor predicts a raw score per feature row.
type Regressor interface {
	Predict(x [][]float64) ([]float64, error)
}

// Keyed is implemented by artifacts that know the ordered feature list they
// were fitted on.
type Keyed interface {
	FeatureNames() []string
}

// Model is an immutable handle pairing a fitted scaler with a regressor.
// It is safe for concurrent use as long as its parts are.
type Model struct {
	features  []string
	scaler    Scaler
	regressor Regressor
}

// NewModel pairs scaler and regressor. Both must be keyed to feature.Names
// when they report their feature list.
func NewModel(scaler Scaler, regressor Regressor) (*Model, error) {
	if scaler == nil || regressor == nil {
		return nil, &ModelUnavailableError{Path: "memory", Err: fmt.Errorf("scaler and regressor required")}
	}

	for _, a := range []any{scaler, regressor} {
		k, ok := a.(Keyed)
		if !ok {
			continue
		}
		if names := k.FeatureNames(); len(names) > 0 && !slices.Equal(names, feature.Names) {
			return nil, &FeatureMismatchError{
				Want: feature.Names,
				Got:  names,
				Msg:  fmt.Sprintf("%T fitted on a different feature list", a),
			}
		}
	}

	return &Model{
		features:  slices.Clone(feature.Names),
		scaler:    scaler,
		regressor: regressor,
	}, nil
}

// Name implements Scorer.
func (m *Model) Name() string {
	return "model"
}

// Precision implements Scorer.
func (m *Model) Precision() int {
	return modelPrecision
}

// Score implements Scorer.
func (m *Model) Score(v *feature.Wallet) (float64, error) {
	if v == nil {
		return 0, &InvalidFeatureError{Field: "wallet", Reason: "feature vector missing"}
	}
	out, err := m.predict([][]float64{v.Vector(m.features)})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// ScoreAll scores a batch with a single Transform and Predict call.
func (m *Model) ScoreAll(list []*feature.Wallet) (map[string]float64, error) {
	x := make([][]float64, 0, len(list))
	for _, v := range list {
		if v == nil {
			return nil, &InvalidFeatureError{Field: "wallet", Reason: "feature vector missing"}
		}
		x = append(x, v.Vector(m.features))
	}

	out, err := m.predict(x)
	if err != nil {
		return nil, err
	}

	res := make(map[string]float64, len(list))
	for i, v := range list {
		res[v.Address] = out[i]
	}
	return res, nil
}

func (m *Model) predict(x [][]float64) ([]float64, error) {
	return predict(x, m.scaler, m.regressor)
}

// ScoreModel scales v, runs the regressor and returns a clamped score
// rounded to two decimals.
func ScoreModel(v *feature.Wallet, scaler Scaler, regressor Regressor) (float64, error) {
	if v == nil {
		return 0, &InvalidFeatureError{Field: "wallet", Reason: "feature vector missing"}
	}
	if scaler == nil || regressor == nil {
		return 0, &ModelUnavailableError{Path: "memory", Err: fmt.Errorf("scaler and regressor required")}
	}
	out, err := predict([][]float64{v.Vector(feature.Names)}, scaler, regressor)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func predict(x [][]float64, scaler Scaler, regressor Regressor) ([]float64, error) {
	if len(x) == 0 {
		return []float64{}, nil
	}

	scaled, err := scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("scaling features: %w", err)
	}

	raw, err := regressor.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("predicting scores: %w", err)
	}

	if len(raw) != len(x) {
		return nil, &FeatureMismatchError{Msg: fmt.Sprintf("regressor returned %d predictions for %d rows", len(raw), len(x))}
	}

	out := make([]float64, len(raw))
	for i, p := range raw {
		if math.IsNaN(p) {
			p = 0
		}
		out[i] = toFixed(clamp(p), modelPrecision)
	}
	return out, nil
}

// toFixed rounds num to the given precision.
func toFixed(num float64, precision int) float64 {
	output := math.Pow(10, float64(precision))
	return math.RoundToEven(num*output) / output
}
