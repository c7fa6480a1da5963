package score

import (
	"math"

	"github.com/mchmarny/walletscore/pkg/feature"
)

const (
	MinScore = 0
	MaxScore = 1000
)

// Weights parameterizes the heuristic scorer. Every bonus is capped on its
// own before it is added to the base.
type Weights struct {
	Base               float64 `json:"base" yaml:"base"`
	DepositDivisor     float64 `json:"deposit_divisor" yaml:"depositDivisor"`
	DepositCap         float64 `json:"deposit_cap" yaml:"depositCap"`
	RepayMultiplier    float64 `json:"repay_multiplier" yaml:"repayMultiplier"`
	RepayCap           float64 `json:"repay_cap" yaml:"repayCap"`
	ActivityMultiplier float64 `json:"activity_multiplier" yaml:"activityMultiplier"`
	ActivityCap        float64 `json:"activity_cap" yaml:"activityCap"`
	DiversityPerAction float64 `json:"diversity_per_action" yaml:"diversityPerAction"`
	DiversityCap       float64 `json:"diversity_cap" yaml:"diversityCap"`
	LongevityPerDay    float64 `json:"longevity_per_day" yaml:"longevityPerDay"`
	LongevityCap       float64 `json:"longevity_cap" yaml:"longevityCap"`
	LiquidationPenalty float64 `json:"liquidation_penalty" yaml:"liquidationPenalty"`
	LeveragePenalty    float64 `json:"leverage_penalty" yaml:"leveragePenalty"`
}

// DefaultWeights returns the reference heuristic weights.
func DefaultWeights() Weights {
	return Weights{
		Base:               400,
		DepositDivisor:     100,
		DepositCap:         200,
		RepayMultiplier:    100,
		RepayCap:           150,
		ActivityMultiplier: 2,
		ActivityCap:        100,
		DiversityPerAction: 10,
		DiversityCap:       50,
		LongevityPerDay:    1,
		LongevityCap:       100,
		LiquidationPenalty: 50,
		LeveragePenalty:    50,
	}
}

// Heuristic scores wallets with a fixed weighted rule. It needs no model.
type Heuristic struct {
	w Weights
}

// NewHeuristic returns a heuristic scorer. A zero DepositDivisor is
// replaced by the default to keep the deposit term defined.
func NewHeuristic(w Weights) *Heuristic {
	if w.DepositDivisor == 0 {
		w.DepositDivisor = DefaultWeights().DepositDivisor
	}
	return &Heuristic{w: w}
}

// Name implements Scorer.
func (h *Heuristic) Name() string {
	return "heuristic"
}

// Precision implements Scorer.
func (h *Heuristic) Precision() int {
	return 0
}

// Score implements Scorer. The result is an integer in [0, 1000].
func (h *Heuristic) Score(v *feature.Wallet) (float64, error) {
	if err := validate(v); err != nil {
		return 0, err
	}

	w := h.w
	s := w.Base

	s += math.Min(v.DepositTotal/w.DepositDivisor, w.DepositCap)
	s += math.Min(v.RepayRatio*w.RepayMultiplier, w.RepayCap)
	s += math.Min(float64(v.TxCount)*w.ActivityMultiplier, w.ActivityCap)
	s += math.Min(float64(v.UniqueActions)*w.DiversityPerAction, w.DiversityCap)
	s += math.Min(float64(v.DaysActive)*w.LongevityPerDay, w.LongevityCap)

	s -= float64(v.LiquidationCount) * w.LiquidationPenalty
	s -= v.LoanToValue * w.LeveragePenalty

	if math.IsNaN(s) {
		return 0, &InvalidFeatureError{Wallet: v.Address, Field: "score", Reason: "terms do not sum to a number"}
	}

	return math.RoundToEven(clamp(s)), nil
}

// ScoreHeuristic scores v with the default weights.
func ScoreHeuristic(v *feature.Wallet) (int, error) {
	s, err := NewHeuristic(DefaultWeights()).Score(v)
	if err != nil {
		return 0, err
	}
	return int(s), nil
}

func validate(v *feature.Wallet) error {
	if v == nil {
		return &InvalidFeatureError{Field: "wallet", Reason: "feature vector missing"}
	}

	if v.DaysActive < 1 {
		return &InvalidFeatureError{Wallet: v.Address, Field: feature.NameDaysActive, Reason: "must be at least 1"}
	}

	vals := v.Values()
	for _, name := range feature.Names {
		if math.IsNaN(vals[name]) {
			return &InvalidFeatureError{Wallet: v.Address, Field: name, Reason: "not a number"}
		}
	}

	return nil
}

func clamp(s float64) float64 {
	return math.Max(MinScore, math.Min(s, MaxScore))
}
