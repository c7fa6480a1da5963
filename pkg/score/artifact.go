package score

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	KindMinMax       = "minmax"
	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"

	fileMode = 0600
)

// MinMaxScaler maps every feature into FeatureRange using the minimum and
// maximum observed at fit time. Features with zero range are only shifted.
type MinMaxScaler struct {
	Kind         string     `json:"kind" yaml:"kind"`
	Features     []string   `json:"features" yaml:"features"`
	DataMin      []float64  `json:"data_min" yaml:"data_min"`
	DataMax      []float64  `json:"data_max" yaml:"data_max"`
	FeatureRange [2]float64 `json:"feature_range" yaml:"feature_range"`
}

// FeatureNames implements Keyed.
func (s *MinMaxScaler) FeatureNames() []string {
	return s.Features
}

// Transform implements Scaler.
func (s *MinMaxScaler) Transform(x [][]float64) ([][]float64, error) {
	n := len(s.DataMin)
	if n == 0 || len(s.DataMax) != n {
		return nil, &FeatureMismatchError{Msg: fmt.Sprintf("scaler has %d minimums and %d maximums", len(s.DataMin), len(s.DataMax))}
	}

	lo, hi := s.FeatureRange[0], s.FeatureRange[1]
	if lo == 0 && hi == 0 {
		hi = 1
	}

	scale := make([]float64, n)
	shift := make([]float64, n)
	for j := 0; j < n; j++ {
		r := s.DataMax[j] - s.DataMin[j]
		if r == 0 {
			r = 1
		}
		scale[j] = (hi - lo) / r
		shift[j] = lo - s.DataMin[j]*scale[j]
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != n {
			return nil, &FeatureMismatchError{Want: s.Features, Msg: fmt.Sprintf("row %d has %d features, scaler expects %d", i, len(row), n)}
		}
		scaled := make([]float64, n)
		for j, v := range row {
			scaled[j] = v*scale[j] + shift[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// LinearRegressor predicts intercept + coefficients . x.
type LinearRegressor struct {
	Kind         string    `json:"kind" yaml:"kind"`
	Features     []string  `json:"features" yaml:"features"`
	Intercept    float64   `json:"intercept" yaml:"intercept"`
	Coefficients []float64 `json:"coefficients" yaml:"coefficients"`
}

// FeatureNames implements Keyed.
func (l *LinearRegressor) FeatureNames() []string {
	return l.Features
}

// Predict implements Regressor.
func (l *LinearRegressor) Predict(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(l.Coefficients) {
			return nil, &FeatureMismatchError{Want: l.Features, Msg: fmt.Sprintf("row %d has %d features, regressor expects %d", i, len(row), len(l.Coefficients))}
		}
		p := l.Intercept
		for j, v := range row {
			p += l.Coefficients[j] * v
		}
		out[i] = p
	}
	return out, nil
}

// TreeNode is a node of a gradient boosted tree as dumped by XGBoost in
// JSON format. Leaf nodes carry Leaf, split nodes carry the rest.
type TreeNode struct {
	NodeID         int         `json:"nodeid" yaml:"nodeid"`
	Split          string      `json:"split,omitempty" yaml:"split,omitempty"`
	SplitCondition float64     `json:"split_condition,omitempty" yaml:"split_condition,omitempty"`
	Yes            int         `json:"yes,omitempty" yaml:"yes,omitempty"`
	No             int         `json:"no,omitempty" yaml:"no,omitempty"`
	Missing        int         `json:"missing,omitempty" yaml:"missing,omitempty"`
	Leaf           *float64    `json:"leaf,omitempty" yaml:"leaf,omitempty"`
	Children       []*TreeNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// TreeEnsemble sums the leaf values of every tree on top of BaseScore.
type TreeEnsemble struct {
	Kind      string      `json:"kind" yaml:"kind"`
	Features  []string    `json:"features" yaml:"features"`
	BaseScore float64     `json:"base_score" yaml:"base_score"`
	Trees     []*TreeNode `json:"trees" yaml:"trees"`
}

// FeatureNames implements Keyed.
func (t *TreeEnsemble) FeatureNames() []string {
	return t.Features
}

// Predict implements Regressor.
func (t *TreeEnsemble) Predict(x [][]float64) ([]float64, error) {
	index := make(map[string]int, len(t.Features))
	for i, n := range t.Features {
		index[n] = i
	}

	out := make([]float64, len(x))
	for i, row := range x {
		if len(t.Features) > 0 && len(row) != len(t.Features) {
			return nil, &FeatureMismatchError{Want: t.Features, Msg: fmt.Sprintf("row %d has %d features, regressor expects %d", i, len(row), len(t.Features))}
		}
		p := t.BaseScore
		for k, tree := range t.Trees {
			v, err := walk(tree, row, index)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", k, err)
			}
			p += v
		}
		out[i] = p
	}
	return out, nil
}

func walk(n *TreeNode, row []float64, index map[string]int) (float64, error) {
	for n != nil {
		if n.Leaf != nil {
			return *n.Leaf, nil
		}

		j, err := splitIndex(n.Split, index)
		if err != nil {
			return 0, err
		}
		if j >= len(row) {
			return 0, &FeatureMismatchError{Msg: fmt.Sprintf("split on feature %d, row has %d", j, len(row))}
		}

		next := n.No
		switch v := row[j]; {
		case math.IsNaN(v):
			next = n.Missing
		case v < n.SplitCondition:
			next = n.Yes
		}

		var child *TreeNode
		for _, c := range n.Children {
			if c.NodeID == next {
				child = c
				break
			}
		}
		if child == nil {
			return 0, fmt.Errorf("node %d references missing child %d", n.NodeID, next)
		}
		n = child
	}
	return 0, errors.New("nil tree")
}

// splitIndex resolves XGBoost split names: either f<i> or a feature name.
func splitIndex(split string, index map[string]int) (int, error) {
	if j, ok := index[split]; ok {
		return j, nil
	}
	if strings.HasPrefix(split, "f") {
		if j, err := strconv.Atoi(split[1:]); err == nil && j >= 0 {
			return j, nil
		}
	}
	return 0, &FeatureMismatchError{Msg: fmt.Sprintf("unknown split feature %q", split)}
}

// LoadModel loads a scaler and a regressor artifact and pairs them.
func LoadModel(scalerPath, regressorPath string) (*Model, error) {
	s, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}

	r, err := LoadRegressor(regressorPath)
	if err != nil {
		return nil, err
	}

	m, err := NewModel(s, r)
	if err != nil {
		return nil, err
	}

	slog.Debug("model loaded", "scaler", scalerPath, "regressor", regressorPath)
	return m, nil
}

// LoadScaler reads a scaler artifact (YAML or JSON).
func LoadScaler(path string) (*MinMaxScaler, error) {
	b, err := readArtifact(path)
	if err != nil {
		return nil, err
	}

	var s MinMaxScaler
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, &ModelUnavailableError{Path: path, Err: fmt.Errorf("decoding scaler: %w", err)}
	}

	if s.Kind != KindMinMax {
		return nil, &ModelUnavailableError{Path: path, Err: fmt.Errorf("unsupported scaler kind %q", s.Kind)}
	}

	if len(s.DataMin) == 0 || len(s.DataMin) != len(s.DataMax) {
		return nil, &ModelUnavailableError{Path: path, Err: errors.New("scaler minimums and maximums required with equal length")}
	}

	return &s, nil
}

// LoadRegressor reads a linear or tree ensemble regressor artifact.
func LoadRegressor(path string) (Regressor, error) {
	b, err := readArtifact(path)
	if err != nil {
		return nil, err
	}

	var head struct {
		Kind string `yaml:"kind"`
	}
	if err := yaml.Unmarshal(b, &head); err != nil {
		return nil, &ModelUnavailableError{Path: path, Err: fmt.Errorf("decoding regressor: %w", err)}
	}

	var r Regressor
	switch head.Kind {
	case KindLinear:
		r = &LinearRegressor{}
	case KindTreeEnsemble:
		r = &TreeEnsemble{}
	default:
		return nil, &ModelUnavailableError{Path: path, Err: fmt.Errorf("unsupported regressor kind %q", head.Kind)}
	}

	if err := yaml.Unmarshal(b, r); err != nil {
		return nil, &ModelUnavailableError{Path: path, Err: fmt.Errorf("decoding %s regressor: %w", head.Kind, err)}
	}

	return r, nil
}

// SaveScaler writes s as YAML.
func SaveScaler(path string, s *MinMaxScaler) error {
	if s == nil {
		return errors.New("scaler required")
	}
	s.Kind = KindMinMax
	return writeArtifact(path, s)
}

// SaveRegressor writes r as YAML.
func SaveRegressor(path string, r Regressor) error {
	switch v := r.(type) {
	case *LinearRegressor:
		v.Kind = KindLinear
	case *TreeEnsemble:
		v.Kind = KindTreeEnsemble
	default:
		return fmt.Errorf("unsupported regressor type %T", r)
	}
	return writeArtifact(path, r)
}

func readArtifact(path string) ([]byte, error) {
	if path == "" {
		return nil, &ModelUnavailableError{Path: path, Err: errors.New("artifact path required")}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelUnavailableError{Path: path, Err: err}
	}
	return b, nil
}

func writeArtifact(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}
	return nil
}
