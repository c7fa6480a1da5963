package table

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() map[string]float64 {
	return map[string]float64{
		"0xc": 414,
		"0xa": math.NaN(),
		"0xb": 1200,
		"0xd": -5,
	}
}

func TestBuild(t *testing.T) {
	tbl := Build(sample())
	assert.Equal(t, ColumnCreditScore, tbl.Column)
	assert.Equal(t, []Row{
		{Wallet: "0xa", Score: 0},
		{Wallet: "0xb", Score: 1000},
		{Wallet: "0xc", Score: 414},
		{Wallet: "0xd", Score: 0},
	}, tbl.Rows)
	assert.Equal(t, 4, tbl.Len())

	again := Build(sample())
	assert.Equal(t, tbl.Rows, again.Rows)
}

func TestBuild_Precision(t *testing.T) {
	tbl := Build(map[string]float64{"0xa": 12.3456}, WithColumn(ColumnPredictedScore), WithPrecision(2))
	assert.Equal(t, ColumnPredictedScore, tbl.Column)
	assert.Equal(t, 12.35, tbl.Rows[0].Score)
}

func TestBuild_Empty(t *testing.T) {
	tbl := Build(nil)
	assert.Empty(t, tbl.Rows)

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteJSON(&buf))
	assert.Equal(t, "[]\n", buf.String())
}

func TestColumnFor(t *testing.T) {
	assert.Equal(t, ColumnPredictedScore, ColumnFor("model"))
	assert.Equal(t, ColumnCreditScore, ColumnFor("heuristic"))
}

func TestCSV_RoundTrip(t *testing.T) {
	tbl := Build(map[string]float64{"0xb": 334.5, "0xa": 12}, WithColumn(ColumnPredictedScore))

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))
	assert.Equal(t, "userWallet,predicted_score\n0xa,12\n0xb,334.5\n", buf.String())

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl.Column, got.Column)
	assert.Equal(t, tbl.Rows, got.Rows)
}

func TestReadCSV_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":     "",
		"header":    "wallet,score\n0xa,1\n",
		"score":     "userWallet,credit_score\n0xa,abc\n",
		"row width": "userWallet,credit_score\n0xa\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	tbl := Build(sample())

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteJSON(&buf))

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	require.Len(t, raw, 4)
	assert.Equal(t, "0xa", raw[0][ColumnWallet])

	got, err := ReadJSON(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, tbl.Column, got.Column)
	assert.Equal(t, tbl.Rows, got.Rows)
	assert.Equal(t, tbl.Scores(), got.Scores())
}

func TestJSON_EscapedWallet(t *testing.T) {
	tbl := Build(map[string]float64{"0x\"a\u2028\x7f": 10, "<b>": 20}, WithColumn(ColumnPredictedScore))

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteJSON(&buf))
	require.True(t, json.Valid(buf.Bytes()))

	got, err := ReadJSON(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, tbl.Rows, got.Rows)
}

func TestReadJSON_Invalid(t *testing.T) {
	for _, in := range []string{`{`, `[{"credit_score": 1}]`, `[{"userWallet": "0xa", "a": 1, "b": 2}]`} {
		_, err := ReadJSON(strings.NewReader(in))
		assert.Error(t, err, in)
	}
}

func TestWriteScoreMap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Build(sample()).WriteScoreMap(&buf))

	var m map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, map[string]int{"0xa": 0, "0xb": 1000, "0xc": 414, "0xd": 0}, m)
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")

	heur := Build(map[string]float64{"0xa": 414})
	p := filepath.Join(dir, "wallet_scores.json")
	require.NoError(t, heur.WriteFile(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0xa": 414}`, string(b))

	model := Build(map[string]float64{"0xa": 1.5}, WithColumn(ColumnPredictedScore))
	p = filepath.Join(dir, "wallet_scores.csv")
	require.NoError(t, model.WriteFile(p))
	b, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "userWallet,predicted_score\n0xa,1.5\n", string(b))

	p = filepath.Join(dir, "predicted.json")
	require.NoError(t, model.WriteFile(p))
	b, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"userWallet": "0xa", "predicted_score": 1.5}]`, string(b))
}
