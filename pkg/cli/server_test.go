package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/walletscore/pkg/config"
	"github.com/mchmarny/walletscore/pkg/feature"
	"github.com/mchmarny/walletscore/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleDeposit = `[{"userWallet": "0xa", "txHash": "h1", "timestamp": 1629178166,
	"action": "deposit", "actionData": {"amount": "100", "assetPriceUSD": "1"}}]`

func newTestServer(t *testing.T, withModel bool) *httptest.Server {
	t.Helper()
	a := &appConfig{Config: config.Default()}

	var scalerPath, modelPath string
	if withModel {
		dir := t.TempDir()
		scalerPath = filepath.Join(dir, "scaler.yaml")
		modelPath = filepath.Join(dir, "model.yaml")

		n := len(feature.Names)
		coef := make([]float64, n)
		coef[0] = 2
		require.NoError(t, score.SaveScaler(scalerPath, &score.MinMaxScaler{
			Features: feature.Names,
			DataMin:  make([]float64, n),
			DataMax:  make([]float64, n),
		}))
		require.NoError(t, score.SaveRegressor(modelPath, &score.LinearRegressor{
			Features:     feature.Names,
			Intercept:    100,
			Coefficients: coef,
		}))
	}

	h, err := a.newScoreHandler(scalerPath, modelPath)
	require.NoError(t, err)

	s := httptest.NewServer(makeRouter(h))
	t.Cleanup(s.Close)
	return s
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, false)

	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["model"])
}

func TestServer_Score(t *testing.T) {
	s := newTestServer(t, false)

	resp := post(t, s.URL+"/score", singleDeposit)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scores map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scores))
	assert.Equal(t, map[string]int{"0xa": 414}, scores)
}

func TestServer_BadRequest(t *testing.T) {
	s := newTestServer(t, false)

	resp := post(t, s.URL+"/score", `{"not": "an array"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, s.URL+"/score", `[{"userWallet": "0xa", "action": "deposit"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Get(s.URL + "/score")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_PredictWithoutModel(t *testing.T) {
	s := newTestServer(t, false)

	resp := post(t, s.URL+"/predict", singleDeposit)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// the heuristic path is unaffected
	resp = post(t, s.URL+"/score", singleDeposit)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Predict(t *testing.T) {
	s := newTestServer(t, true)

	resp := post(t, s.URL+"/predict", singleDeposit)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "0xa", rows[0]["userWallet"])
	assert.Equal(t, 102.0, rows[0]["predicted_score"])
}

func TestNewScoreHandler_PartialModel(t *testing.T) {
	a := &appConfig{Config: config.Default()}
	_, err := a.newScoreHandler("scaler.yaml", "")
	assert.Error(t, err)
}

func TestNewScoreHandler_MissingArtifacts(t *testing.T) {
	a := &appConfig{Config: config.Default()}
	dir := t.TempDir()

	h, err := a.newScoreHandler(filepath.Join(dir, "scaler.yaml"), filepath.Join(dir, "model.yaml"))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Nil(t, h.model)

	s := httptest.NewServer(makeRouter(h))
	t.Cleanup(s.Close)

	resp := post(t, s.URL+"/predict", singleDeposit)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = post(t, s.URL+"/score", singleDeposit)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
