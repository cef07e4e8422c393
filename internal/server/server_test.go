package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwx610/QuestMe-Dashboard/internal/analytics"
	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/store"
)

type fakeRepo struct {
	txs []model.Transaction
}

func (f *fakeRepo) UpsertBatch(_ context.Context, _ []model.Transaction) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) Query(_ context.Context, filter store.QueryFilter) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, tx := range f.txs {
		if filter.Network != "" && tx.Network != filter.Network {
			continue
		}
		if filter.Contract != "" && tx.Contract != filter.Contract {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Wallet != "" && tx.FromAddress != filter.Wallet {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

type fakeWatermarks struct {
	marks []model.Watermark
}

func (f *fakeWatermarks) Get(_ context.Context, _ model.Network, _ string) (int64, error) {
	return 0, nil
}

func (f *fakeWatermarks) Set(_ context.Context, _ model.Network, _ string, _ int64) error {
	return nil
}

func (f *fakeWatermarks) List(_ context.Context) ([]model.Watermark, error) {
	return f.marks, nil
}

func newTestServer(txs ...model.Transaction) *httptest.Server {
	return newTestServerWithWatermarks(nil, txs...)
}

func newTestServerWithWatermarks(marks []model.Watermark, txs ...model.Transaction) *httptest.Server {
	repo := &fakeRepo{txs: txs}
	srv := New(0, analytics.NewService(repo, nil), repo, &fakeWatermarks{marks: marks}, nil)
	return httptest.NewServer(srv.Handler())
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func sampleTx(hash, wallet string, value float64) model.Transaction {
	return model.Transaction{
		TxHash:      hash,
		Timestamp:   time.Now().Add(-time.Hour).Unix(),
		FromAddress: wallet,
		ToAddress:   "0xc",
		Value:       value,
		Network:     model.NetworkBase,
		Contract:    "0xc",
		Type:        "mint",
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSummary(t *testing.T) {
	ts := newTestServer(sampleTx("0x1", "w1", 2), sampleTx("0x2", "w2", 3))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/summary")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	all := body["all"].(map[string]any)
	assert.EqualValues(t, 2, all["tx_count"])
	assert.EqualValues(t, 2, all["unique_wallets"])
	assert.EqualValues(t, 5, all["total_value"])
}

func TestSummary_BadNetwork(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/summary?network=solana")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "unknown network")
}

func TestSummary_NetworkCaseInsensitive(t *testing.T) {
	ts := newTestServer(sampleTx("0x1", "w1", 1))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/summary?network=base")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	all := body["all"].(map[string]any)
	assert.EqualValues(t, 1, all["tx_count"])
}

func TestTimeSeries_DefaultWindow(t *testing.T) {
	ts := newTestServer(sampleTx("0x1", "w1", 1))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/timeseries")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "24h0m0s", body["window"])

	buckets := body["buckets"].([]any)
	assert.Len(t, buckets, 24)
}

func TestTimeSeries_DaySuffixWindow(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/timeseries?window=7d")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["buckets"].([]any), 7)
}

func TestTimeSeries_BadWindow(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/api/timeseries?window=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransactions_Filtered(t *testing.T) {
	withdraw := sampleTx("0x9", "w9", 7)
	withdraw.Type = model.OpWithdraw

	ts := newTestServer(sampleTx("0x1", "w1", 1), withdraw)
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/transactions?type="+model.OpWithdraw)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])
}

func TestTransactions_EmptyIsArrayNotNull(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	_, body := get(t, ts.URL+"/api/transactions")
	assert.EqualValues(t, 0, body["count"])
	assert.NotNil(t, body["transactions"])
	_, isArray := body["transactions"].([]any)
	assert.True(t, isArray)
}

func TestWalletStats(t *testing.T) {
	ts := newTestServer(sampleTx("0x1", "w1", 2), sampleTx("0x2", "w1", 3), sampleTx("0x3", "w2", 100))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/wallets/w1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "w1", body["wallet"])
	assert.EqualValues(t, 2, body["tx_count"])
	assert.EqualValues(t, 5, body["total_value"])
}

func TestTopWallets(t *testing.T) {
	ts := newTestServer(sampleTx("0x1", "w1", 2), sampleTx("0x2", "w2", 30))
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/top-wallets?limit=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	wallets := body["wallets"].([]any)
	require.Len(t, wallets, 1)
	assert.Equal(t, "w2", wallets[0].(map[string]any)["wallet"])
}

func TestTopWallets_BadLimit(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/api/top-wallets?limit=-3")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTotalAmount(t *testing.T) {
	withdraw := sampleTx("0x9", "w9", 7.5)
	withdraw.Type = model.OpWithdraw
	withdraw2 := sampleTx("0xa", "w9", 2.5)
	withdraw2.Type = model.OpWithdraw

	ts := newTestServer(sampleTx("0x1", "w1", 100), withdraw, withdraw2)
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/total?contract=0xc&type="+model.OpWithdraw)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 10, body["total"])
	assert.Equal(t, model.OpWithdraw, body["type"])
}

func TestTotalAmount_RequiresContractAndType(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/api/total?contract=0xc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/api/total?type=mint")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWatermarks(t *testing.T) {
	ts := newTestServerWithWatermarks([]model.Watermark{
		{Network: model.NetworkBase, Contract: "0xc", Position: 31212443, UpdatedAt: time.Now().UTC()},
	})
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/watermarks")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	marks := body["watermarks"].([]any)
	require.Len(t, marks, 1)
	first := marks[0].(map[string]any)
	assert.Equal(t, "BASE", first["network"])
	assert.EqualValues(t, 31212443, first["position"])
}

func TestWatermarks_EmptyIsArrayNotNull(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	_, body := get(t, ts.URL+"/api/watermarks")
	_, isArray := body["watermarks"].([]any)
	assert.True(t, isArray)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
