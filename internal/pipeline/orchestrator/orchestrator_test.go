package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwx610/QuestMe-Dashboard/internal/alert"
	"github.com/rwx610/QuestMe-Dashboard/internal/chain/evm"
	"github.com/rwx610/QuestMe-Dashboard/internal/chain/ton"
	"github.com/rwx610/QuestMe-Dashboard/internal/decode"
	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/store"
)

type fakeEVM struct {
	txs       []evm.Transaction
	err       error
	calls     int
	gotFrom   []int64
	gotChain  int64
	gotTarget string
}

func (f *fakeEVM) FetchTransactions(_ context.Context, chainID int64, address string, fromBlock, _ int64) ([]evm.Transaction, error) {
	f.calls++
	f.gotChain = chainID
	f.gotTarget = address
	f.gotFrom = append(f.gotFrom, fromBlock)
	return f.txs, f.err
}

type fakeTON struct {
	txs   []ton.Transaction
	err   error
	calls int
}

func (f *fakeTON) FetchTransactions(_ context.Context, _ string) ([]ton.Transaction, error) {
	f.calls++
	return f.txs, f.err
}

type memStore struct {
	rows       map[string]model.Transaction
	watermarks map[string]int64
	upsertErr  error
}

func newMemStore() *memStore {
	return &memStore{
		rows:       make(map[string]model.Transaction),
		watermarks: make(map[string]int64),
	}
}

func (m *memStore) UpsertBatch(_ context.Context, txs []model.Transaction) (int64, error) {
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	var inserted int64
	for _, tx := range txs {
		if _, ok := m.rows[tx.TxHash]; ok {
			continue
		}
		m.rows[tx.TxHash] = tx
		inserted++
	}
	return inserted, nil
}

func (m *memStore) Query(_ context.Context, _ store.QueryFilter) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, tx := range m.rows {
		out = append(out, tx)
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, network model.Network, contract string) (int64, error) {
	return m.watermarks[network.String()+"/"+contract], nil
}

func (m *memStore) Set(_ context.Context, network model.Network, contract string, position int64) error {
	m.watermarks[network.String()+"/"+contract] = position
	return nil
}

func (m *memStore) List(_ context.Context) ([]model.Watermark, error) {
	return nil, nil
}

type captureAlerter struct {
	sent []alert.Alert
}

func (c *captureAlerter) Send(_ context.Context, a alert.Alert) error {
	c.sent = append(c.sent, a)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T, refs ...*model.ContractRef) *model.Registry {
	t.Helper()
	r, err := model.NewRegistry(8453, refs...)
	require.NoError(t, err)
	return r
}

func evmRef() *model.ContractRef {
	return &model.ContractRef{
		Network: model.NetworkBase,
		Role:    "mint",
		Address: "0xAbC0000000000000000000000000000000000001",
	}
}

func tonRef() *model.ContractRef {
	return &model.ContractRef{
		Network: model.NetworkTON,
		Role:    "mint",
		Address: "EQMintContract",
	}
}

func evmTx(hash string, block int64) evm.Transaction {
	return evm.Transaction{
		Hash:        hash,
		BlockNumber: fmt.Sprintf("%d", block),
		TimeStamp:   "1700000100",
		From:        "0xSender",
		To:          "0xAbC0000000000000000000000000000000000001",
		Value:       "1000000000000000000",
	}
}

func tonTx(hash string, lt int64) ton.Transaction {
	return ton.Transaction{
		UTime:         1700000200,
		TransactionID: ton.TransactionID{LT: fmt.Sprintf("%d", lt), Hash: hash},
		InMsg: &ton.Message{
			Source:      "EQSender",
			Destination: "EQMintContract",
			Value:       "1000000000",
			MsgData:     ton.MsgData{Type: "msg.dataText", Text: "gm"},
		},
	}
}

func newOrchestrator(reg *model.Registry, e EVMSource, tn TONSource, st *memStore, al alert.Alerter, threshold int) *Orchestrator {
	return New(
		Config{Interval: time.Hour, FailureAlertThreshold: threshold},
		reg, e, tn, st, st, al, testLogger(),
	)
}

func TestRunCycle_EVMAdvancesWatermark(t *testing.T) {
	st := newMemStore()
	src := &fakeEVM{txs: []evm.Transaction{evmTx("0x1", 100), evmTx("0x2", 250), evmTx("0x3", 180)}}
	o := newOrchestrator(testRegistry(t, evmRef()), src, &fakeTON{}, st, nil, 0)

	o.RunCycle(context.Background())

	assert.Equal(t, int64(8453), src.gotChain)
	assert.Equal(t, []int64{1}, src.gotFrom, "first cycle starts at watermark 0 + 1")
	assert.Len(t, st.rows, 3)
	assert.Equal(t, int64(250), st.watermarks["BASE/0xabc0000000000000000000000000000000000001"])

	// Next cycle resumes past the highest seen block.
	o.RunCycle(context.Background())
	assert.Equal(t, []int64{1, 251}, src.gotFrom)
}

func TestRunCycle_EmptyFetchLeavesWatermark(t *testing.T) {
	st := newMemStore()
	st.watermarks["BASE/0xabc0000000000000000000000000000000000001"] = 500
	src := &fakeEVM{}
	o := newOrchestrator(testRegistry(t, evmRef()), src, &fakeTON{}, st, nil, 0)

	o.RunCycle(context.Background())

	assert.Equal(t, []int64{501}, src.gotFrom)
	assert.Equal(t, int64(500), st.watermarks["BASE/0xabc0000000000000000000000000000000000001"])
	assert.Empty(t, st.rows)
}

func TestRunCycle_PairFailureIsIsolated(t *testing.T) {
	st := newMemStore()
	evmSrc := &fakeEVM{err: errors.New("explorer down")}
	tonSrc := &fakeTON{txs: []ton.Transaction{tonTx("h1", 4700)}}
	o := newOrchestrator(testRegistry(t, evmRef(), tonRef()), evmSrc, tonSrc, st, nil, 0)

	o.RunCycle(context.Background())

	// The EVM failure must not stop the TON pair.
	assert.Equal(t, 1, tonSrc.calls)
	assert.Len(t, st.rows, 1)
	assert.Equal(t, int64(4700), st.watermarks["TON/EQMintContract"])
	// Failed pair's watermark stays untouched.
	_, ok := st.watermarks["BASE/0xabc0000000000000000000000000000000000001"]
	assert.False(t, ok)
}

func TestRunCycle_UpsertFailureLeavesWatermark(t *testing.T) {
	st := newMemStore()
	st.upsertErr = errors.New("disk full")
	src := &fakeEVM{txs: []evm.Transaction{evmTx("0x1", 100)}}
	o := newOrchestrator(testRegistry(t, evmRef()), src, &fakeTON{}, st, nil, 0)

	o.RunCycle(context.Background())

	_, ok := st.watermarks["BASE/0xabc0000000000000000000000000000000000001"]
	assert.False(t, ok)
}

func TestRunCycle_StalledAlertAfterThreshold(t *testing.T) {
	st := newMemStore()
	src := &fakeEVM{err: errors.New("explorer down")}
	al := &captureAlerter{}
	o := newOrchestrator(testRegistry(t, evmRef()), src, &fakeTON{}, st, al, 3)
	ctx := context.Background()

	o.RunCycle(ctx)
	o.RunCycle(ctx)
	assert.Empty(t, al.sent, "below threshold")

	o.RunCycle(ctx)
	require.Len(t, al.sent, 1)
	assert.Equal(t, alert.AlertTypePairStalled, al.sent[0].Type)
	assert.Equal(t, "BASE", al.sent[0].Network)
	assert.Equal(t, "explorer down", al.sent[0].Fields["last_error"])

	// Recovery clears the counter and announces itself.
	src.err = nil
	src.txs = []evm.Transaction{evmTx("0x1", 100)}
	o.RunCycle(ctx)
	require.Len(t, al.sent, 2)
	assert.Equal(t, alert.AlertTypeRecovery, al.sent[1].Type)
}

func TestRunCycle_TONRewardWithdrawals(t *testing.T) {
	const rewardWallet = "EQRewardJettonWallet"
	ref := &model.ContractRef{
		Network:      model.NetworkTON,
		Role:         "reward",
		Address:      "EQMintContract",
		RewardWallet: rewardWallet,
	}

	opcode := make([]byte, 8)
	binary.BigEndian.PutUint32(opcode, decode.JettonTransferOpcode)

	tx := tonTx("h1", 5000)
	tx.OutMsgs = []ton.Message{{
		Source:      rewardWallet,
		Destination: "EQRecipient",
		Value:       "2500000",
		MsgData:     ton.MsgData{Body: base64.StdEncoding.EncodeToString(opcode)},
	}}

	st := newMemStore()
	o := newOrchestrator(testRegistry(t, ref), &fakeEVM{}, &fakeTON{txs: []ton.Transaction{tx}}, st, nil, 0)

	o.RunCycle(context.Background())

	// The incoming message row plus the withdrawal share one tx_hash, so
	// dedup keeps a single row; the normalized in_msg row lands first.
	require.Len(t, st.rows, 1)
	got := st.rows["h1"]
	assert.Equal(t, model.OpTextComment, got.Type)
	assert.Equal(t, int64(5000), st.watermarks["TON/EQMintContract"])
}

func TestRunCycle_ContextCancelledStopsPairWalk(t *testing.T) {
	st := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeEVM{txs: []evm.Transaction{evmTx("0x1", 100)}}
	o := newOrchestrator(testRegistry(t, evmRef()), src, &fakeTON{}, st, nil, 0)

	o.RunCycle(ctx)
	assert.Zero(t, src.calls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := newMemStore()
	o := newOrchestrator(testRegistry(t, evmRef()), &fakeEVM{}, &fakeTON{}, st, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
