// Package orchestrator drives the refresh loop: for every tracked
// (network, contract) pair it fetches raw records, normalizes them,
// upserts the batch, and advances the watermark. Pairs are processed
// sequentially; a failure in one pair never blocks the others.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rwx610/QuestMe-Dashboard/internal/alert"
	"github.com/rwx610/QuestMe-Dashboard/internal/chain/evm"
	"github.com/rwx610/QuestMe-Dashboard/internal/chain/ton"
	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/metrics"
	"github.com/rwx610/QuestMe-Dashboard/internal/pipeline/normalizer"
	"github.com/rwx610/QuestMe-Dashboard/internal/store"
)

// EVMSource fetches raw explorer records for one contract window.
type EVMSource interface {
	FetchTransactions(ctx context.Context, chainID int64, address string, fromBlock, toBlock int64) ([]evm.Transaction, error)
}

// TONSource fetches the raw transaction history for one account.
type TONSource interface {
	FetchTransactions(ctx context.Context, address string) ([]ton.Transaction, error)
}

type Config struct {
	Interval time.Duration
	// FailureAlertThreshold is how many consecutive failed cycles one
	// pair accumulates before an alert fires. <= 0 disables alerting.
	FailureAlertThreshold int
}

type Orchestrator struct {
	cfg      Config
	registry *model.Registry
	evm      EVMSource
	ton      TONSource
	txRepo   store.TransactionRepository
	wmRepo   store.WatermarkRepository
	alerter  alert.Alerter
	logger   *slog.Logger

	// failures counts consecutive failed cycles per pair key. Only the
	// refresh goroutine touches it.
	failures map[string]int
}

func New(
	cfg Config,
	registry *model.Registry,
	evmSource EVMSource,
	tonSource TONSource,
	txRepo store.TransactionRepository,
	wmRepo store.WatermarkRepository,
	alerter alert.Alerter,
	logger *slog.Logger,
) *Orchestrator {
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		evm:      evmSource,
		ton:      tonSource,
		txRepo:   txRepo,
		wmRepo:   wmRepo,
		alerter:  alerter,
		logger:   logger.With("component", "orchestrator"),
		failures: make(map[string]int),
	}
}

// Run performs one synchronous pass immediately, then refreshes on a
// fixed interval until the context is cancelled. The initial pass means
// the API serves data as soon as Run returns control to the caller's
// errgroup, not one interval later.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.RunCycle(ctx)

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("refresh loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// RunCycle refreshes every registered pair once, sequentially and in
// deterministic registry order. Per-pair errors are absorbed here.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	logger := o.logger.With("cycle_id", cycleID)
	logger.Info("refresh cycle starting")

	for _, ref := range o.registry.All() {
		if ctx.Err() != nil {
			logger.Info("refresh cycle cancelled")
			return
		}

		network := ref.Network.String()
		contract := ref.StoredContract()
		pairLogger := logger.With("network", network, "contract", contract)

		start := time.Now()
		err := o.refreshPair(ctx, ref, pairLogger)
		elapsed := time.Since(start)

		metrics.RefreshCycles.WithLabelValues(network, contract).Inc()
		metrics.RefreshDuration.WithLabelValues(network, contract).Observe(elapsed.Seconds())

		key := network + "/" + contract
		if err != nil {
			metrics.RefreshErrors.WithLabelValues(network, contract).Inc()
			o.failures[key]++
			pairLogger.Error("pair refresh failed",
				"error", err,
				"consecutive_failures", o.failures[key],
				"duration", elapsed,
			)
			o.maybeAlertStalled(ctx, ref, err)
			continue
		}

		if o.cfg.FailureAlertThreshold > 0 && o.failures[key] >= o.cfg.FailureAlertThreshold {
			o.sendAlert(ctx, alert.Alert{
				Type:     alert.AlertTypeRecovery,
				Network:  network,
				Contract: contract,
				Title:    "pair recovered",
				Message:  fmt.Sprintf("refresh succeeded after %d consecutive failures", o.failures[key]),
			})
		}
		o.failures[key] = 0
		pairLogger.Debug("pair refresh complete", "duration", elapsed)
	}

	logger.Info("refresh cycle complete")
}

func (o *Orchestrator) refreshPair(ctx context.Context, ref *model.ContractRef, logger *slog.Logger) error {
	switch ref.Network {
	case model.NetworkBase:
		return o.refreshEVM(ctx, ref, logger)
	case model.NetworkTON:
		return o.refreshTON(ctx, ref, logger)
	default:
		return fmt.Errorf("unknown network %q", ref.Network)
	}
}

// refreshEVM fetches forward from the stored watermark and advances it
// to the highest block seen in this window. No records means no
// watermark movement.
func (o *Orchestrator) refreshEVM(ctx context.Context, ref *model.ContractRef, logger *slog.Logger) error {
	contract := ref.StoredContract()

	watermark, err := o.wmRepo.Get(ctx, ref.Network, contract)
	if err != nil {
		return fmt.Errorf("get watermark: %w", err)
	}

	raw, err := o.evm.FetchTransactions(ctx, o.registry.BaseChainID, ref.Address, watermark+1, 0)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	txs, skips := normalizer.NormalizeEVM(raw, ref)
	logSkips(logger, skips)

	inserted, err := o.txRepo.UpsertBatch(ctx, txs)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	highest := watermark
	for _, tx := range txs {
		if tx.Block > highest {
			highest = tx.Block
		}
	}
	if highest > watermark {
		if err := o.wmRepo.Set(ctx, ref.Network, contract, highest); err != nil {
			return fmt.Errorf("set watermark: %w", err)
		}
	}

	logger.Info("refreshed",
		"fetched", len(raw),
		"inserted", inserted,
		"skipped", len(skips),
		"watermark", highest,
	)
	return nil
}

// refreshTON walks the account history (the adapter bounds the walk by
// its page budget), stores incoming transactions plus any reward
// withdrawals found in outgoing messages, and records the highest
// logical time as the watermark.
func (o *Orchestrator) refreshTON(ctx context.Context, ref *model.ContractRef, logger *slog.Logger) error {
	contract := ref.StoredContract()

	watermark, err := o.wmRepo.Get(ctx, ref.Network, contract)
	if err != nil {
		return fmt.Errorf("get watermark: %w", err)
	}

	raw, err := o.ton.FetchTransactions(ctx, ref.Address)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	txs, skips := normalizer.NormalizeTON(raw, ref)
	logSkips(logger, skips)

	if ref.RewardWallet != "" {
		withdrawals, wSkips := normalizer.ExtractRewardWithdrawals(raw, ref)
		logSkips(logger, wSkips)
		txs = append(txs, withdrawals...)
	}

	inserted, err := o.txRepo.UpsertBatch(ctx, txs)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	highest := watermark
	for _, tx := range txs {
		if tx.Block > highest {
			highest = tx.Block
		}
	}
	if highest > watermark {
		if err := o.wmRepo.Set(ctx, ref.Network, contract, highest); err != nil {
			return fmt.Errorf("set watermark: %w", err)
		}
	}

	logger.Info("refreshed",
		"fetched", len(raw),
		"inserted", inserted,
		"watermark", highest,
	)
	return nil
}

func (o *Orchestrator) maybeAlertStalled(ctx context.Context, ref *model.ContractRef, cause error) {
	if o.cfg.FailureAlertThreshold <= 0 {
		return
	}
	key := ref.Network.String() + "/" + ref.StoredContract()
	if o.failures[key] < o.cfg.FailureAlertThreshold {
		return
	}
	o.sendAlert(ctx, alert.Alert{
		Type:     alert.AlertTypePairStalled,
		Network:  ref.Network.String(),
		Contract: ref.StoredContract(),
		Title:    "pair stalled",
		Message:  fmt.Sprintf("%d consecutive failed refresh cycles", o.failures[key]),
		Fields:   map[string]string{"last_error": cause.Error()},
	})
}

func (o *Orchestrator) sendAlert(ctx context.Context, a alert.Alert) {
	if err := o.alerter.Send(ctx, a); err != nil {
		o.logger.Warn("alert dispatch failed", "type", a.Type, "error", err)
	}
}

func logSkips(logger *slog.Logger, skips []normalizer.Skip) {
	for _, s := range skips {
		logger.Warn("record skipped", "index", s.Index, "reason", s.Reason)
	}
}
