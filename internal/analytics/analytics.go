// Package analytics computes dashboard aggregates over the canonical
// transaction store. Results are cached briefly so a dashboard polling
// several widgets does not re-scan the table for every request.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/store"
)

const (
	cacheTTL     = 30 * time.Second
	cacheCleanup = 5 * time.Minute
)

// WindowStats aggregates activity within one time window.
type WindowStats struct {
	UniqueWallets int     `json:"unique_wallets"`
	TxCount       int     `json:"tx_count"`
	TotalValue    float64 `json:"total_value"`
}

// Summary is the dashboard headline block.
type Summary struct {
	All     WindowStats `json:"all"`
	Last24h WindowStats `json:"last_24h"`
	Last7d  WindowStats `json:"last_7d"`
	Last30d WindowStats `json:"last_30d"`
}

// Bucket is one time-series point. Empty buckets are present with zero
// counts so charts render gaps instead of skipping them.
type Bucket struct {
	Start         time.Time `json:"start"`
	TxCount       int       `json:"tx_count"`
	UniqueWallets int       `json:"unique_wallets"`
	TotalValue    float64   `json:"total_value"`
}

// WalletStats summarizes one wallet's activity.
type WalletStats struct {
	Wallet     string  `json:"wallet"`
	TxCount    int     `json:"tx_count"`
	TotalValue float64 `json:"total_value"`
	LastTxUnix int64   `json:"last_tx_unix"`
}

type Service struct {
	repo   store.TransactionRepository
	cache  *cache.Cache
	logger *slog.Logger

	// now is swappable so window math is testable.
	now func() time.Time
}

func NewService(repo store.TransactionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache.New(cacheTTL, cacheCleanup),
		logger: logger.With("component", "analytics"),
		now:    time.Now,
	}
}

// Summary computes headline stats for the given filter.
func (s *Service) Summary(ctx context.Context, filter store.QueryFilter) (*Summary, error) {
	key := "summary:" + filterKey(filter)
	if v, ok := s.cache.Get(key); ok {
		return v.(*Summary), nil
	}

	txs, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	now := s.now()
	summary := &Summary{
		All:     windowStats(txs, time.Time{}),
		Last24h: windowStats(txs, now.Add(-24*time.Hour)),
		Last7d:  windowStats(txs, now.Add(-7*24*time.Hour)),
		Last30d: windowStats(txs, now.Add(-30*24*time.Hour)),
	}

	s.cache.Set(key, summary, cache.DefaultExpiration)
	return summary, nil
}

func windowStats(txs []model.Transaction, since time.Time) WindowStats {
	wallets := make(map[string]struct{})
	var stats WindowStats
	for _, tx := range txs {
		if !since.IsZero() && tx.Time().Before(since) {
			continue
		}
		wallets[tx.FromAddress] = struct{}{}
		stats.TxCount++
		stats.TotalValue += tx.Value
	}
	stats.UniqueWallets = len(wallets)
	return stats
}

// TimeSeries buckets activity over the given window ending now. Windows
// of 24h or less use hourly buckets, longer windows daily buckets. Every
// bucket in the window is emitted, zero-filled when empty.
func (s *Service) TimeSeries(ctx context.Context, filter store.QueryFilter, window time.Duration) ([]Bucket, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	key := fmt.Sprintf("series:%s:%s", window, filterKey(filter))
	if v, ok := s.cache.Get(key); ok {
		return v.([]Bucket), nil
	}

	txs, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	step := time.Hour
	if window > 24*time.Hour {
		step = 24 * time.Hour
	}

	end := s.now().Truncate(step).Add(step)
	start := end.Add(-window).Truncate(step)

	byBucket := make(map[time.Time]*Bucket)
	walletsByBucket := make(map[time.Time]map[string]struct{})
	for _, tx := range txs {
		at := tx.Time()
		if at.Before(start) || !at.Before(end) {
			continue
		}
		slot := at.Truncate(step)
		b, ok := byBucket[slot]
		if !ok {
			b = &Bucket{Start: slot}
			byBucket[slot] = b
			walletsByBucket[slot] = make(map[string]struct{})
		}
		b.TxCount++
		b.TotalValue += tx.Value
		walletsByBucket[slot][tx.FromAddress] = struct{}{}
	}

	var series []Bucket
	for slot := start; slot.Before(end); slot = slot.Add(step) {
		if b, ok := byBucket[slot]; ok {
			b.UniqueWallets = len(walletsByBucket[slot])
			series = append(series, *b)
		} else {
			series = append(series, Bucket{Start: slot})
		}
	}

	s.cache.Set(key, series, cache.DefaultExpiration)
	return series, nil
}

// WalletStats summarizes one wallet across the filtered set. The wallet
// match is case-insensitive for EVM addresses (the store collates it).
func (s *Service) WalletStats(ctx context.Context, filter store.QueryFilter, wallet string) (*WalletStats, error) {
	filter.Wallet = wallet

	txs, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	stats := &WalletStats{Wallet: wallet}
	for _, tx := range txs {
		stats.TxCount++
		stats.TotalValue += tx.Value
		if tx.Timestamp > stats.LastTxUnix {
			stats.LastTxUnix = tx.Timestamp
		}
	}
	return stats, nil
}

// TotalAmount sums the value column for one contract and operation type.
func (s *Service) TotalAmount(ctx context.Context, network model.Network, contract, opType string) (float64, error) {
	txs, err := s.repo.Query(ctx, store.QueryFilter{Network: network, Contract: contract, Type: opType})
	if err != nil {
		return 0, fmt.Errorf("query transactions: %w", err)
	}

	var total float64
	for _, tx := range txs {
		total += tx.Value
	}
	return total, nil
}

// TopWallets ranks wallets in the filtered set by total value.
func (s *Service) TopWallets(ctx context.Context, filter store.QueryFilter, limit int) ([]WalletStats, error) {
	if limit <= 0 {
		limit = 10
	}

	txs, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	byWallet := make(map[string]*WalletStats)
	for _, tx := range txs {
		w, ok := byWallet[tx.FromAddress]
		if !ok {
			w = &WalletStats{Wallet: tx.FromAddress}
			byWallet[tx.FromAddress] = w
		}
		w.TxCount++
		w.TotalValue += tx.Value
		if tx.Timestamp > w.LastTxUnix {
			w.LastTxUnix = tx.Timestamp
		}
	}

	ranked := make([]WalletStats, 0, len(byWallet))
	for _, w := range byWallet {
		ranked = append(ranked, *w)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalValue != ranked[j].TotalValue {
			return ranked[i].TotalValue > ranked[j].TotalValue
		}
		return ranked[i].Wallet < ranked[j].Wallet
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func filterKey(f store.QueryFilter) string {
	return fmt.Sprintf("%s|%s|%s|%s", f.Network, f.Contract, f.Type, f.Wallet)
}
