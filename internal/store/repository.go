// Package store defines the persistence interfaces consumed by the
// pipeline and the query layer.
package store

import (
	"context"

	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
)

// QueryFilter narrows a transaction query. All set fields are combined
// with AND; zero values mean "any". Wallet matches from_address
// case-insensitively.
type QueryFilter struct {
	Network  model.Network
	Contract string
	Type     string
	Wallet   string
}

// TransactionRepository is the append-only canonical transaction table.
type TransactionRepository interface {
	// UpsertBatch inserts the given transactions atomically, ignoring
	// any whose tx_hash already exists. It returns the number of rows
	// actually inserted and is a no-op on empty input.
	UpsertBatch(ctx context.Context, txs []model.Transaction) (int64, error)

	// Query returns all transactions matching the filter, in insertion
	// order. Callers needing time ordering sort explicitly.
	Query(ctx context.Context, filter QueryFilter) ([]model.Transaction, error)
}

// WatermarkRepository tracks the last processed position per
// (network, contract) pair.
type WatermarkRepository interface {
	// Get returns the stored position, or 0 when the pair has never
	// completed a refresh.
	Get(ctx context.Context, network model.Network, contract string) (int64, error)

	// Set overwrites the stored position. Last write wins: a lower
	// position replaces a higher one by design, so an operator can
	// rewind a pair to force a refetch window.
	Set(ctx context.Context, network model.Network, contract string, position int64) error

	// List returns every stored watermark, ordered by network then
	// contract. Used by the freshness endpoint.
	List(ctx context.Context) ([]model.Watermark, error)
}
