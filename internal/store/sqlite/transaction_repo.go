package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/metrics"
	"github.com/rwx610/QuestMe-Dashboard/internal/store"
)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

var _ store.TransactionRepository = (*TransactionRepository)(nil)

// UpsertBatch writes the batch in a single transaction with
// INSERT OR IGNORE, so replaying an overlapping fetch window is
// idempotent: rows already present by tx_hash are left untouched.
func (r *TransactionRepository) UpsertBatch(ctx context.Context, txs []model.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(tx_hash, timestamp, block, from_address, to_address, value, network, contract, type, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	perNetwork := make(map[model.Network]int64)
	for _, tx := range txs {
		res, err := stmt.ExecContext(ctx,
			tx.TxHash, tx.Timestamp, tx.Block,
			tx.FromAddress, tx.ToAddress, tx.Value,
			tx.Network.String(), tx.Contract, tx.Type, tx.RawPayload,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert tx %s: %w", tx.TxHash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
		perNetwork[tx.Network] += n
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert batch: %w", err)
	}

	for network, n := range perNetwork {
		metrics.RowsUpserted.WithLabelValues(network.String()).Add(float64(n))
	}
	return inserted, nil
}

func (r *TransactionRepository) Query(ctx context.Context, filter store.QueryFilter) ([]model.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Network != "" {
		conds = append(conds, "network = ?")
		args = append(args, filter.Network.String())
	}
	if filter.Contract != "" {
		conds = append(conds, "contract = ?")
		args = append(args, filter.Contract)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Wallet != "" {
		conds = append(conds, "from_address = ? COLLATE NOCASE")
		args = append(args, filter.Wallet)
	}

	query := `
		SELECT tx_hash, timestamp, block, from_address, to_address, value, network, contract, type, raw_payload
		FROM transactions
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rowid"

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var (
			tx      model.Transaction
			network string
		)
		if err := rows.Scan(
			&tx.TxHash, &tx.Timestamp, &tx.Block,
			&tx.FromAddress, &tx.ToAddress, &tx.Value,
			&network, &tx.Contract, &tx.Type, &tx.RawPayload,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Network = model.Network(network)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}
