package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/store"
)

type WatermarkRepository struct {
	db *DB
}

func NewWatermarkRepository(db *DB) *WatermarkRepository {
	return &WatermarkRepository{db: db}
}

var _ store.WatermarkRepository = (*WatermarkRepository)(nil)

func (r *WatermarkRepository) Get(ctx context.Context, network model.Network, contract string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var position int64
	err := r.db.QueryRowContext(ctx, `
		SELECT position FROM watermarks WHERE network = ? AND contract = ?
	`, network.String(), contract).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get watermark %s/%s: %w", network, contract, err)
	}
	return position, nil
}

// Set overwrites unconditionally. A position lower than the stored one
// wins, which is what lets an operator rewind a pair.
func (r *WatermarkRepository) Set(ctx context.Context, network model.Network, contract string, position int64) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watermarks (network, contract, position, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (network, contract)
		DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at
	`, network.String(), contract, position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set watermark %s/%s: %w", network, contract, err)
	}
	return nil
}

func (r *WatermarkRepository) List(ctx context.Context) ([]model.Watermark, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT network, contract, position, updated_at
		FROM watermarks
		ORDER BY network, contract
	`)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()

	var marks []model.Watermark
	for rows.Next() {
		var (
			wm      model.Watermark
			network string
		)
		if err := rows.Scan(&network, &wm.Contract, &wm.Position, &wm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		wm.Network = model.Network(network)
		marks = append(marks, wm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watermarks: %w", err)
	}
	return marks, nil
}
