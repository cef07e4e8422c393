package model

import "time"

// Watermark records the last processed position for a (network, contract)
// pair: the highest block seen on BASE, the highest logical time on TON.
//
// Set semantics are last-write-wins, not max-merge. A later Set with a
// lower position overwrites the stored one; callers that need monotonic
// advancement must enforce it themselves.
type Watermark struct {
	Network   Network   `db:"network" json:"network"`
	Contract  string    `db:"contract" json:"contract"`
	Position  int64     `db:"position" json:"position"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
