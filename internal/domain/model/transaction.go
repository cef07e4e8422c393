package model

import "time"

// Operation type sentinels produced by classification. Unrecognized TON
// opcodes surface as their "0x…" hex form instead of one of these.
const (
	OpTextComment = "TextComment"
	OpTransfer    = "Transfer"
	OpEmptyBody   = "EmptyBody"
	OpInvalidBOC  = "InvalidBOC"
	OpUnknown     = "Unknown"
	OpWithdraw    = "withdraw"
)

// Transaction is the canonical, chain-agnostic record persisted by the
// store. It is created exactly once by the normalizer and is immutable
// after insertion.
//
// TxHash is the primary key across both networks. Hashes are namespaced
// per chain in practice (hex for EVM, base64 for TON), but the schema does
// not enforce it: a cross-chain collision would be silently dropped as a
// dedup hit. Known risk, kept for compatibility with the stored data.
type Transaction struct {
	TxHash string `db:"tx_hash" json:"tx_hash"`
	// Timestamp is chain-reported, seconds since epoch.
	Timestamp int64 `db:"timestamp" json:"timestamp"`
	// Block is the chain ordering key: block number on BASE, logical
	// time on TON. Monotonic within a chain, not comparable across them.
	Block       int64   `db:"block" json:"block"`
	FromAddress string  `db:"from_address" json:"from_address"`
	ToAddress   string  `db:"to_address" json:"to_address"`
	Value       float64 `db:"value" json:"value"`
	Network     Network `db:"network" json:"network"`
	Contract    string  `db:"contract" json:"contract"`
	Type        string  `db:"type" json:"type"`
	// RawPayload keeps the original calldata/body so values can be
	// re-derived without refetching.
	RawPayload string `db:"raw_payload" json:"raw_payload,omitempty"`
}

// Time returns the chain-reported timestamp as time.Time in UTC.
func (t *Transaction) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}
