package models

import "time"

// Transaction types. Every balance mutation made by the settlement engine is
// paired with exactly one ledger entry of one of these types.
const (
	TxTypePayout   = "payout"
	TxTypeFee      = "fee"
	TxTypeRefund   = "refund"
	TxTypeEntryFee = "entry_fee"
	TxTypeCredit   = "credit"
	TxTypeDebit    = "debit"
)

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Transaction is an immutable, append-only ledger entry describing a single
// fund movement. Entries are never updated or deleted after creation.
type Transaction struct {
	ID      string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID  string  `gorm:"index;not null" json:"user_id"`
	MatchID *string `gorm:"index" json:"match_id,omitempty"`

	Amount float64 `json:"amount"`
	Type   string  `json:"type" gorm:"type:varchar(16);check:type IN ('payout','fee','refund','entry_fee','credit','debit')"`
	Status string  `json:"status" gorm:"type:varchar(16);default:'pending';check:status IN ('pending','completed','failed')"`

	Description string `json:"description,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}
