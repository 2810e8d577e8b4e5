package models

import "time"

const (
	CreditSourceCheckout = "checkout"
)

// CreditLedgerEntry records one balance credit. The unique idempotency key
// guarantees a payment event credits the balance at most once.
type CreditLedgerEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"type:char(36);not null;index" json:"user_id"`
	AmountCents    int64     `gorm:"not null" json:"amount_cents"`
	Source         string    `gorm:"type:varchar(32);not null;default:'checkout'" json:"source"`
	IdempotencyKey string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"idempotency_key"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
