package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Auto-recharge defaults applied when a billing profile is first created.
const (
	DefaultAutoReupAmountCents  int64 = 2000
	DefaultAutoReupTriggerCents int64 = 500
)

// BillingProfile holds a user's prepaid balance and auto-recharge policy.
// AutoReupEnabled is stored as 0/1 like the rest of the billing tables.
type BillingProfile struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               string    `gorm:"type:char(36);not null;uniqueIndex" json:"user_id"`
	BalanceCents         int64     `gorm:"not null;default:0" json:"balance_cents"`
	AutoReupEnabled      int       `gorm:"type:tinyint;not null;default:0" json:"auto_reup_enabled"`
	AutoReupAmountCents  int64     `gorm:"not null;default:2000" json:"auto_reup_amount_cents"`
	AutoReupTriggerCents int64     `gorm:"not null;default:500" json:"auto_reup_trigger_cents"`
	MonthlyCapCents      *int64    `gorm:"default:null" json:"monthly_cap_cents"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewBillingProfile(userID string) BillingProfile {
	return BillingProfile{
		UserID:               userID,
		AutoReupEnabled:      0,
		AutoReupAmountCents:  DefaultAutoReupAmountCents,
		AutoReupTriggerCents: DefaultAutoReupTriggerCents,
	}
}

// GetOrCreateBillingProfile returns the existing profile or creates one with
// defaults. Concurrent first accesses converge on the same row.
func GetOrCreateBillingProfile(db *gorm.DB, userID string) (*BillingProfile, error) {
	var bp BillingProfile
	err := db.Where("user_id = ?", userID).First(&bp).Error
	if err == nil {
		return &bp, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := NewBillingProfile(userID)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ?", userID).First(&bp).Error; err != nil {
		return nil, err
	}
	return &bp, nil
}

func BoolToFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func FlagToBool(v int) bool {
	return v != 0
}
