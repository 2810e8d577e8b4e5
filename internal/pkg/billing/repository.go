package billing

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/memoryrouter/dashboard/app/models"
)

// Store is the billing state the dashboard reads and updates.
type Store interface {
	GetAutoRecharge(ctx context.Context, userID string) (AutoRechargeConfig, error)
	// UpdateAutoRecharge persists ApplyUpdate(current, patch) and returns it.
	UpdateAutoRecharge(ctx context.Context, userID string, patch PartialConfig) (AutoRechargeConfig, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	ListCredits(ctx context.Context, userID string, limit int) ([]models.CreditLedgerEntry, error)
}

// Repository is the full gorm-backed billing store.
type Repository interface {
	Store
	CreditIssuer
	EventLog
	PendingEvents(ctx context.Context, since, before time.Time, limit int) ([]models.BillingWebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetAutoRecharge(ctx context.Context, userID string) (AutoRechargeConfig, error) {
	bp, err := models.GetOrCreateBillingProfile(r.db.WithContext(ctx), userID)
	if err != nil {
		return AutoRechargeConfig{}, err
	}
	return configFromProfile(bp), nil
}

// UpdateAutoRecharge merges patch into the locked row with ApplyUpdate and
// writes only the columns present in patch, so concurrent updates of
// different fields do not overwrite each other.
func (r *gormRepository) UpdateAutoRecharge(ctx context.Context, userID string, patch PartialConfig) (AutoRechargeConfig, error) {
	var out AutoRechargeConfig
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bp, err := models.GetOrCreateBillingProfile(tx, userID)
		if err != nil {
			return err
		}
		var locked models.BillingProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", bp.ID).First(&locked).Error; err != nil {
			return err
		}

		merged, err := ApplyUpdate(configFromProfile(&locked), patch)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if patch.Enabled != nil {
			updates["auto_reup_enabled"] = models.BoolToFlag(merged.Enabled)
		}
		if patch.AmountCents != nil {
			updates["auto_reup_amount_cents"] = merged.AmountCents
		}
		if patch.TriggerCents != nil {
			updates["auto_reup_trigger_cents"] = merged.TriggerCents
		}
		if patch.MonthlyCapCents.Set {
			updates["monthly_cap_cents"] = merged.MonthlyCapCents
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.BillingProfile{}).Where("id = ?", locked.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		out = merged
		return nil
	})
	return out, err
}

func (r *gormRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	bp, err := models.GetOrCreateBillingProfile(r.db.WithContext(ctx), userID)
	if err != nil {
		return 0, err
	}
	return bp.BalanceCents, nil
}

func (r *gormRepository) ListCredits(ctx context.Context, userID string, limit int) ([]models.CreditLedgerEntry, error) {
	var entries []models.CreditLedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// ApplyCredit inserts the ledger row and increments the balance in one
// transaction. The unique idempotency key turns a repeated call into a no-op.
func (r *gormRepository) ApplyCredit(ctx context.Context, userID string, amountCents int64, idempotencyKey string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := &models.CreditLedgerEntry{
			UserID:         userID,
			AmountCents:    amountCents,
			Source:         models.CreditSourceCheckout,
			IdempotencyKey: idempotencyKey,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if _, err := models.GetOrCreateBillingProfile(tx, userID); err != nil {
			return err
		}
		return tx.Model(&models.BillingProfile{}).
			Where("user_id = ?", userID).
			Update("balance_cents", gorm.Expr("balance_cents + ?", amountCents)).Error
	})
}

func (r *gormRepository) RecordEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	event := &models.BillingWebhookEvent{
		Provider:        strings.ToLower(strings.TrimSpace(in.Provider)),
		ProviderEventID: strings.TrimSpace(in.ProviderEventID),
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkProcessed(ctx context.Context, id uint, outcome Outcome, processingErr error) error {
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": errMsg,
		"outcome":          string(outcome),
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// PendingEvents lists verified events received in [since, before) that never
// finished processing. Ignored checkouts carry a note but are final.
func (r *gormRepository) PendingEvents(ctx context.Context, since, before time.Time, limit int) ([]models.BillingWebhookEvent, error) {
	var rows []models.BillingWebhookEvent
	err := r.db.WithContext(ctx).
		Where("signature_valid = ? AND created_at >= ? AND created_at < ?", true, since, before).
		Where("processed_at IS NULL OR (processing_error <> '' AND outcome <> ?)", string(OutcomeIgnored)).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func configFromProfile(bp *models.BillingProfile) AutoRechargeConfig {
	cfg := AutoRechargeConfig{
		Enabled:      models.FlagToBool(bp.AutoReupEnabled),
		AmountCents:  bp.AutoReupAmountCents,
		TriggerCents: bp.AutoReupTriggerCents,
	}
	if bp.MonthlyCapCents != nil {
		v := *bp.MonthlyCapCents
		cfg.MonthlyCapCents = &v
	}
	return cfg
}
