package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/memoryrouter/dashboard/app/models"
)

const (
	settingsCacheTTL  = 5 * time.Minute
	defaultCreditPage = 20
	maxCreditPage     = 100
)

// Cache is the subset of the shared cache used for settings reads.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Service serves the billing settings and balance endpoints.
type Service struct {
	store Store
	cache Cache
}

// NewService creates a billing service. cache may be nil.
func NewService(store Store, cache Cache) *Service {
	return &Service{store: store, cache: cache}
}

func settingsCacheKey(userID string) string {
	return "billing:autorecharge:" + userID
}

// GetAutoRecharge returns the user's current policy.
func (s *Service) GetAutoRecharge(ctx context.Context, userID string) (AutoRechargeConfig, error) {
	if strings.TrimSpace(userID) == "" {
		return AutoRechargeConfig{}, errors.New("user_id is required")
	}

	key := settingsCacheKey(userID)
	if s.cache != nil {
		var cached AutoRechargeConfig
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			log.Warnf("[Billing] settings cache read failed for %s: %v", userID, err)
		} else if hit {
			return cached, nil
		}
	}

	cfg, err := s.store.GetAutoRecharge(ctx, userID)
	if err != nil {
		return AutoRechargeConfig{}, fmt.Errorf("%w: %w", ErrDownstream, err)
	}
	s.cacheSettings(ctx, userID, cfg)
	return cfg, nil
}

// UpdateAutoRecharge validates patch and has the store persist the merged
// policy. A *ValidationError is returned unchanged.
func (s *Service) UpdateAutoRecharge(ctx context.Context, userID string, patch PartialConfig) (AutoRechargeConfig, error) {
	if strings.TrimSpace(userID) == "" {
		return AutoRechargeConfig{}, errors.New("user_id is required")
	}
	if err := patch.Validate(); err != nil {
		return AutoRechargeConfig{}, err
	}
	if patch.IsEmpty() {
		return s.GetAutoRecharge(ctx, userID)
	}

	stored, err := s.store.UpdateAutoRecharge(ctx, userID, patch)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return AutoRechargeConfig{}, err
		}
		return AutoRechargeConfig{}, fmt.Errorf("%w: %w", ErrDownstream, err)
	}
	s.invalidate(ctx, userID)
	return stored, nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownstream, err)
	}
	return balance, nil
}

// ListCredits returns the newest ledger entries first.
func (s *Service) ListCredits(ctx context.Context, userID string, limit int) ([]CreditEntry, error) {
	if limit <= 0 {
		limit = defaultCreditPage
	}
	if limit > maxCreditPage {
		limit = maxCreditPage
	}
	rows, err := s.store.ListCredits(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownstream, err)
	}
	return toCreditEntries(rows), nil
}

func toCreditEntries(rows []models.CreditLedgerEntry) []CreditEntry {
	out := make([]CreditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, CreditEntry{
			AmountCents: row.AmountCents,
			Source:      row.Source,
			Reference:   row.IdempotencyKey,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out
}

func (s *Service) cacheSettings(ctx context.Context, userID string, cfg AutoRechargeConfig) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, settingsCacheKey(userID), cfg, settingsCacheTTL); err != nil {
		log.Warnf("[Billing] settings cache write failed for %s: %v", userID, err)
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, settingsCacheKey(userID)); err != nil {
		log.Warnf("[Billing] settings cache invalidation failed for %s: %v", userID, err)
	}
}
