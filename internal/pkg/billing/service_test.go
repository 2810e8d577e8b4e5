package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryrouter/dashboard/app/models"
	"github.com/memoryrouter/dashboard/internal/pkg/cache"
)

type fakeStore struct {
	cfg     AutoRechargeConfig
	balance int64
	credits []models.CreditLedgerEntry
	reads   int
	updates int
	limit   int
	fail    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{cfg: AutoRechargeConfig{
		AmountCents:  models.DefaultAutoReupAmountCents,
		TriggerCents: models.DefaultAutoReupTriggerCents,
	}}
}

func (f *fakeStore) GetAutoRecharge(context.Context, string) (AutoRechargeConfig, error) {
	f.reads++
	if f.fail != nil {
		return AutoRechargeConfig{}, f.fail
	}
	return f.cfg, nil
}

func (f *fakeStore) UpdateAutoRecharge(_ context.Context, _ string, patch PartialConfig) (AutoRechargeConfig, error) {
	f.updates++
	if f.fail != nil {
		return AutoRechargeConfig{}, f.fail
	}
	next, err := ApplyUpdate(f.cfg, patch)
	if err != nil {
		return AutoRechargeConfig{}, err
	}
	f.cfg = next
	return next, nil
}

func (f *fakeStore) GetBalance(context.Context, string) (int64, error) {
	return f.balance, f.fail
}

func (f *fakeStore) ListCredits(_ context.Context, _ string, limit int) ([]models.CreditLedgerEntry, error) {
	f.limit = limit
	return f.credits, f.fail
}

func newServiceWithRedis(t *testing.T, store Store) (*miniredis.Miniredis, *Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewService(store, cache.New(rdb))
}

func TestServiceGetAutoRechargeCaches(t *testing.T) {
	store := newFakeStore()
	mr, svc := newServiceWithRedis(t, store)
	ctx := context.Background()

	first, err := svc.GetAutoRecharge(ctx, "u1")
	require.NoError(t, err)
	second, err := svc.GetAutoRecharge(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.reads)
	assert.True(t, mr.Exists("billing:autorecharge:u1"))
}

func TestServiceUpdateInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	mr, svc := newServiceWithRedis(t, store)
	ctx := context.Background()

	_, err := svc.GetAutoRecharge(ctx, "u1")
	require.NoError(t, err)

	enabled := true
	updated, err := svc.UpdateAutoRecharge(ctx, "u1", PartialConfig{Enabled: &enabled, AmountCents: i64(5000)})
	require.NoError(t, err)
	assert.True(t, updated.Enabled)
	assert.Equal(t, int64(5000), updated.AmountCents)
	assert.Equal(t, models.DefaultAutoReupTriggerCents, updated.TriggerCents)
	assert.False(t, mr.Exists("billing:autorecharge:u1"))

	got, err := svc.GetAutoRecharge(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestServiceUpdateReturnsMergedPolicy(t *testing.T) {
	store := newFakeStore()
	store.cfg.MonthlyCapCents = i64(9000)
	before := store.cfg
	svc := NewService(store, nil)

	patch := PartialConfig{TriggerCents: i64(700), MonthlyCapCents: NoCap()}
	want, err := ApplyUpdate(before, patch)
	require.NoError(t, err)

	got, err := svc.UpdateAutoRecharge(context.Background(), "u1", patch)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, store.cfg)
	assert.Nil(t, got.MonthlyCapCents)
	assert.Zero(t, store.reads)
	assert.Equal(t, 1, store.updates)
}

func TestServiceUpdateRejectsInvalidPatch(t *testing.T) {
	store := newFakeStore()
	_, svc := newServiceWithRedis(t, store)

	_, err := svc.UpdateAutoRecharge(context.Background(), "u1", PartialConfig{AmountCents: i64(499)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amountCents", verr.Violations[0].Field)
	assert.Zero(t, store.updates)
	assert.Equal(t, int64(2000), store.cfg.AmountCents)
}

func TestServiceEmptyPatchReturnsCurrent(t *testing.T) {
	store := newFakeStore()
	_, svc := newServiceWithRedis(t, store)

	got, err := svc.UpdateAutoRecharge(context.Background(), "u1", PartialConfig{})
	require.NoError(t, err)
	assert.Equal(t, store.cfg, got)
	assert.Zero(t, store.updates)
}

func TestServiceCacheUnavailableFallsBackToStore(t *testing.T) {
	store := newFakeStore()
	mr, svc := newServiceWithRedis(t, store)
	mr.Close()

	got, err := svc.GetAutoRecharge(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, store.cfg, got)

	_, err = svc.UpdateAutoRecharge(context.Background(), "u1", PartialConfig{TriggerCents: i64(1000)})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), store.cfg.TriggerCents)
}

func TestServiceWithoutCache(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	_, err := svc.GetAutoRecharge(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.GetAutoRecharge(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.reads)
}

func TestServiceStoreFailureIsDownstream(t *testing.T) {
	store := newFakeStore()
	store.fail = errors.New("db down")
	svc := NewService(store, nil)

	_, err := svc.GetAutoRecharge(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrDownstream)
	_, err = svc.GetBalance(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrDownstream)
	_, err = svc.UpdateAutoRecharge(context.Background(), "u1", PartialConfig{AmountCents: i64(1000)})
	assert.ErrorIs(t, err, ErrDownstream)
}

func TestServiceRequiresUser(t *testing.T) {
	svc := NewService(newFakeStore(), nil)
	_, err := svc.GetAutoRecharge(context.Background(), " ")
	assert.Error(t, err)
	_, err = svc.UpdateAutoRecharge(context.Background(), "", PartialConfig{})
	assert.Error(t, err)
}

func TestServiceListCredits(t *testing.T) {
	store := newFakeStore()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.credits = []models.CreditLedgerEntry{
		{UserID: "u1", AmountCents: 2500, Source: models.CreditSourceCheckout, IdempotencyKey: "evt_1", CreatedAt: created},
	}
	svc := NewService(store, nil)

	entries, err := svc.ListCredits(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultCreditPage, store.limit)
	require.Len(t, entries, 1)
	assert.Equal(t, CreditEntry{AmountCents: 2500, Source: "checkout", Reference: "evt_1", CreatedAt: created}, entries[0])

	_, err = svc.ListCredits(context.Background(), "u1", 1000)
	require.NoError(t, err)
	assert.Equal(t, maxCreditPage, store.limit)
}
