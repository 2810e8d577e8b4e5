package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryrouter/dashboard/app/models"
	"github.com/memoryrouter/dashboard/internal/pkg/config"
)

const testWebhookSecret = "whsec_test_secret"

type creditCall struct {
	UserID string
	Amount int64
	Key    string
}

type fakeCredits struct {
	mu    sync.Mutex
	calls []creditCall
	fail  error
}

func (f *fakeCredits) ApplyCredit(_ context.Context, userID string, amountCents int64, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, creditCall{UserID: userID, Amount: amountCents, Key: key})
	return f.fail
}

type fakeEventLog struct {
	mu       sync.Mutex
	nextID   uint
	events   map[string]*models.BillingWebhookEvent
	recorded int
	fail     error
}

func newFakeEventLog() *fakeEventLog {
	return &fakeEventLog{events: map[string]*models.BillingWebhookEvent{}}
}

func (f *fakeEventLog) RecordEvent(_ context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, nil, f.fail
	}
	f.recorded++
	key := in.Provider + ":" + in.ProviderEventID
	if existing, ok := f.events[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	f.nextID++
	ev := &models.BillingWebhookEvent{
		ID:              f.nextID,
		Provider:        in.Provider,
		ProviderEventID: in.ProviderEventID,
		EventType:       in.EventType,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	f.events[key] = ev
	cp := *ev
	return true, &cp, nil
}

func (f *fakeEventLog) MarkProcessed(_ context.Context, id uint, outcome Outcome, processingErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID != id {
			continue
		}
		now := time.Now()
		ev.ProcessedAt = &now
		ev.Outcome = string(outcome)
		ev.ProcessingError = ""
		if processingErr != nil {
			ev.ProcessingError = processingErr.Error()
		}
	}
	return nil
}

var fixedNow = time.Unix(1750000000, 0)

func newTestReconciler(mode config.VerificationMode, events EventLog, credits CreditIssuer) *Reconciler {
	return NewReconciler(config.WebhookConfig{
		Secret:    testWebhookSecret,
		Mode:      mode,
		Tolerance: 5 * time.Minute,
	}, events, credits).WithClock(func() time.Time { return fixedNow })
}

func checkoutPayload(id, userID, amount string) []byte {
	return []byte(`{"id":"` + id + `","type":"checkout.session.completed","data":{"object":{"metadata":{"userId":"` +
		userID + `","email":"` + userID + `@example.com","amount":"` + amount + `"}}}}`)
}

func TestReconcilerCreditsOnceAcrossReplays(t *testing.T) {
	events := newFakeEventLog()
	credits := &fakeCredits{}
	r := newTestReconciler(config.VerificationStrict, events, credits)

	payload := checkoutPayload("evt_1", "u1", "25.00")
	sig := SignStripePayload(payload, testWebhookSecret, fixedNow)

	res, err := r.Handle(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "evt_1", res.EventID)

	res, err = r.Handle(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	require.Len(t, credits.calls, 1)
	assert.Equal(t, creditCall{UserID: "u1", Amount: 2500, Key: "evt_1"}, credits.calls[0])
}

func TestReconcilerRejectsInvalidSignature(t *testing.T) {
	events := newFakeEventLog()
	credits := &fakeCredits{}
	r := newTestReconciler(config.VerificationStrict, events, credits)
	payload := checkoutPayload("evt_2", "u1", "25.00")

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "missing header", header: "", want: ErrMissingSignature},
		{name: "wrong secret", header: SignStripePayload(payload, "other", fixedNow), want: ErrInvalidSignature},
		{name: "garbage", header: "nonsense", want: ErrInvalidSignature},
		{name: "stale", header: SignStripePayload(payload, testWebhookSecret, fixedNow.Add(-time.Hour)), want: ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Handle(context.Background(), payload, tt.header)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrVerification)
		})
	}

	assert.Zero(t, events.recorded)
	assert.Empty(t, credits.calls)
}

func TestReconcilerTamperedPayload(t *testing.T) {
	credits := &fakeCredits{}
	r := newTestReconciler(config.VerificationStrict, newFakeEventLog(), credits)

	sig := SignStripePayload(checkoutPayload("evt_3", "u1", "25.00"), testWebhookSecret, fixedNow)
	_, err := r.Handle(context.Background(), checkoutPayload("evt_3", "u1", "2500.00"), sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, credits.calls)
}

func TestReconcilerObservesNonCreditEvents(t *testing.T) {
	events := newFakeEventLog()
	credits := &fakeCredits{}
	r := newTestReconciler(config.VerificationStrict, events, credits)

	tests := []struct {
		payload string
		want    Outcome
	}{
		{payload: `{"id":"evt_pf","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1"}}}`, want: OutcomeObserved},
		{payload: `{"id":"evt_ex","type":"checkout.session.expired","data":{"object":{"metadata":{"userId":"u1"}}}}`, want: OutcomeObserved},
		{payload: `{"id":"evt_cu","type":"customer.created","data":{"object":{"id":"cus_1"}}}`, want: OutcomeUnhandled},
	}
	for _, tt := range tests {
		payload := []byte(tt.payload)
		res, err := r.Handle(context.Background(), payload, SignStripePayload(payload, testWebhookSecret, fixedNow))
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Outcome)
	}
	assert.Empty(t, credits.calls)
	assert.Equal(t, 3, events.recorded)
}

func TestReconcilerIgnoresIncompleteCheckout(t *testing.T) {
	credits := &fakeCredits{}
	events := newFakeEventLog()
	r := newTestReconciler(config.VerificationStrict, events, credits)

	for _, payload := range [][]byte{
		[]byte(`{"id":"evt_nouser","type":"checkout.session.completed","data":{"object":{"metadata":{"amount":"10.00"}}}}`),
		[]byte(`{"id":"evt_zero","type":"checkout.session.completed","data":{"object":{"metadata":{"userId":"u1","amount":"0.00"}}}}`),
	} {
		res, err := r.Handle(context.Background(), payload, SignStripePayload(payload, testWebhookSecret, fixedNow))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
	}
	assert.Empty(t, credits.calls)
	for _, ev := range events.events {
		assert.NotEmpty(t, ev.ProcessingError)
	}
}

func TestReconcilerDisabledModeSkipsVerification(t *testing.T) {
	credits := &fakeCredits{}
	events := newFakeEventLog()
	r := newTestReconciler(config.VerificationDisabled, events, credits)

	res, err := r.Handle(context.Background(), checkoutPayload("evt_dev", "u7", "5.00"), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	require.Len(t, credits.calls, 1)
	assert.Equal(t, int64(500), credits.calls[0].Amount)
	assert.False(t, events.events["stripe:evt_dev"].SignatureValid)
}

func TestReconcilerUnknownModeIsStrict(t *testing.T) {
	credits := &fakeCredits{}
	r := newTestReconciler(config.VerificationMode("lenient"), newFakeEventLog(), credits)

	_, err := r.Handle(context.Background(), checkoutPayload("evt_x", "u1", "5.00"), "")
	assert.ErrorIs(t, err, ErrMissingSignature)
	assert.Empty(t, credits.calls)
}

func TestReconcilerMalformedPayload(t *testing.T) {
	events := newFakeEventLog()
	r := newTestReconciler(config.VerificationStrict, events, &fakeCredits{})

	payload := []byte(`{"id":"evt_bad"`)
	_, err := r.Handle(context.Background(), payload, SignStripePayload(payload, testWebhookSecret, fixedNow))
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Zero(t, events.recorded)
}

func TestReconcilerRejectsOverflowingAmount(t *testing.T) {
	events := newFakeEventLog()
	credits := &fakeCredits{}
	r := newTestReconciler(config.VerificationStrict, events, credits)

	payload := checkoutPayload("evt_overflow", "u1", "184467440737095517.00")
	_, err := r.Handle(context.Background(), payload, SignStripePayload(payload, testWebhookSecret, fixedNow))
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Empty(t, credits.calls)
	assert.Zero(t, events.recorded)
}

func TestReconcilerDownstreamFailureIsRetryable(t *testing.T) {
	events := newFakeEventLog()
	credits := &fakeCredits{fail: errors.New("connection refused")}
	r := newTestReconciler(config.VerificationStrict, events, credits)

	payload := checkoutPayload("evt_retry", "u1", "12.50")
	sig := SignStripePayload(payload, testWebhookSecret, fixedNow)

	_, err := r.Handle(context.Background(), payload, sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownstream)
	assert.NotErrorIs(t, err, ErrVerification)
	assert.False(t, events.events["stripe:evt_retry"].Completed())

	credits.fail = nil
	res, err := r.Handle(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, events.events["stripe:evt_retry"].Completed())

	require.Len(t, credits.calls, 2)
	assert.Equal(t, credits.calls[0], credits.calls[1])
}

func TestReconcilerEventLogFailure(t *testing.T) {
	events := newFakeEventLog()
	events.fail = errors.New("db down")
	credits := &fakeCredits{}
	r := newTestReconciler(config.VerificationStrict, events, credits)

	payload := checkoutPayload("evt_db", "u1", "1.00")
	_, err := r.Handle(context.Background(), payload, SignStripePayload(payload, testWebhookSecret, fixedNow))
	assert.ErrorIs(t, err, ErrDownstream)
	assert.Empty(t, credits.calls)
}

func TestReconcilerReplayCreditsFailedEvent(t *testing.T) {
	events := newFakeEventLog()
	credits := &fakeCredits{fail: errors.New("connection refused")}
	r := newTestReconciler(config.VerificationStrict, events, credits)

	payload := checkoutPayload("evt_sweep", "u3", "7.50")
	_, err := r.Handle(context.Background(), payload, SignStripePayload(payload, testWebhookSecret, fixedNow))
	require.ErrorIs(t, err, ErrDownstream)

	credits.fail = nil
	stored := *events.events["stripe:evt_sweep"]
	res, err := r.Replay(context.Background(), &stored)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, events.events["stripe:evt_sweep"].Completed())

	done := *events.events["stripe:evt_sweep"]
	res, err = r.Replay(context.Background(), &done)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Len(t, credits.calls, 2)
}

func TestReconcilerReplayRequiresVerifiedEvent(t *testing.T) {
	credits := &fakeCredits{}
	r := newTestReconciler(config.VerificationStrict, newFakeEventLog(), credits)

	_, err := r.Replay(context.Background(), &models.BillingWebhookEvent{
		ProviderEventID: "evt_dev",
		PayloadJSON:     string(checkoutPayload("evt_dev", "u1", "5.00")),
	})
	assert.ErrorIs(t, err, ErrVerification)
	_, err = r.Replay(context.Background(), nil)
	assert.ErrorIs(t, err, ErrVerification)
	assert.Empty(t, credits.calls)
}
