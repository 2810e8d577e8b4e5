package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/memoryrouter/dashboard/app/models"
	"github.com/memoryrouter/dashboard/internal/pkg/config"
)

// CreditIssuer applies a balance credit. Calls with the same idempotency key
// must take effect at most once, including when they run concurrently.
type CreditIssuer interface {
	ApplyCredit(ctx context.Context, userID string, amountCents int64, idempotencyKey string) error
}

// EventLog records verified deliveries for audit and replay detection.
type EventLog interface {
	RecordEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, outcome Outcome, processingErr error) error
}

// Reconciler verifies processor webhooks and dispatches each event to credit
// issuance. It holds no mutable state; configuration is fixed at construction.
type Reconciler struct {
	mode      config.VerificationMode
	secret    string
	tolerance time.Duration
	events    EventLog
	credits   CreditIssuer
	now       func() time.Time
}

func NewReconciler(cfg config.WebhookConfig, events EventLog, credits CreditIssuer) *Reconciler {
	mode := cfg.Mode
	if mode != config.VerificationDisabled {
		mode = config.VerificationStrict
	}
	if mode == config.VerificationDisabled {
		log.Warn("[Webhook] signature verification is DISABLED; never run this configuration in production")
	}
	return &Reconciler{
		mode:      mode,
		secret:    cfg.Secret,
		tolerance: cfg.Tolerance,
		events:    events,
		credits:   credits,
		now:       time.Now,
	}
}

// WithClock returns a copy of the reconciler that reads time from now.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	cp := *r
	cp.now = now
	return &cp
}

// Handle processes one delivery. Errors wrapping ErrVerification mean the
// delivery was rejected without side effects; errors wrapping ErrDownstream
// mean it must be redelivered. A nil error means acknowledge.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signatureHeader string) (Result, error) {
	if r.mode == config.VerificationStrict {
		if err := VerifyStripeSignature(payload, signatureHeader, r.secret, r.tolerance, r.now()); err != nil {
			log.Warnf("[Webhook] rejected delivery: %v", err)
			return Result{}, err
		}
	}

	event, err := ParsePaymentEvent(payload)
	if err != nil {
		log.Warnf("[Webhook] rejected delivery: %v", err)
		return Result{}, err
	}
	res := Result{EventID: event.ID, EventType: event.Type}

	created, stored, err := r.events.RecordEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PayloadJSON:     string(payload),
		SignatureValid:  r.mode == config.VerificationStrict,
	})
	if err != nil {
		return res, fmt.Errorf("%w: record event %s: %w", ErrDownstream, event.ID, err)
	}
	if !created && stored.Completed() {
		log.Infof("[Webhook] event %s (%s) already processed", event.ID, event.Type)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	return r.process(ctx, event, stored)
}

// Replay dispatches a stored event again. Only events whose signature was
// verified on receipt are eligible.
func (r *Reconciler) Replay(ctx context.Context, stored *models.BillingWebhookEvent) (Result, error) {
	if stored == nil || !stored.SignatureValid {
		return Result{}, fmt.Errorf("%w: event was not verified on receipt", ErrInvalidSignature)
	}
	if stored.Completed() {
		return Result{EventID: stored.ProviderEventID, EventType: stored.EventType, Outcome: OutcomeDuplicate}, nil
	}
	event, err := ParsePaymentEvent([]byte(stored.PayloadJSON))
	if err != nil {
		return Result{}, err
	}
	log.Infof("[Webhook] replaying event %s (%s)", event.ID, event.Type)
	return r.process(ctx, event, stored)
}

func (r *Reconciler) process(ctx context.Context, event *PaymentEvent, stored *models.BillingWebhookEvent) (Result, error) {
	res := Result{EventID: event.ID, EventType: event.Type}
	outcome, note, applyErr := r.dispatch(ctx, event)
	res.Outcome = outcome

	var processingErr error
	switch {
	case applyErr != nil:
		processingErr = applyErr
	case note != "":
		processingErr = errors.New(note)
	}
	if markErr := r.events.MarkProcessed(ctx, stored.ID, outcome, processingErr); markErr != nil {
		log.Errorf("[Webhook] failed to mark event %s processed: %v", event.ID, markErr)
	}

	if applyErr != nil {
		log.Errorf("[Webhook] event %s (%s) failed: %v", event.ID, event.Type, applyErr)
		return res, fmt.Errorf("%w: apply event %s: %w", ErrDownstream, event.ID, applyErr)
	}
	return res, nil
}

func (r *Reconciler) dispatch(ctx context.Context, event *PaymentEvent) (Outcome, string, error) {
	switch event.Type {
	case EventCheckoutCompleted:
		if strings.TrimSpace(event.UserID) == "" {
			log.Warnf("[Webhook] checkout %s has no user id; not credited", event.ID)
			return OutcomeIgnored, "checkout has no user id", nil
		}
		if event.AmountCents <= 0 {
			log.Warnf("[Webhook] checkout %s has amount %d; not credited", event.ID, event.AmountCents)
			return OutcomeIgnored, "checkout has no positive amount", nil
		}
		if err := r.credits.ApplyCredit(ctx, event.UserID, event.AmountCents, event.ID); err != nil {
			return OutcomeApplied, "", err
		}
		log.Infof("[Webhook] credited %d cents to user %s (event %s)", event.AmountCents, event.UserID, event.ID)
		return OutcomeApplied, "", nil
	case EventCheckoutExpired, EventPaymentFailed:
		log.Infof("[Webhook] observed %s for event %s (user %q)", event.Type, event.ID, event.UserID)
		return OutcomeObserved, "", nil
	default:
		log.Debugf("[Webhook] unhandled event type %s (%s)", event.Type, event.ID)
		return OutcomeUnhandled, "", nil
	}
}
