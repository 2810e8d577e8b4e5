package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/memoryrouter/dashboard/internal/pkg/billing"
)

// WebhookHandler is implemented by billing.Reconciler.
type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (billing.Result, error)
}

// OutcomeCounter records how deliveries ended. May be nil.
type OutcomeCounter interface {
	Increment(ctx context.Context, outcome string) error
}

type WebhookController struct {
	reconciler WebhookHandler
	counter    OutcomeCounter
}

func NewWebhookController(reconciler WebhookHandler, counter OutcomeCounter) *WebhookController {
	return &WebhookController{reconciler: reconciler, counter: counter}
}

// HandleStripeWebhook verifies and reconciles one processor delivery. A 2xx
// answer acknowledges it; 400 rejects it; 500 asks the processor to retry.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(billing.StripeSignatureHeader)

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := wc.reconciler.Handle(ctx, rawBody, signature)
	if err != nil {
		code, status := classifyWebhookError(err)
		wc.count(ctx, code)
		return jsonError(c, status, code, "")
	}

	wc.count(ctx, string(res.Outcome))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":      true,
		"eventId": res.EventID,
		"outcome": res.Outcome,
	})
}

func classifyWebhookError(err error) (string, int) {
	switch {
	case errors.Is(err, billing.ErrMissingSignature):
		return "missing_signature", fiber.StatusBadRequest
	case errors.Is(err, billing.ErrMalformedEvent):
		return "invalid_payload", fiber.StatusBadRequest
	case errors.Is(err, billing.ErrVerification):
		return "invalid_signature", fiber.StatusBadRequest
	default:
		return "webhook_processing_failed", fiber.StatusInternalServerError
	}
}

func (wc *WebhookController) count(ctx context.Context, outcome string) {
	if wc.counter == nil {
		return
	}
	if err := wc.counter.Increment(ctx, outcome); err != nil {
		log.Warnf("[Webhook] failed to count outcome %s: %v", outcome, err)
	}
}
