package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/memoryrouter/dashboard/internal/pkg/billing"
	"github.com/memoryrouter/dashboard/internal/pkg/usercontext"
)

// BalanceService is implemented by billing.Service.
type BalanceService interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	ListCredits(ctx context.Context, userID string, limit int) ([]billing.CreditEntry, error)
}

type BillingController struct {
	svc BalanceService
}

func NewBillingController(svc BalanceService) *BillingController {
	return &BillingController{svc: svc}
}

func (bc *BillingController) HandleBalance(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	balance, err := bc.svc.GetBalance(ctx, userID)
	if err != nil {
		log.Errorf("[Billing] load balance for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "could not load balance")
	}
	return c.JSON(fiber.Map{"balanceCents": balance})
}

// HandleCredits lists recent credits, newest first. ?limit= caps the page.
func (bc *BillingController) HandleCredits(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	limit := c.QueryInt("limit", 0)

	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := bc.svc.ListCredits(ctx, userID, limit)
	if err != nil {
		log.Errorf("[Billing] list credits for %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "could not load credits")
	}
	return c.JSON(fiber.Map{"credits": entries})
}
