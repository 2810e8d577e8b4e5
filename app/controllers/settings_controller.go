package controllers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/memoryrouter/dashboard/internal/pkg/billing"
	"github.com/memoryrouter/dashboard/internal/pkg/usercontext"
)

// SettingsService is implemented by billing.Service.
type SettingsService interface {
	GetAutoRecharge(ctx context.Context, userID string) (billing.AutoRechargeConfig, error)
	UpdateAutoRecharge(ctx context.Context, userID string, patch billing.PartialConfig) (billing.AutoRechargeConfig, error)
}

// SettingsController serves the auto-recharge settings of the session user.
type SettingsController struct {
	svc SettingsService
}

func NewSettingsController(svc SettingsService) *SettingsController {
	return &SettingsController{svc: svc}
}

func (sc *SettingsController) HandleGetBillingSettings(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	cfg, err := sc.svc.GetAutoRecharge(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("[Settings] load auto-recharge for %s failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "could not load billing settings")
	}
	return c.JSON(cfg)
}

// HandleUpdateBillingSettings applies a partial update. Fields missing from
// the body keep their stored value; capCentsOrNull may be set to null.
func (sc *SettingsController) HandleUpdateBillingSettings(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var patch billing.PartialConfig
	if err := decodeJSONObject(c.Body(), &patch); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_json", err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	cfg, err := sc.svc.UpdateAutoRecharge(ctx, userCtx.UserID, patch)
	if err != nil {
		var verr *billing.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "validation_failed",
				"message": verr.Error(),
				"fields":  verr.Violations,
			})
		}
		log.Errorf("[Settings] update auto-recharge for %s failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "could not save billing settings")
	}
	return c.JSON(cfg)
}

// decodeJSONObject rejects anything but a single JSON object.
func decodeJSONObject(body []byte, dst any) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil || probe == nil {
		return errors.New("request body must be a JSON object")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("request body has fields of the wrong type")
	}
	return nil
}
