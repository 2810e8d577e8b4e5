package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// OutcomeSnapshotter is implemented by counter.WebhookOutcomes.
type OutcomeSnapshotter interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

type OpsController struct {
	checks   map[string]Pinger
	outcomes OutcomeSnapshotter
}

func NewOpsController(checks map[string]Pinger, outcomes OutcomeSnapshotter) *OpsController {
	return &OpsController{checks: checks, outcomes: outcomes}
}

// HandleHealthz answers 503 when any dependency check fails.
func (oc *OpsController) HandleHealthz(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	status := fiber.StatusOK
	results := fiber.Map{}
	for name, ping := range oc.checks {
		if err := ping(ctx); err != nil {
			log.Warnf("[Health] %s check failed: %v", name, err)
			results[name] = "down"
			status = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "up"
	}
	return c.Status(status).JSON(fiber.Map{"ok": status == fiber.StatusOK, "checks": results})
}

func (oc *OpsController) HandleWebhookMetrics(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	snap, err := oc.outcomes.Snapshot(ctx)
	if err != nil {
		log.Errorf("[Metrics] webhook counters unavailable: %v", err)
		return jsonError(c, fiber.StatusServiceUnavailable, "metrics_unavailable", "")
	}
	return c.JSON(fiber.Map{"webhookOutcomes": snap})
}
