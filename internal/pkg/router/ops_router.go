package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/memoryrouter/dashboard/internal/pkg/constants"
)

type OpsRouter struct {
	deps Deps
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, h.deps.Ops.HandleHealthz)

	// Metrics are only mounted when credentials are configured.
	if h.deps.MetricsUser == "" || h.deps.MetricsPassword == "" {
		return
	}
	guard := basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.deps.MetricsUser: h.deps.MetricsPassword,
		},
	})
	app.Get(constants.WebhookMetrics, guard, h.deps.Ops.HandleWebhookMetrics)
	app.Get(constants.MetricsRoute, guard, monitor.New())
}

func NewOpsRouter(deps Deps) *OpsRouter {
	return &OpsRouter{deps: deps}
}
