package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/memoryrouter/dashboard/app/controllers"
	"github.com/memoryrouter/dashboard/internal/pkg/session"
)

// Router installs one group of routes.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries the wired handlers into the routers.
type Deps struct {
	Gateway  *session.Gateway
	Auth     *controllers.AuthController
	Settings *controllers.SettingsController
	Billing  *controllers.BillingController
	Webhook  *controllers.WebhookController
	Ops      *controllers.OpsController

	// LimiterStorage backs the /api rate limiter; nil keeps counters in memory.
	LimiterStorage  fiber.Storage
	MetricsUser     string
	MetricsPassword string
}

func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewOpsRouter(deps), NewWebhookRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
