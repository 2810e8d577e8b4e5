package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/memoryrouter/dashboard/internal/pkg/constants"
	"github.com/memoryrouter/dashboard/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIPrefix, limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests",
			})
		},
	}))

	api.Post(constants.AuthRegisterRoute, h.deps.Auth.HandleRegister)
	api.Post(constants.AuthLoginRoute, h.deps.Auth.HandleLogin)
	api.Post(constants.AuthRefreshRoute, h.deps.Auth.HandleRefresh)
	api.Post(constants.AuthLogoutRoute, h.deps.Auth.HandleLogout)

	requireSession := middleware.RequireSession(h.deps.Gateway)
	api.Get(constants.MeRoute, requireSession, h.deps.Auth.HandleMe)
	api.Get(constants.BillingSettings, requireSession, h.deps.Settings.HandleGetBillingSettings)
	api.Patch(constants.BillingSettings, requireSession, h.deps.Settings.HandleUpdateBillingSettings)
	api.Get(constants.BillingBalance, requireSession, h.deps.Billing.HandleBalance)
	api.Get(constants.BillingCredits, requireSession, h.deps.Billing.HandleCredits)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
