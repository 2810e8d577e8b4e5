package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/memoryrouter/dashboard/internal/pkg/constants"
)

// WebhookRouter exposes processor callbacks. They authenticate by signature,
// not by session.
type WebhookRouter struct {
	deps Deps
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post(constants.StripeWebhookRoute, h.deps.Webhook.HandleStripeWebhook)
}

func NewWebhookRouter(deps Deps) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}
