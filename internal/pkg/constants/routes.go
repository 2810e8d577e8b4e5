package constants

// Static route constants
const (
	APIPrefix          = "/api"
	AuthRegisterRoute  = "/auth/register"
	AuthLoginRoute     = "/auth/login"
	AuthRefreshRoute   = "/auth/refresh"
	AuthLogoutRoute    = "/auth/logout"
	MeRoute            = "/me"
	BillingSettings    = "/settings/billing"
	BillingBalance     = "/billing/balance"
	BillingCredits     = "/billing/credits"
	StripeWebhookRoute = "/webhooks/stripe"
	HealthRoute        = "/healthz"
	MetricsRoute       = "/metrics"
	WebhookMetrics     = "/metrics/webhooks"
	DocsBasePath       = "/docs/api/"
)
