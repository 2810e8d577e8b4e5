// Package config builds the process configuration once at startup. The
// resulting Config is passed by value into the components that need it and is
// never modified afterwards.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memoryrouter/dashboard/internal/pkg/env"
)

const (
	DefaultAccessTokenTTL   = 30 * 24 * time.Hour
	DefaultRefreshTokenTTL  = 30 * 24 * time.Hour
	DefaultWebhookTolerance = 5 * time.Minute

	DefaultTokenPurgeInterval   = time.Hour
	DefaultWebhookSweepInterval = 10 * time.Minute
	// Stripe stops redelivering after three days.
	DefaultWebhookSweepMaxAge = 72 * time.Hour
)

// VerificationMode controls webhook signature checking.
type VerificationMode string

const (
	VerificationStrict   VerificationMode = "strict"
	VerificationDisabled VerificationMode = "disabled"
)

type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type WebhookConfig struct {
	Secret    string
	Mode      VerificationMode
	Tolerance time.Duration
}

// JobsConfig sets the maintenance intervals. A non-positive interval
// disables the job.
type JobsConfig struct {
	TokenPurgeInterval   time.Duration
	WebhookSweepInterval time.Duration
	WebhookSweepMaxAge   time.Duration
}

type Config struct {
	AppEnv  string
	Host    string
	Port    string
	Token   TokenConfig
	Webhook WebhookConfig
	Jobs    JobsConfig

	MetricsUser     string
	MetricsPassword string
}

// Load reads the configuration from the environment. env.SetupEnvFile should
// have been called before.
func Load() (Config, error) {
	cfg := Config{
		AppEnv: strings.ToLower(strings.TrimSpace(env.GetEnv("APP_ENV", "prod"))),
		Host:   env.GetEnv("APP_HOST", "localhost"),
		Port:   env.GetEnv("APP_PORT", "4000"),
		Token: TokenConfig{
			Secret:     []byte(strings.TrimSpace(env.GetEnv("TOKEN_SECRET", ""))),
			Issuer:     env.GetEnv("TOKEN_ISSUER", "memoryrouter-dashboard"),
			AccessTTL:  env.GetEnvDuration("ACCESS_TOKEN_TTL", DefaultAccessTokenTTL),
			RefreshTTL: env.GetEnvDuration("REFRESH_TOKEN_TTL", DefaultRefreshTokenTTL),
		},
		Webhook: WebhookConfig{
			Secret:    strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
			Mode:      VerificationMode(strings.ToLower(strings.TrimSpace(env.GetEnv("WEBHOOK_VERIFICATION", string(VerificationStrict))))),
			Tolerance: env.GetEnvDuration("WEBHOOK_TOLERANCE", DefaultWebhookTolerance),
		},
		Jobs: JobsConfig{
			TokenPurgeInterval:   env.GetEnvDuration("TOKEN_PURGE_INTERVAL", DefaultTokenPurgeInterval),
			WebhookSweepInterval: env.GetEnvDuration("WEBHOOK_SWEEP_INTERVAL", DefaultWebhookSweepInterval),
			WebhookSweepMaxAge:   env.GetEnvDuration("WEBHOOK_SWEEP_MAX_AGE", DefaultWebhookSweepMaxAge),
		},
		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsProd() bool {
	return c.AppEnv == "prod"
}

// Validate rejects configurations the process must not serve with.
func (c Config) Validate() error {
	if len(c.Token.Secret) == 0 {
		return errors.New("TOKEN_SECRET is not configured")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Webhook.Tolerance < 0 {
		return errors.New("WEBHOOK_TOLERANCE must not be negative")
	}
	if c.Jobs.WebhookSweepInterval > 0 && c.Jobs.WebhookSweepMaxAge <= 0 {
		return errors.New("WEBHOOK_SWEEP_MAX_AGE must be positive when the sweep is enabled")
	}
	switch c.Webhook.Mode {
	case VerificationStrict:
		if c.Webhook.Secret == "" {
			return errors.New("STRIPE_WEBHOOK_SECRET is required when WEBHOOK_VERIFICATION=strict")
		}
	case VerificationDisabled:
		if c.IsProd() {
			return errors.New("WEBHOOK_VERIFICATION=disabled is not allowed with APP_ENV=prod")
		}
	default:
		return fmt.Errorf("unknown WEBHOOK_VERIFICATION %q (want strict or disabled)", c.Webhook.Mode)
	}
	return nil
}
