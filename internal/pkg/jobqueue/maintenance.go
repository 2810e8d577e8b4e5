package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/memoryrouter/dashboard/app/models"
	"github.com/memoryrouter/dashboard/internal/pkg/billing"
	"github.com/memoryrouter/dashboard/internal/pkg/config"
)

const (
	TaskTokenPurge   = "token_purge"
	TaskWebhookSweep = "webhook_sweep"

	sweepBatchSize = 50
	// Events younger than this may still be in flight on the webhook route.
	sweepGrace = 5 * time.Minute
)

type TokenPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type PendingEventSource interface {
	PendingEvents(ctx context.Context, since, before time.Time, limit int) ([]models.BillingWebhookEvent, error)
}

type EventReplayer interface {
	Replay(ctx context.Context, stored *models.BillingWebhookEvent) (billing.Result, error)
}

// TokenPurgeTask deletes refresh tokens past their expiry.
func TokenPurgeTask(tokens TokenPurger, interval time.Duration, now func() time.Time) Task {
	return Task{
		Name:     TaskTokenPurge,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := tokens.DeleteExpired(ctx, now())
			if err != nil {
				return err
			}
			if n > 0 {
				log.Infof("[JobQueue] purged %d expired refresh tokens", n)
			}
			return nil
		},
	}
}

// WebhookSweepTask replays verified events whose processing failed and the
// provider has not redelivered.
func WebhookSweepTask(src PendingEventSource, replayer EventReplayer, cfg config.JobsConfig, now func() time.Time) Task {
	return Task{
		Name:     TaskWebhookSweep,
		Interval: cfg.WebhookSweepInterval,
		Run: func(ctx context.Context) error {
			t := now()
			events, err := src.PendingEvents(ctx, t.Add(-cfg.WebhookSweepMaxAge), t.Add(-sweepGrace), sweepBatchSize)
			if err != nil {
				return err
			}
			var errs []error
			for i := range events {
				res, err := replayer.Replay(ctx, &events[i])
				if err != nil {
					errs = append(errs, err)
					continue
				}
				log.Infof("[JobQueue] replayed event %s: %s", res.EventID, res.Outcome)
			}
			return errors.Join(errs...)
		},
	}
}
