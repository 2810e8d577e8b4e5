package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const webhookOutcomesKey = "billing:webhooks:outcomes"

// WebhookOutcomes counts handled webhook deliveries per outcome in a redis
// hash. Counters survive restarts and are shared between instances.
type WebhookOutcomes struct {
	rdb redis.Cmdable
}

func NewWebhookOutcomes(rdb redis.Cmdable) *WebhookOutcomes {
	return &WebhookOutcomes{rdb: rdb}
}

// Increment adds one to the counter for outcome
func (w *WebhookOutcomes) Increment(ctx context.Context, outcome string) error {
	return w.rdb.HIncrBy(ctx, webhookOutcomesKey, outcome, 1).Err()
}

// Snapshot returns all counters. Fields that are not integers are skipped.
func (w *WebhookOutcomes) Snapshot(ctx context.Context) (map[string]int64, error) {
	data, err := w.rdb.HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Reset drains the hash and returns what it held.
func (w *WebhookOutcomes) Reset(ctx context.Context) (map[string]int64, error) {
	snap, err := w.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := w.rdb.Del(ctx, webhookOutcomesKey).Err(); err != nil {
		return nil, err
	}
	return snap, nil
}
