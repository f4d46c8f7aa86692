package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEventTTL covers Stripe's redelivery window of three days.
const DefaultEventTTL = 72 * time.Hour

// WebhookEventCache remembers processed gateway event ids. It is a fast path
// only; the store's conditional writes stay authoritative.
type WebhookEventCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewWebhookEventCache(client redis.Cmdable, ttl time.Duration) *WebhookEventCache {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &WebhookEventCache{client: client, ttl: ttl}
}

func (c *WebhookEventCache) key(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

func (c *WebhookEventCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *WebhookEventCache) Remember(ctx context.Context, eventID string) error {
	return c.client.Set(ctx, c.key(eventID), time.Now().UTC().Format(time.RFC3339), c.ttl).Err()
}
