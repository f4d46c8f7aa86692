package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestWebhookEventCache_KeyAndDefaultTTL(t *testing.T) {
	c := NewWebhookEventCache(redis.NewClient(&redis.Options{Addr: "localhost:0"}), 0)
	assert.Equal(t, "webhook:event:evt_123", c.key("evt_123"))
	assert.Equal(t, DefaultEventTTL, c.ttl)
}

func TestWebhookEventCache_UnreachableRedisReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewWebhookEventCache(client, time.Minute)

	seen, err := c.Seen(context.Background(), "evt_1")
	assert.Error(t, err)
	assert.False(t, seen)
	assert.Error(t, c.Remember(context.Background(), "evt_1"))
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url://")
	assert.Error(t, err)
}
