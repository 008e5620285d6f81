package internal

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

const (
	BroadcastChannel = "fleet:broadcast"

	presenceTTL        = 90 * time.Second
	presenceRefreshTTL = 60 * time.Second
)

// Presence tracks which instance owns a connection and how busy it is.
type Presence interface {
	Join(ctx context.Context, id string) error
	Refresh(ctx context.Context, id string) error
	Leave(ctx context.Context, id string) error
	Received(ctx context.Context, id string) error
	Sent(ctx context.Context, id string) error
}

type standalonePresence struct{}

func (standalonePresence) Join(context.Context, string) error     { return nil }
func (standalonePresence) Refresh(context.Context, string) error  { return nil }
func (standalonePresence) Leave(context.Context, string) error    { return nil }
func (standalonePresence) Received(context.Context, string) error { return nil }
func (standalonePresence) Sent(context.Context, string) error     { return nil }

// RedisCluster links relay instances through redis pub/sub and keeps a
// presence hash per connection.
type RedisCluster struct {
	logger     *slog.Logger
	rdb        *redis.Client
	instanceID string
	metrics    *Metrics
}

func NewRedisCluster(logger *slog.Logger, rdb *redis.Client, instanceID string, metrics *Metrics) *RedisCluster {
	return &RedisCluster{
		logger:     logger,
		rdb:        rdb,
		instanceID: instanceID,
		metrics:    metrics,
	}
}

func (c *RedisCluster) InstanceID() string {
	return c.instanceID
}

func presenceKey(id string) string {
	return fmt.Sprintf("ws:%v", id)
}

func (c *RedisCluster) publish(ctx context.Context, channel string, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := c.rdb.Publish(ctx, channel, b).Err(); err != nil {
		return fmt.Errorf("publish %v event: %w", event.Type, err)
	}

	c.metrics.ClusterEvents.WithLabelValues(string(event.Type), "out").Inc()
	return nil
}

func (c *RedisCluster) PublishBroadcast(ctx context.Context, payload []byte) error {
	return c.publish(ctx, BroadcastChannel, Event{
		Type:    EventTypeBroadcast,
		Origin:  c.instanceID,
		Payload: base64.RawURLEncoding.EncodeToString(payload),
	})
}

// PublishDrop asks the instance owning id to close it. It reports false
// when no instance claims the connection.
func (c *RedisCluster) PublishDrop(ctx context.Context, id string) (bool, error) {
	instanceID, err := c.rdb.HGet(ctx, presenceKey(id), "inst").Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return true, c.publish(ctx, instanceID, Event{
		Type:   EventTypeDrop,
		ID:     id,
		Origin: c.instanceID,
	})
}

func (c *RedisCluster) Join(ctx context.Context, id string) error {
	rid := presenceKey(id)
	data := map[string]string{
		"inst": c.instanceID,
		"join": strconv.Itoa(int(time.Now().Unix())),
		"recv": "0",
		"sent": "0",
	}

	if err := c.rdb.HSet(ctx, rid, data).Err(); err != nil {
		return err
	}

	return c.rdb.Expire(ctx, rid, presenceTTL).Err()
}

func (c *RedisCluster) Refresh(ctx context.Context, id string) error {
	return c.rdb.Expire(ctx, presenceKey(id), presenceRefreshTTL).Err()
}

func (c *RedisCluster) Leave(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, presenceKey(id)).Err()
}

func (c *RedisCluster) Received(ctx context.Context, id string) error {
	return c.rdb.HIncrBy(ctx, presenceKey(id), "recv", 1).Err()
}

func (c *RedisCluster) Sent(ctx context.Context, id string) error {
	return c.rdb.HIncrBy(ctx, presenceKey(id), "sent", 1).Err()
}
