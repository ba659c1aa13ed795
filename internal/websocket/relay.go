package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPublishTimeout = 2 * time.Second

// RedisRelay publishes messages to a Redis channel and feeds every message
// seen on that channel into the local hub, so clients on any instance
// receive events raised on any other.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

// NewRedisRelay connects to the Redis server at url and verifies it with a
// ping.
func NewRedisRelay(ctx context.Context, url, channel string, hub *Hub, logger *slog.Logger) (*RedisRelay, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisRelay{client: client, channel: channel, hub: hub, logger: logger}, nil
}

// Publish sends msg to the channel. When Redis is unreachable the message is
// still delivered to local clients.
func (r *RedisRelay) Publish(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal relay message", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("redis publish failed, delivering locally", "error", err)
		r.hub.deliver(msg.UserID, data)
	}
}

// Run relays channel messages into the hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("redis relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.relay(m.Payload)
		}
	}
}

func (r *RedisRelay) relay(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("drop malformed relay message", "error", err)
		return
	}
	r.hub.deliver(msg.UserID, []byte(payload))
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
