// Package pubsub mirrors real-time broadcasts onto Redis channels so that
// out-of-process consumers (chat bots, stream overlays) can follow the live
// session without holding a websocket.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"trackrater/src/core/ports"
	"trackrater/src/infra/config"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// Message is the JSON document published on every channel.
type Message struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	TSMS  int64           `json:"ts_ms"`
}

// RedisPublisher implements ports.Publisher on Redis PUBLISH.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	log    *slog.Logger
}

var _ ports.Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to cfg.URL. It does not ping; use Health.
func NewRedisPublisher(cfg config.RedisConfig, log *slog.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return NewRedisPublisherWithClient(redis.NewClient(opts), cfg.ChannelPrefix, log), nil
}

// NewRedisPublisherWithClient wraps an existing client.
func NewRedisPublisherWithClient(client *redis.Client, prefix string, log *slog.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = "trackrater"
	}
	return &RedisPublisher{client: client, prefix: prefix, now: time.Now, log: log}
}

// Channel names the Redis channel for a room.
func (p *RedisPublisher) Channel(room ports.Room) string {
	if room == ports.RoomAll {
		return p.prefix + ":all"
	}
	return p.prefix + ":" + string(room)
}

// Publish sends one event. Errors are returned for the caller to log.
func (p *RedisPublisher) Publish(ctx context.Context, room ports.Room, event string, payload any) error {
	msg, err := Encode(room, event, payload, p.now())
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.Channel(room), msg).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", event, err)
	}
	return nil
}

// Health pings Redis.
func (p *RedisPublisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Encode renders the published document.
func Encode(room ports.Room, event string, payload any, at time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Message{Room: string(room), Event: event, Data: data, TSMS: at.UnixMilli()})
}
