package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisSink publishes events on a pub/sub channel and appends them to a
// per-session list so late consumers can catch up.
type RedisSink struct {
	client  *backend.Client
	prefix  string
	channel string
	ttl     time.Duration
}

type RedisOption func(*RedisSink)

// WithRedisPrefix sets the key prefix of the per-session lists.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisSink) {
		s.prefix = prefix
	}
}

// WithRedisChannel sets the pub/sub channel. An empty channel disables publishing.
func WithRedisChannel(channel string) RedisOption {
	return func(s *RedisSink) {
		s.channel = channel
	}
}

// WithRedisTTL expires session lists ttl after their last event.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSink) {
		s.ttl = ttl
	}
}

// NewRedisSink connects to address.
func NewRedisSink(address, password string, db int, opts ...RedisOption) *RedisSink {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisSinkFromClient(client, opts...)
}

// NewRedisSinkFromClient wraps an existing client.
func NewRedisSinkFromClient(client *backend.Client, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		client:  client,
		prefix:  "trailblaze:events:",
		channel: "trailblaze:events",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSink) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisSink) Write(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key(e.SessionID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(e.SessionID), s.ttl)
	}
	if s.channel != "" {
		pipe.Publish(ctx, s.channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Events reads back the stored events of a session.
func (s *RedisSink) Events(ctx context.Context, sessionID string) ([]Event, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	out := make([]Event, 0, len(raw))
	for _, r := range raw {
		e, err := DecodeEvent([]byte(r))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
