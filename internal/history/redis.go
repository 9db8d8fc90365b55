package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "jarvis:history:"

// Redis stores each session as a Redis list of JSON messages.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis connects to redisURL. A positive ttl expires idle sessions.
func NewRedis(redisURL string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis connected", zap.String("addr", opts.Addr))
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Append pushes the message. A message's ordinal is its 1-based position in
// the session list, so concurrent appends never share one.
func (r *Redis) Append(ctx context.Context, sessionID, role, content string) error {
	key := keyPrefix + sessionID
	data, err := json.Marshal(Message{SessionID: sessionID, Role: role, Content: content})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Load reads the list length and the requested tail in one transaction and
// numbers the messages from their positions.
func (r *Redis) Load(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	key := keyPrefix + sessionID
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	pipe := r.rdb.TxPipeline()
	llen := pipe.LLen(ctx, key)
	lrange := pipe.LRange(ctx, key, start, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	items := lrange.Val()
	first := llen.Val() - int64(len(items)) + 1

	msgs := make([]Message, 0, len(items))
	for i, item := range items {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			r.logger.Warn("skipping unreadable history entry", zap.String("session", sessionID), zap.Error(err))
			continue
		}
		m.Ordinal = first + int64(i)
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
