// Package presence tracks which users currently hold at least one live
// connection. Entries are TTL-keyed in Redis so a crashed server's state
// ages out on its own.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 90 * time.Second

type Tracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewTracker(redisAddr string) (*Tracker, error) {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewTrackerWithClient(client), nil
}

// NewTrackerWithClient creates a tracker from an existing Redis client.
func NewTrackerWithClient(client *redis.Client) *Tracker {
	return &Tracker{
		client: client,
		prefix: "online:",
		ttl:    defaultTTL,
	}
}

func (t *Tracker) key(userId int) string {
	return t.prefix + strconv.Itoa(userId)
}

// Connected records a new live connection for the user and returns the
// connection count after the increment.
func (t *Tracker) Connected(ctx context.Context, userId int) (int64, error) {
	key := t.key(userId)
	n, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr presence: %w", err)
	}

	if err := t.client.Expire(ctx, key, t.ttl).Err(); err != nil {
		return 0, fmt.Errorf("expire presence: %w", err)
	}

	return n, nil
}

// Disconnected records a dropped connection. The key is removed once the
// last connection for the user goes away.
func (t *Tracker) Disconnected(ctx context.Context, userId int) (int64, error) {
	key := t.key(userId)
	n, err := t.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("decr presence: %w", err)
	}

	if n <= 0 {
		if err := t.client.Del(ctx, key).Err(); err != nil {
			return 0, fmt.Errorf("del presence: %w", err)
		}
		return 0, nil
	}

	return n, nil
}

// Heartbeat refreshes the TTL for a user with live connections.
func (t *Tracker) Heartbeat(ctx context.Context, userId int) error {
	ok, err := t.client.Expire(ctx, t.key(userId), t.ttl).Result()
	if err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	if !ok {
		return fmt.Errorf("no presence entry for user %d", userId)
	}

	return nil
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(ctx context.Context, userId int) (bool, error) {
	n, err := t.client.Exists(ctx, t.key(userId)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence: %w", err)
	}

	return n > 0, nil
}

func (t *Tracker) Close() error {
	return t.client.Close()
}
