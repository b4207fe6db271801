// Package presence keeps a Redis view of who is online. The registry
// already answers "is this identity reachable on this instance"; the Redis
// set answers it across instances and feeds the admin dashboard without
// touching the hub.
//
// Everything here is best-effort. Redis being down degrades the dashboard,
// never a registration.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "presence:"

	// TTL is a safety net: if a process dies without running its
	// disconnect path, its users' keys age out instead of reading online
	// forever. Register refreshes the key, so live users never expire.
	ttl = 5 * time.Minute

	opTimeout = 2 * time.Second
)

type Tracker struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func New(redisURL string, logger *zap.Logger) (*Tracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", opts.Addr))
	return &Tracker{rdb: rdb, logger: logger}, nil
}

// MarkOnline records the identity as online. Fire-and-forget: the caller is
// a websocket event handler and must not wait on Redis.
func (t *Tracker) MarkOnline(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := t.rdb.Set(ctx, keyPrefix+userID, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
			t.logger.Warn("presence set failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// MarkOffline clears the identity. Fire-and-forget, same as MarkOnline.
func (t *Tracker) MarkOffline(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := t.rdb.Del(ctx, keyPrefix+userID).Err(); err != nil {
			t.logger.Warn("presence del failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// Online returns the identities currently marked online, across every
// instance sharing this Redis.
func (t *Tracker) Online(ctx context.Context) ([]string, error) {
	users := make([]string, 0)
	iter := t.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		users = append(users, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence keys: %w", err)
	}
	return users, nil
}

func (t *Tracker) Close() error {
	return t.rdb.Close()
}
