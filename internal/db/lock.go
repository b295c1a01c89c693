package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement-recon/internal/core"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lockTTL     = 30 * time.Second
	lockBackoff = 100 * time.Millisecond
	lockRetries = 20
)

// OrderLocker serializes reconciliation work on a single purchase order
// across server instances.
type OrderLocker interface {
	// Lock blocks briefly until the order is free. The returned func releases it.
	// Returns an error wrapping core.ErrOrderBusy if the order stays held.
	Lock(ctx context.Context, purchaseOrderID string) (unlock func(), err error)
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

type redisOrderLocker struct {
	locker *redislock.Client
	log    *zap.Logger
}

// NewOrderLocker returns an OrderLocker backed by Redis.
func NewOrderLocker(client redis.UniversalClient, log *zap.Logger) OrderLocker {
	return &redisOrderLocker{locker: redislock.New(client), log: log}
}

func lockKey(purchaseOrderID string) string {
	return "recon:" + purchaseOrderID
}

func (l *redisOrderLocker) Lock(ctx context.Context, purchaseOrderID string) (func(), error) {
	key := lockKey(purchaseOrderID)
	lock, err := l.locker.Obtain(ctx, key, lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockBackoff), lockRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("lock %s: %w", key, core.ErrOrderBusy)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	return func() {
		// release on a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn("release order lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

type noopLocker struct{}

// NoopLocker returns an OrderLocker that never blocks. It is used when Redis
// is not configured; the ledger's conditional decision update still prevents
// double decisions.
func NoopLocker() OrderLocker { return noopLocker{} }

func (noopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
