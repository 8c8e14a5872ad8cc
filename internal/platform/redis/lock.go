// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package redis

import (
	stdctx "context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by [Locker.Acquire] when another holder owns the key.
var ErrLockHeld = errors.New("redis: lock is held by another owner")

// releaseScript deletes the key only if it still carries our token, so a lock
// that expired and was re-acquired elsewhere is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out expiring single-holder locks backed by SET NX.
type Locker struct {
	client redis.UniversalClient
}

// NewLocker wraps a Redis client.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

/*
Acquire takes the lock at key for at most ttl.

Parameters:
  - context: stdctx.Context
  - key: string
  - ttl: time.Duration (upper bound in case the holder dies)

Returns:
  - release: func that frees the lock if still owned
  - err: ErrLockHeld or connection failures
*/
func (locker *Locker) Acquire(context stdctx.Context, key string, ttl time.Duration) (func(stdctx.Context) error, error) {
	token := uuid.NewString()

	acquired, err := locker.client.SetNX(context, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis_lock_acquire_failed: %w", err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	release := func(context stdctx.Context) error {
		if err := releaseScript.Run(context, locker.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("redis_lock_release_failed: %w", err)
		}
		return nil
	}

	return release, nil
}
