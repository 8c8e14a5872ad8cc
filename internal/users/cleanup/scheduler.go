// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taibuivan/authkeeper/internal/platform/constants"
	redisstore "github.com/taibuivan/authkeeper/internal/platform/redis"
)

// Locker grants a single holder an expiring lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Scheduler triggers the sweeper on a cron expression.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	locker  Locker
	timeout time.Duration
	logger  *slog.Logger
}

// NewScheduler parses schedule (standard five-field cron, evaluated in UTC) and
// prepares the job. The job is not running until [Scheduler.Start].
func NewScheduler(schedule string, sweeper *Sweeper, locker Locker, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	scheduler := &Scheduler{
		sweeper: sweeper,
		locker:  locker,
		timeout: timeout,
		logger:  logger,
	}

	scheduler.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger})),
	)

	if _, err := scheduler.cron.AddFunc(schedule, scheduler.tick); err != nil {
		return nil, fmt.Errorf("cleanup_invalid_schedule: %w", err)
	}

	return scheduler, nil
}

// Start runs the schedule in its own goroutine.
func (scheduler *Scheduler) Start() {
	scheduler.cron.Start()
	scheduler.logger.Info("unverified_cleanup_scheduled")
}

// Stop halts the schedule and waits for a running sweep to return.
func (scheduler *Scheduler) Stop(ctx context.Context) {
	done := scheduler.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		scheduler.logger.Warn("unverified_cleanup_stop_timeout")
	}
}

// tick is one scheduled run. Only the replica holding the lock sweeps.
func (scheduler *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), scheduler.timeout)
	defer cancel()

	if err := scheduler.RunOnce(ctx); err != nil {
		scheduler.logger.Error("unverified_cleanup_failed", slog.Any("error", err))
	}
}

// RunOnce takes the lock and performs one sweep. A lock held elsewhere is not
// an error.
func (scheduler *Scheduler) RunOnce(ctx context.Context) error {
	release, err := scheduler.locker.Acquire(ctx, constants.RedisKeyCleanupLock, scheduler.timeout)
	if errors.Is(err, redisstore.ErrLockHeld) {
		scheduler.logger.Info("unverified_cleanup_skipped", slog.String("reason", "lock held by another replica"))
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := release(context.Background()); releaseErr != nil {
			scheduler.logger.Warn("unverified_cleanup_unlock_failed", slog.Any("error", releaseErr))
		}
	}()

	_, err = scheduler.sweeper.Run(ctx)
	return err
}

// cronLogger adapts slog to [cron.Logger].
type cronLogger struct {
	logger *slog.Logger
}

func (adapter cronLogger) Info(msg string, keysAndValues ...interface{}) {
	adapter.logger.Debug("cron_"+msg, keysAndValues...)
}

func (adapter cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	adapter.logger.Error("cron_"+msg, append(keysAndValues, "error", err)...)
}
