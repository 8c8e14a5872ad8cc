// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cleanup removes accounts that never verified their email.

Architecture:

  - Sweeper: One pass over stale unverified accounts, best effort per account.
  - Scheduler: Runs the sweeper on a cron schedule in UTC, guarded by a
    distributed lock so only one replica sweeps at a time.
*/
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/authkeeper/internal/users/account"
)

// # Contracts

// Store is the slice of [account.Store] the sweep needs.
type Store interface {
	FindUnverifiedBefore(ctx context.Context, cutoff time.Time) ([]*account.Account, error)
	DeleteUnverified(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

// Report summarizes one sweep.
type Report struct {
	Cutoff     time.Time
	Candidates int
	Deleted    int
	Skipped    int
	Failed     int
}

// Sweeper deletes accounts still unverified after the retention window.
type Sweeper struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewSweeper creates a sweeper with the given retention window.
func NewSweeper(store Store, retention time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, retention: retention, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (sweeper *Sweeper) WithClock(now func() time.Time) *Sweeper {
	sweeper.now = now
	return sweeper
}

/*
Run performs one sweep.

Description: Each account is deleted in its own statement that re-checks the
unverified predicate, so an account verified mid-sweep survives. A failure on
one account does not stop the others; failures are joined into the returned
error.

Parameters:
  - ctx: context.Context

Returns:
  - Report: Counts for this pass
  - error: Listing failure, or the joined per-account failures
*/
func (sweeper *Sweeper) Run(ctx context.Context) (Report, error) {
	cutoff := sweeper.now().UTC().Add(-sweeper.retention)
	report := Report{Cutoff: cutoff}

	candidates, err := sweeper.store.FindUnverifiedBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("cleanup_list_unverified_failed: %w", err)
	}
	report.Candidates = len(candidates)

	var errs []error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		deleted, err := sweeper.store.DeleteUnverified(ctx, candidate.ID, cutoff)
		switch {
		case err != nil:
			report.Failed++
			errs = append(errs, fmt.Errorf("cleanup_delete_failed: account %s: %w", candidate.ID, err))
			sweeper.logger.Error("unverified_account_delete_failed",
				slog.String("account_id", candidate.ID),
				slog.Any("error", err),
			)
		case deleted:
			report.Deleted++
			sweeper.logger.Info("unverified_account_deleted",
				slog.String("account_id", candidate.ID),
				slog.String("email", candidate.Email),
				slog.Time("created_at", candidate.CreatedAt),
			)
		default:
			report.Skipped++
		}
	}

	sweeper.logger.Info("unverified_cleanup_finished",
		slog.Time("cutoff", cutoff),
		slog.Int("candidates", report.Candidates),
		slog.Int("deleted", report.Deleted),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)

	return report, errors.Join(errs...)
}
