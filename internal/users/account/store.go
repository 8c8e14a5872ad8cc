// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"time"
)

// # Secret Selection

// Secret selects a secret column to include in a read.
type Secret uint8

const (
	WithPassword Secret = 1 << iota
	WithOTP
	WithResetToken
	WithRefreshToken
)

// secretSet folds selectors into a bitmask.
func secretSet(secrets []Secret) Secret {
	var set Secret
	for _, secret := range secrets {
		set |= secret
	}
	return set
}

func (set Secret) has(secret Secret) bool { return set&secret != 0 }

// ErrPrecondition is returned by [Store.Apply] when a guard on [Changes] did
// not hold at write time. Nothing was written.
var ErrPrecondition = errors.New("account: precondition failed")

// # Repository Contracts

// Store defines the persistence contract for accounts.
//
// Email uniqueness is enforced by the store itself, so two concurrent signups
// for one address can never both succeed.
type Store interface {
	/*
		Create inserts a new account including its initial secrets.

		Parameters:
		  - context: context.Context
		  - account: *Account (from [New])

		Returns:
		  - error: apperr.DuplicateKey if the email is taken, or storage failures
	*/
	Create(context context.Context, account *Account) error

	/*
		FindByID retrieves an account by its unique ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)
		  - secrets: ...Secret (columns to include beyond the public ones)

		Returns:
		  - *Account: Loaded entity
		  - error: apperr.NotFound or storage failures
	*/
	FindByID(context context.Context, id string, secrets ...Secret) (*Account, error)

	/*
		FindByEmail retrieves an account by its normalized email address.

		Parameters:
		  - context: context.Context
		  - email: string
		  - secrets: ...Secret

		Returns:
		  - *Account: Loaded entity
		  - error: apperr.NotFound or storage failures
	*/
	FindByEmail(context context.Context, email string, secrets ...Secret) (*Account, error)

	/*
		FindByRefreshToken retrieves an account only if its stored refresh hash
		equals tokenHash.

		Parameters:
		  - context: context.Context
		  - id: string
		  - tokenHash: string

		Returns:
		  - *Account: Loaded entity
		  - error: apperr.NotFound when the id is unknown or the hash does not match
	*/
	FindByRefreshToken(context context.Context, id, tokenHash string) (*Account, error)

	/*
		FindByResetToken retrieves the account holding an unexpired reset token.

		Parameters:
		  - context: context.Context
		  - tokenHash: string
		  - now: time.Time

		Returns:
		  - *Account: Loaded entity
		  - error: apperr.NotFound when no live token matches
	*/
	FindByResetToken(context context.Context, tokenHash string, now time.Time) (*Account, error)

	/*
		Apply writes every column touched by changes in one atomic statement.

		Parameters:
		  - context: context.Context
		  - id: string
		  - changes: *Changes

		Returns:
		  - *Account: The account after the write (public columns)
		  - error: ErrPrecondition, apperr.NotFound, or storage failures
	*/
	Apply(context context.Context, id string, changes *Changes) (*Account, error)

	/*
		Delete removes an account permanently.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: apperr.NotFound or storage failures
	*/
	Delete(context context.Context, id string) error

	/*
		FindUnverifiedBefore lists unverified accounts created at or before cutoff.

		Parameters:
		  - context: context.Context
		  - cutoff: time.Time

		Returns:
		  - []*Account: Candidates for the cleanup sweep, oldest first
		  - error: Storage failures
	*/
	FindUnverifiedBefore(context context.Context, cutoff time.Time) ([]*Account, error)

	/*
		DeleteUnverified removes an account only if it is still unverified and
		created at or before cutoff.

		Parameters:
		  - context: context.Context
		  - id: string
		  - cutoff: time.Time

		Returns:
		  - bool: Whether a row was deleted
		  - error: Storage failures
	*/
	DeleteUnverified(context context.Context, id string, cutoff time.Time) (bool, error)
}
