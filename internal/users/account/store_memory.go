// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
)

// # In-Memory Implementation

// MemoryStore implements [Store] behind a single mutex. It backs tests and
// local runs without Postgres, and honours the same uniqueness and guard
// rules as the SQL store.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		now:      time.Now,
	}
}

// copyAccount returns a detached copy with only the requested secrets kept.
func copyAccount(source *Account, set Secret) *Account {
	clone := *source
	clone.ImageURL = nil
	if !set.has(WithPassword) {
		clone.PasswordHash = ""
	}
	if !set.has(WithOTP) {
		clone.OTPHash = nil
	}
	if !set.has(WithResetToken) {
		clone.ResetTokenHash = nil
		clone.ResetTokenExpiresAt = nil
	}
	if !set.has(WithRefreshToken) {
		clone.RefreshTokenHash = nil
	}
	return &clone
}

// Create implements [Store].
func (store *MemoryStore) Create(_ context.Context, account *Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, existing := range store.accounts {
		if existing.Email == account.Email {
			return apperr.DuplicateKey("An account with this email already exists.", nil)
		}
	}
	if _, taken := store.accounts[account.ID]; taken {
		return apperr.DuplicateKey("Account id collision.", nil)
	}

	store.accounts[account.ID] = copyAccount(account, WithPassword|WithOTP|WithResetToken|WithRefreshToken)
	return nil
}

// FindByID implements [Store].
func (store *MemoryStore) FindByID(_ context.Context, id string, secrets ...Secret) (*Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	account, ok := store.accounts[id]
	if !ok {
		return nil, errAccountNotFound()
	}
	return copyAccount(account, secretSet(secrets)), nil
}

// FindByEmail implements [Store].
func (store *MemoryStore) FindByEmail(_ context.Context, email string, secrets ...Secret) (*Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	email = NormalizeEmail(email)
	for _, account := range store.accounts {
		if account.Email == email {
			return copyAccount(account, secretSet(secrets)), nil
		}
	}
	return nil, errAccountNotFound()
}

// FindByRefreshToken implements [Store].
func (store *MemoryStore) FindByRefreshToken(_ context.Context, id, tokenHash string) (*Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	account, ok := store.accounts[id]
	if !ok || tokenHash == "" || !account.HasRefreshToken(tokenHash) {
		return nil, errAccountNotFound()
	}
	return copyAccount(account, WithRefreshToken), nil
}

// FindByResetToken implements [Store].
func (store *MemoryStore) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (*Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, account := range store.accounts {
		if account.ResetTokenHash == nil || *account.ResetTokenHash != tokenHash {
			continue
		}
		if account.ResetTokenExpiresAt == nil || !account.ResetTokenExpiresAt.After(now) {
			return nil, errAccountNotFound()
		}
		return copyAccount(account, WithResetToken), nil
	}
	return nil, errAccountNotFound()
}

// Apply implements [Store].
func (store *MemoryStore) Apply(_ context.Context, id string, changes *Changes) (*Account, error) {
	if err := changes.Validate(); err != nil {
		return nil, apperr.Internal(err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	current, ok := store.accounts[id]
	if !ok {
		return nil, errAccountNotFound()
	}
	if !changes.holds(current) {
		return nil, ErrPrecondition
	}

	if changes.resetTokenHash.set && changes.resetTokenHash.value != nil {
		for otherID, other := range store.accounts {
			if otherID != id && other.ResetTokenHash != nil && *other.ResetTokenHash == *changes.resetTokenHash.value {
				return nil, apperr.DuplicateKey("Reset token collision.", nil)
			}
		}
	}

	updated := *current
	changes.applyTo(&updated, store.now())
	store.accounts[id] = &updated

	return copyAccount(&updated, 0), nil
}

// Delete implements [Store].
func (store *MemoryStore) Delete(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.accounts[id]; !ok {
		return errAccountNotFound()
	}
	delete(store.accounts, id)
	return nil
}

// FindUnverifiedBefore implements [Store].
func (store *MemoryStore) FindUnverifiedBefore(_ context.Context, cutoff time.Time) ([]*Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var accounts []*Account
	for _, account := range store.accounts {
		if !account.IsEmailVerified && !account.CreatedAt.After(cutoff) {
			accounts = append(accounts, copyAccount(account, 0))
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// DeleteUnverified implements [Store].
func (store *MemoryStore) DeleteUnverified(_ context.Context, id string, cutoff time.Time) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	account, ok := store.accounts[id]
	if !ok || account.IsEmailVerified || account.CreatedAt.After(cutoff) {
		return false, nil
	}
	delete(store.accounts, id)
	return true, nil
}
