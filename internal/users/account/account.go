// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account owns the Account entity, its persistence, and the profile
operations a signed-in user performs on it.

It provides the explicit mutation pipeline ([Changes]) that every write path
goes through, so secret values are hashed exactly once at the mutation site
and never by an implicit hook.

# Architecture

  - Entities: Account, Registration.
  - Storage: Store contract with Postgres and in-memory implementations.
  - Profile: Photo upload, profile edits, and irreversible deletion.
*/
package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/authkeeper/internal/platform/ctxkey"
	"github.com/taibuivan/authkeeper/internal/platform/sec"
	"github.com/taibuivan/authkeeper/pkg/uuid"
)

// # Domain Entities

// Account is a registered principal.
//
// Secret fields are never serialized and are only populated by the store
// when the caller asks for them (see [WithPassword] and friends).
type Account struct {
	ID                string       `json:"id"`
	FirstName         string       `json:"firstname"`
	LastName          string       `json:"lastname"`
	Email             string       `json:"email"`
	Role              sec.UserRole `json:"role"`
	IsEmailVerified   bool         `json:"isEmailVerified"`
	ImageName         *string      `json:"imageName"`
	ImageURL          *string      `json:"imageUrl"`
	PasswordChangedAt *time.Time   `json:"passwordChangedAt,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`

	// Secrets
	PasswordHash        string     `json:"-"`
	OTPHash             *string    `json:"-"`
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	RefreshTokenHash    *string    `json:"-"`
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at issuedAt. Both sides are compared at microsecond precision, the
// resolution of the token's issue time and of the stored timestamp.
func (account *Account) ChangedPasswordAfter(issuedAt time.Time) bool {
	if account.PasswordChangedAt == nil {
		return false
	}
	changedAt := account.PasswordChangedAt.Truncate(time.Microsecond)
	return issuedAt.Truncate(time.Microsecond).Before(changedAt)
}

// HasRefreshToken reports whether the stored refresh hash equals tokenHash.
func (account *Account) HasRefreshToken(tokenHash string) bool {
	return account.RefreshTokenHash != nil && *account.RefreshTokenHash == tokenHash
}

// HasOTP reports whether the stored OTP hash equals otpHash.
func (account *Account) HasOTP(otpHash string) bool {
	return account.OTPHash != nil && *account.OTPHash == otpHash
}

// # Registration

// PasswordHasher is the slow, salted hash applied to user passwords.
type PasswordHasher interface {
	HashPassword(plain string) (string, error)
	CheckPasswordHash(plain, hash string) bool
}

// Registration is the input of a first-time signup.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

/*
New builds an unverified account ready for [Store.Create].

Description: Hashes the password with the slow hasher and the OTP with the
fast token hash. passwordChangedAt stays empty for a brand new account.

Parameters:
  - hasher: PasswordHasher
  - registration: Registration
  - otp: string (raw code that will be emailed)
  - now: time.Time

Returns:
  - *Account: Entity with secrets populated
  - error: Hashing failures
*/
func New(hasher PasswordHasher, registration Registration, otp string, now time.Time) (*Account, error) {
	passwordHash, err := hasher.HashPassword(registration.Password)
	if err != nil {
		return nil, fmt.Errorf("account_new_hash_failed: %w", err)
	}

	otpHash := sec.HashToken(otp)
	now = now.UTC()

	return &Account{
		ID:              uuid.New(),
		FirstName:       strings.TrimSpace(registration.FirstName),
		LastName:        strings.TrimSpace(registration.LastName),
		Email:           NormalizeEmail(registration.Email),
		Role:            sec.RoleUser,
		IsEmailVerified: false,
		CreatedAt:       now,
		UpdatedAt:       now,
		PasswordHash:    passwordHash,
		OTPHash:         &otpHash,
	}, nil
}

// emailFolder lowercases without locale-specific rules.
var emailFolder = cases.Lower(language.Und)

// NormalizeEmail trims, NFC-normalizes, and lowercases an address so lookups
// and the unique index agree on one spelling.
func NormalizeEmail(email string) string {
	return emailFolder.String(norm.NFC.String(strings.TrimSpace(email)))
}

// # Context Helpers

// WithAccount returns a new context carrying the resolved session account.
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, ctxkey.KeyAccount, account)
}

// FromContext retrieves the session account, or nil when the request is anonymous.
func FromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(ctxkey.KeyAccount).(*Account)
	return account
}
