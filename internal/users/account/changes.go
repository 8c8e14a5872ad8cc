// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taibuivan/authkeeper/internal/platform/sec"
)

// # Mutation Pipeline

// column is a tri-state update of one nullable column: untouched, set to a
// value, or cleared to NULL (set with a nil value).
type column[T any] struct {
	set   bool
	value *T
}

func (c *column[T]) assign(value T) { c.set, c.value = true, &value }
func (c *column[T]) clear()         { c.set, c.value = true, nil }

// Changes is one logical mutation of an account, applied atomically by
// [Store.Apply]. Setters that take a secret hash it exactly once, at the call.
//
// Guards turn the write into a compare-and-set: when a guard does not hold at
// write time nothing is written and the store returns [ErrPrecondition].
type Changes struct {
	firstName           column[string]
	lastName            column[string]
	passwordHash        column[string]
	passwordChangedAt   column[time.Time]
	isEmailVerified     column[bool]
	otpHash             column[string]
	resetTokenHash      column[string]
	resetTokenExpiresAt column[time.Time]
	refreshTokenHash    column[string]
	imageName           column[string]

	expectOTPHash     *string
	expectResetHash   *string
	expectResetAfter  time.Time
	expectUnverified  bool
	expectImage       bool
	expectImageName   *string
}

// NewChanges starts an empty mutation.
func NewChanges() *Changes {
	return &Changes{}
}

// # Setters

// SetName replaces both name fields. Values are stored trimmed.
func (changes *Changes) SetName(firstName, lastName string) *Changes {
	changes.firstName.assign(strings.TrimSpace(firstName))
	changes.lastName.assign(strings.TrimSpace(lastName))
	return changes
}

// SetPassword hashes plain and stamps passwordChangedAt with now. Tokens minted
// at or after now stay valid while every earlier token fails
// [Account.ChangedPasswordAfter].
func (changes *Changes) SetPassword(hasher PasswordHasher, plain string, now time.Time) error {
	hash, err := hasher.HashPassword(plain)
	if err != nil {
		return fmt.Errorf("account_changes_hash_password_failed: %w", err)
	}
	changes.passwordHash.assign(hash)
	changes.passwordChangedAt.assign(now.UTC().Truncate(time.Microsecond))
	return nil
}

// SetOTP stores the hash of a freshly generated verification code.
func (changes *Changes) SetOTP(code string) *Changes {
	changes.otpHash.assign(sec.HashToken(code))
	return changes
}

// MarkVerified flags the email as verified and consumes the OTP.
func (changes *Changes) MarkVerified() *Changes {
	changes.isEmailVerified.assign(true)
	changes.otpHash.clear()
	return changes
}

// SetRefreshToken stores the hash of the current refresh token.
func (changes *Changes) SetRefreshToken(token string) *Changes {
	changes.refreshTokenHash.assign(sec.HashToken(token))
	return changes
}

// ClearRefreshToken revokes the stored refresh token.
func (changes *Changes) ClearRefreshToken() *Changes {
	changes.refreshTokenHash.clear()
	return changes
}

// SetResetToken stores the hash of a reset token and its expiry together.
func (changes *Changes) SetResetToken(token string, expiresAt time.Time) *Changes {
	changes.resetTokenHash.assign(sec.HashToken(token))
	changes.resetTokenExpiresAt.assign(expiresAt.UTC())
	return changes
}

// ClearResetToken removes both reset fields together.
func (changes *Changes) ClearResetToken() *Changes {
	changes.resetTokenHash.clear()
	changes.resetTokenExpiresAt.clear()
	return changes
}

// SetImage records the object key of the current profile photo.
func (changes *Changes) SetImage(name string) *Changes {
	changes.imageName.assign(name)
	return changes
}

// # Guards

// ExpectOTP requires the stored OTP hash to equal the hash of code.
func (changes *Changes) ExpectOTP(code string) *Changes {
	hash := sec.HashToken(code)
	changes.expectOTPHash = &hash
	return changes
}

// ExpectResetToken requires the stored reset hash to equal the hash of token
// and its expiry to be later than now.
func (changes *Changes) ExpectResetToken(token string, now time.Time) *Changes {
	hash := sec.HashToken(token)
	changes.expectResetHash = &hash
	changes.expectResetAfter = now.UTC()
	return changes
}

// ExpectUnverified requires the account to still be unverified.
func (changes *Changes) ExpectUnverified() *Changes {
	changes.expectUnverified = true
	return changes
}

// ExpectImage requires the stored photo key to still be previous. A nil
// previous requires the account to have no photo.
func (changes *Changes) ExpectImage(previous *string) *Changes {
	changes.expectImage = true
	if previous != nil {
		name := *previous
		changes.expectImageName = &name
	}
	return changes
}

// # Inspection

// errEmptyChanges is returned by [Changes.Validate] when nothing would be written.
var errEmptyChanges = errors.New("account: changes touch no column")

// Validate rejects mutations that would break a stored invariant.
func (changes *Changes) Validate() error {
	if changes.Empty() {
		return errEmptyChanges
	}
	if changes.resetTokenHash.set != changes.resetTokenExpiresAt.set {
		return errors.New("account: reset token hash and expiry must change together")
	}
	if changes.resetTokenHash.set && (changes.resetTokenHash.value == nil) != (changes.resetTokenExpiresAt.value == nil) {
		return errors.New("account: reset token hash and expiry must both be set or both cleared")
	}
	if changes.isEmailVerified.set && *changes.isEmailVerified.value && changes.otpHash.set && changes.otpHash.value != nil {
		return errors.New("account: a verified account cannot carry an otp")
	}
	return nil
}

// Empty reports whether the mutation touches no column.
func (changes *Changes) Empty() bool {
	return !(changes.firstName.set || changes.lastName.set || changes.passwordHash.set ||
		changes.passwordChangedAt.set || changes.isEmailVerified.set || changes.otpHash.set ||
		changes.resetTokenHash.set || changes.resetTokenExpiresAt.set ||
		changes.refreshTokenHash.set || changes.imageName.set)
}

// Guarded reports whether the mutation carries at least one guard.
func (changes *Changes) Guarded() bool {
	return changes.expectOTPHash != nil || changes.expectResetHash != nil ||
		changes.expectUnverified || changes.expectImage
}

// applyTo copies every touched column onto target. Stores use it to keep the
// in-memory view consistent with what was persisted.
func (changes *Changes) applyTo(target *Account, now time.Time) {
	if changes.firstName.set {
		target.FirstName = *changes.firstName.value
	}
	if changes.lastName.set {
		target.LastName = *changes.lastName.value
	}
	if changes.passwordHash.set {
		target.PasswordHash = *changes.passwordHash.value
	}
	if changes.passwordChangedAt.set {
		target.PasswordChangedAt = changes.passwordChangedAt.value
	}
	if changes.isEmailVerified.set {
		target.IsEmailVerified = *changes.isEmailVerified.value
	}
	if changes.otpHash.set {
		target.OTPHash = changes.otpHash.value
	}
	if changes.resetTokenHash.set {
		target.ResetTokenHash = changes.resetTokenHash.value
	}
	if changes.resetTokenExpiresAt.set {
		target.ResetTokenExpiresAt = changes.resetTokenExpiresAt.value
	}
	if changes.refreshTokenHash.set {
		target.RefreshTokenHash = changes.refreshTokenHash.value
	}
	if changes.imageName.set {
		target.ImageName = changes.imageName.value
	}
	target.UpdatedAt = now.UTC()
}

// holds reports whether every guard is satisfied by current at time of write.
func (changes *Changes) holds(current *Account) bool {
	if changes.expectOTPHash != nil && !current.HasOTP(*changes.expectOTPHash) {
		return false
	}
	if changes.expectImage && !sameImage(current.ImageName, changes.expectImageName) {
		return false
	}
	if changes.expectUnverified && current.IsEmailVerified {
		return false
	}
	if changes.expectResetHash != nil {
		if current.ResetTokenHash == nil || *current.ResetTokenHash != *changes.expectResetHash {
			return false
		}
		if current.ResetTokenExpiresAt == nil || !current.ResetTokenExpiresAt.After(changes.expectResetAfter) {
			return false
		}
	}
	return true
}

func sameImage(current, expected *string) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return *current == *expected
}
