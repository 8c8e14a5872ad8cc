// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the session lifecycle of an account.

It moves a principal between the unverified, logged-out and logged-in states:
signup with an emailed one-time code, verification, login, password reset,
password change, logout, and the per-request session resolution that accepts
either an access token or a refresh token.

Architecture:

  - Service: Orchestrates every state transition over [account.Store].
  - Resolution: Explicit result of resolving a request's credentials.
  - Handler: HTTP surface plus the session guards used by other packages.

Every secret (password, OTP, reset token, refresh token) reaches storage only
through the [account.Changes] pipeline, which hashes it once at the call.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/constants"
	"github.com/taibuivan/authkeeper/internal/platform/ctxutil"
	"github.com/taibuivan/authkeeper/internal/platform/mail"
	"github.com/taibuivan/authkeeper/internal/platform/sec"
	"github.com/taibuivan/authkeeper/internal/users/account"
)

// # Contracts & Types

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	// Issue creates a signed token of the given kind for subjectID.
	Issue(subjectID string, kind sec.TokenKind) (string, error)

	// Verify checks signature, expiry and kind.
	//
	// # Returns
	//   - The subject and issue time, or an error wrapping [sec.ErrInvalidToken].
	Verify(token string, kind sec.TokenKind) (*sec.Claims, error)
}

// Notifier delivers the lifecycle emails.
type Notifier interface {
	SendVerificationCode(ctx context.Context, notice mail.VerificationNotice) error
	SendPasswordReset(ctx context.Context, notice mail.ResetNotice) error
}

// Options holds the tunables of the [Service]. Zero values fall back to
// production defaults.
type Options struct {
	// FrontendURL is the web app origin the reset link points at.
	FrontendURL string

	// ResetTTL is how long a reset token stays valid.
	ResetTTL time.Duration

	// Now is the time source.
	Now func() time.Time

	// GenerateOTP returns a fresh verification code.
	GenerateOTP func() (string, error)

	// GenerateResetToken returns a fresh raw reset token.
	GenerateResetToken func() (string, error)
}

func (options Options) withDefaults() Options {
	if options.ResetTTL <= 0 {
		options.ResetTTL = constants.ResetTokenTTL
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.GenerateOTP == nil {
		options.GenerateOTP = sec.GenerateOTP
	}
	if options.GenerateResetToken == nil {
		options.GenerateResetToken = func() (string, error) {
			return sec.GenerateSecureToken(constants.ResetTokenBytes)
		}
	}
	options.FrontendURL = strings.TrimRight(options.FrontendURL, "/")
	return options
}

// Service implements the account session use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, token
// issuance or the resolution order must be reviewed with care.
type Service struct {
	store    account.Store
	hasher   account.PasswordHasher
	tokens   TokenIssuer
	notifier Notifier
	options  Options
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(store account.Store, hasher account.PasswordHasher, tokens TokenIssuer, notifier Notifier, options Options) *Service {
	return &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		options:  options.withDefaults(),
	}
}

// Session is a freshly authenticated account plus its token pair.
type Session struct {
	Account      *account.Account
	AccessToken  string
	RefreshToken string
}

// # Registration Flow

/*
Signup enrolls a new account and emails its verification code.

Description: A never-seen address is created unverified with a fresh OTP. An
address that exists but never verified gets a fresh OTP and a new email, then
fails with VerificationRequired so the caller moves to the verification step.
If the first email cannot be delivered the new account is removed again.

Parameters:
  - context: context.Context
  - registration: account.Registration
  - ip: string (requester address, used in the email)

Returns:
  - *account.Account: Created entity
  - error: EmailInUse, VerificationRequired, MailDeliveryFailure, or storage errors
*/
func (service *Service) Signup(context context.Context, registration account.Registration, ip string) (*account.Account, error) {
	existing, err := service.store.FindByEmail(context, registration.Email)
	switch {
	case err == nil:
		if existing.IsEmailVerified {
			return nil, apperr.EmailInUse()
		}
		if err := service.refreshOTP(context, existing, ip); err != nil {
			return nil, err
		}
		return nil, apperr.VerificationRequired()
	case !apperr.HasCode(err, apperr.CodeNotFound):
		return nil, fmt.Errorf("auth_service_signup_lookup_failed: %w", err)
	}

	otp, err := service.options.GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("auth_service_generate_otp_failed: %w", err)
	}

	created, err := account.New(service.hasher, registration, otp, service.options.Now())
	if err != nil {
		return nil, passwordFailure("auth_service_signup_failed", err)
	}

	// The store's unique index settles concurrent signups for one address.
	if err := service.store.Create(context, created); err != nil {
		if apperr.HasCode(err, apperr.CodeDuplicateKey) {
			return nil, apperr.EmailInUse()
		}
		return nil, fmt.Errorf("auth_service_signup_create_failed: %w", err)
	}

	logger := ctxutil.GetLogger(context)
	if err := service.notifier.SendVerificationCode(context, mail.VerificationNotice{Email: created.Email, Code: otp, IP: ip}); err != nil {
		if deleteErr := service.store.Delete(context, created.ID); deleteErr != nil {
			logger.Error("signup_rollback_failed", slog.String("account_id", created.ID), slog.Any("error", deleteErr))
		}
		return nil, apperr.MailDeliveryFailure(err)
	}

	logger.Info("account_created", slog.String("account_id", created.ID))
	return service.store.FindByID(context, created.ID)
}

/*
VerifyEmail consumes the emailed code and signs the account in.

Parameters:
  - context: context.Context
  - email: string
  - otp: string

Returns:
  - *Session: Verified account with a new token pair
  - error: NotFound, AlreadyVerified, InvalidOTP, or storage errors
*/
func (service *Service) VerifyEmail(context context.Context, email, otp string) (*Session, error) {
	found, err := service.store.FindByEmail(context, email)
	if err != nil {
		return nil, err
	}
	if found.IsEmailVerified {
		return nil, apperr.AlreadyVerified()
	}

	accessToken, refreshToken, err := service.issuePair(found.ID)
	if err != nil {
		return nil, err
	}

	changes := account.NewChanges().
		MarkVerified().
		SetRefreshToken(refreshToken).
		ExpectUnverified().
		ExpectOTP(otp)

	verified, err := service.store.Apply(context, found.ID, changes)
	if errors.Is(err, account.ErrPrecondition) {
		// Either the code is wrong or a concurrent request verified first.
		current, reloadErr := service.store.FindByID(context, found.ID)
		if reloadErr == nil && current.IsEmailVerified {
			return nil, apperr.AlreadyVerified()
		}
		return nil, apperr.InvalidOTP()
	}
	if err != nil {
		return nil, fmt.Errorf("auth_service_verify_failed: %w", err)
	}

	ctxutil.GetLogger(context).Info("account_verified", slog.String("account_id", verified.ID))
	return &Session{Account: verified, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

/*
ResendVerification emails a brand new code to an unverified account.

Parameters:
  - context: context.Context
  - email: string
  - ip: string

Returns:
  - error: NotFound, AlreadyVerified, MailDeliveryFailure
*/
func (service *Service) ResendVerification(context context.Context, email, ip string) error {
	found, err := service.store.FindByEmail(context, email)
	if err != nil {
		return err
	}
	if found.IsEmailVerified {
		return apperr.AlreadyVerified()
	}
	return service.refreshOTP(context, found, ip)
}

// refreshOTP replaces the stored code of an unverified account and emails the
// new one. The old code stops working even if the email fails.
func (service *Service) refreshOTP(context context.Context, target *account.Account, ip string) error {
	otp, err := service.options.GenerateOTP()
	if err != nil {
		return fmt.Errorf("auth_service_generate_otp_failed: %w", err)
	}

	_, err = service.store.Apply(context, target.ID, account.NewChanges().SetOTP(otp).ExpectUnverified())
	if errors.Is(err, account.ErrPrecondition) {
		return apperr.AlreadyVerified()
	}
	if err != nil {
		return fmt.Errorf("auth_service_refresh_otp_failed: %w", err)
	}

	if err := service.notifier.SendVerificationCode(context, mail.VerificationNotice{Email: target.Email, Code: otp, IP: ip}); err != nil {
		return apperr.MailDeliveryFailure(err)
	}
	return nil
}

// # Authentication Flow

/*
Login validates credentials and issues a token pair.

Description: An unverified account gets a fresh code by email and the call
fails with VerificationRequired instead of signing in.

Parameters:
  - context: context.Context
  - email: string
  - password: string
  - ip: string

Returns:
  - *Session: Account and token pair
  - error: NotFound, InvalidCredentials, VerificationRequired, MailDeliveryFailure
*/
func (service *Service) Login(context context.Context, email, password, ip string) (*Session, error) {
	found, err := service.store.FindByEmail(context, email, account.WithPassword)
	if err != nil {
		return nil, err
	}

	if !service.hasher.CheckPasswordHash(password, found.PasswordHash) {
		return nil, apperr.InvalidCredentials("Password is incorrect. Please try again.")
	}

	if !found.IsEmailVerified {
		if err := service.refreshOTP(context, found, ip); err != nil {
			return nil, err
		}
		return nil, apperr.VerificationRequired()
	}

	session, err := service.startSession(context, found.ID, account.NewChanges())
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).Info("account_logged_in", slog.String("account_id", found.ID))
	return session, nil
}

/*
Logout revokes the stored refresh token of the account.

Description: Idempotent. An account that no longer exists is not an error.

Parameters:
  - context: context.Context
  - target: *account.Account

Returns:
  - error: Storage failures only
*/
func (service *Service) Logout(context context.Context, target *account.Account) error {
	_, err := service.store.Apply(context, target.ID, account.NewChanges().ClearRefreshToken())
	if err != nil && !apperr.HasCode(err, apperr.CodeNotFound) {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}
	return nil
}

// # Password Recovery

/*
ForgotPassword emails a single-use reset link.

Description: Stores the hash of a random token with its expiry, then mails the
raw token. When the email fails both reset fields are cleared again so no live
token exists that the owner never received.

Parameters:
  - context: context.Context
  - email: string
  - ip: string

Returns:
  - error: NotFound, MailDeliveryFailure, or storage errors
*/
func (service *Service) ForgotPassword(context context.Context, email, ip string) error {
	found, err := service.store.FindByEmail(context, email)
	if err != nil {
		return err
	}

	token, err := service.options.GenerateResetToken()
	if err != nil {
		return fmt.Errorf("auth_service_generate_reset_token_failed: %w", err)
	}

	expiresAt := service.options.Now().Add(service.options.ResetTTL)
	if _, err := service.store.Apply(context, found.ID, account.NewChanges().SetResetToken(token, expiresAt)); err != nil {
		return fmt.Errorf("auth_service_save_reset_token_failed: %w", err)
	}

	notice := mail.ResetNotice{
		Email:    found.Email,
		ResetURL: service.options.FrontendURL + "/reset-password/?token=" + token,
		IP:       ip,
	}
	if err := service.notifier.SendPasswordReset(context, notice); err != nil {
		if _, clearErr := service.store.Apply(context, found.ID, account.NewChanges().ClearResetToken()); clearErr != nil {
			ctxutil.GetLogger(context).Error("reset_token_rollback_failed",
				slog.String("account_id", found.ID),
				slog.Any("error", clearErr),
			)
		}
		return apperr.MailDeliveryFailure(err)
	}

	ctxutil.GetLogger(context).Info("password_reset_requested", slog.String("account_id", found.ID))
	return nil
}

/*
ResetPassword completes the forgot-password flow.

Description: The token must hash to a stored, unexpired value. The new
password, the cleared reset fields and the revoked refresh token are written
in one guarded statement, so a token can be redeemed at most once.

Parameters:
  - context: context.Context
  - token: string (raw value from the email link)
  - newPassword: string

Returns:
  - *account.Account: Updated entity
  - error: InvalidOrExpiredToken, or storage errors
*/
func (service *Service) ResetPassword(context context.Context, token, newPassword string) (*account.Account, error) {
	if token == "" {
		return nil, apperr.InvalidOrExpiredToken()
	}

	now := service.options.Now()
	found, err := service.store.FindByResetToken(context, sec.HashToken(token), now)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return nil, apperr.InvalidOrExpiredToken()
		}
		return nil, fmt.Errorf("auth_service_reset_lookup_failed: %w", err)
	}

	// The reset also revokes the stored refresh session.
	changes := account.NewChanges().ClearResetToken().ClearRefreshToken().ExpectResetToken(token, now)
	if err := changes.SetPassword(service.hasher, newPassword, now); err != nil {
		return nil, passwordFailure("auth_service_reset_hash_failed", err)
	}

	updated, err := service.store.Apply(context, found.ID, changes)
	if errors.Is(err, account.ErrPrecondition) {
		return nil, apperr.InvalidOrExpiredToken()
	}
	if err != nil {
		return nil, fmt.Errorf("auth_service_reset_password_failed: %w", err)
	}

	ctxutil.GetLogger(context).Info("password_reset_completed", slog.String("account_id", updated.ID))
	return updated, nil
}

/*
ChangePassword replaces the password of a signed-in account.

Description: Verifies the old password, stores the new one and a fresh
refresh token hash in one write. Every token issued before the change stops
resolving.

Parameters:
  - context: context.Context
  - target: *account.Account (session account)
  - oldPassword: string
  - newPassword: string

Returns:
  - *Session: Account with the rotated token pair
  - error: InvalidCredentials, NotFound, or storage errors
*/
func (service *Service) ChangePassword(context context.Context, target *account.Account, oldPassword, newPassword string) (*Session, error) {
	found, err := service.store.FindByID(context, target.ID, account.WithPassword)
	if err != nil {
		return nil, err
	}

	if !service.hasher.CheckPasswordHash(oldPassword, found.PasswordHash) {
		return nil, apperr.InvalidCredentials("Old password is incorrect. Please try again.")
	}

	changes := account.NewChanges()
	if err := changes.SetPassword(service.hasher, newPassword, service.options.Now()); err != nil {
		return nil, passwordFailure("auth_service_change_hash_failed", err)
	}

	session, err := service.startSession(context, found.ID, changes)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).Info("password_changed", slog.String("account_id", found.ID))
	return session, nil
}

// passwordFailure turns an over-long password into a validation error and
// wraps every other hashing failure.
func passwordFailure(operation string, err error) error {
	if errors.Is(err, sec.ErrPasswordTooLong) {
		return apperr.ValidationError(fmt.Sprintf("Password must be at most %d bytes.", sec.MaxPasswordBytes))
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// # Token Helpers

// issuePair mints an access and a refresh token for subjectID.
func (service *Service) issuePair(subjectID string) (accessToken, refreshToken string, err error) {
	accessToken, err = service.tokens.Issue(subjectID, sec.KindAccess)
	if err != nil {
		return "", "", fmt.Errorf("auth_service_access_token_failed: %w", err)
	}
	refreshToken, err = service.tokens.Issue(subjectID, sec.KindRefresh)
	if err != nil {
		return "", "", fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}
	return accessToken, refreshToken, nil
}

// startSession issues a token pair and persists the refresh hash together with
// any other pending changes.
func (service *Service) startSession(context context.Context, id string, changes *account.Changes) (*Session, error) {
	accessToken, refreshToken, err := service.issuePair(id)
	if err != nil {
		return nil, err
	}

	updated, err := service.store.Apply(context, id, changes.SetRefreshToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &Session{Account: updated, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
