// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/constants"
	"github.com/taibuivan/authkeeper/internal/platform/mail"
	"github.com/taibuivan/authkeeper/internal/platform/sec"
	"github.com/taibuivan/authkeeper/internal/users/account"
)

// # Fixtures

// fakeClock is a manually advanced time source shared by the service and the
// token signer.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *fakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

// recordingNotifier captures outgoing mail and can be told to fail.
type recordingNotifier struct {
	mu            sync.Mutex
	verifications []mail.VerificationNotice
	resets        []mail.ResetNotice
	fail          error
}

func (notifier *recordingNotifier) SendVerificationCode(_ context.Context, notice mail.VerificationNotice) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.fail != nil {
		return notifier.fail
	}
	notifier.verifications = append(notifier.verifications, notice)
	return nil
}

func (notifier *recordingNotifier) SendPasswordReset(_ context.Context, notice mail.ResetNotice) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.fail != nil {
		return notifier.fail
	}
	notifier.resets = append(notifier.resets, notice)
	return nil
}

func (notifier *recordingNotifier) lastCode() string {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.verifications) == 0 {
		return ""
	}
	return notifier.verifications[len(notifier.verifications)-1].Code
}

// sequenceOTP hands out the given codes in order, then repeats the last.
func sequenceOTP(codes ...string) func() (string, error) {
	var mu sync.Mutex
	index := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[index]
		if index < len(codes)-1 {
			index++
		}
		return code, nil
	}
}

type fixture struct {
	service  *Service
	store    *account.MemoryStore
	notifier *recordingNotifier
	clock    *fakeClock
	tokens   *sec.TokenService
}

func newFixture(t *testing.T, otps ...string) *fixture {
	t.Helper()
	if len(otps) == 0 {
		otps = []string{"123456"}
	}

	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := sec.NewTokenService("test-secret", constants.AuthIssuer, 15*time.Minute, 720*time.Hour)
	require.NoError(t, err)
	tokens.WithClock(clock.Now)

	store := account.NewMemoryStore()
	notifier := &recordingNotifier{}
	service := NewService(store, sec.NewPasswordHasher(bcrypt.MinCost), tokens, notifier, Options{
		FrontendURL: "https://app.example.com/",
		Now:         clock.Now,
		GenerateOTP: sequenceOTP(otps...),
	})

	return &fixture{service: service, store: store, notifier: notifier, clock: clock, tokens: tokens}
}

func registration(email string) account.Registration {
	return account.Registration{FirstName: "Ada", LastName: "Lovelace", Email: email, Password: "pw12345678"}
}

// signupVerified runs signup plus verification and returns the session.
func (f *fixture) signupVerified(t *testing.T, email string) *Session {
	t.Helper()
	ctx := context.Background()
	_, err := f.service.Signup(ctx, registration(email), "203.0.113.7")
	require.NoError(t, err)
	session, err := f.service.VerifyEmail(ctx, email, f.notifier.lastCode())
	require.NoError(t, err)
	return session
}

// # Registration

/*
TestService_SignupAndVerify covers the happy path and OTP mismatch.
*/
func TestService_SignupAndVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "123456")

	created, err := f.service.Signup(ctx, registration("a@x.com"), "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, created.IsEmailVerified)
	assert.Empty(t, created.PasswordHash)
	require.Len(t, f.notifier.verifications, 1)
	assert.Equal(t, "123456", f.notifier.verifications[0].Code)
	assert.Equal(t, "203.0.113.7", f.notifier.verifications[0].IP)

	_, err = f.service.VerifyEmail(ctx, "a@x.com", "000000")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidOTP))

	session, err := f.service.VerifyEmail(ctx, "a@x.com", "123456")
	require.NoError(t, err)
	assert.True(t, session.Account.IsEmailVerified)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)

	stored, err := f.store.FindByID(ctx, created.ID, account.WithOTP, account.WithRefreshToken)
	require.NoError(t, err)
	assert.Nil(t, stored.OTPHash)
	assert.True(t, stored.HasRefreshToken(sec.HashToken(session.RefreshToken)))

	_, err = f.service.VerifyEmail(ctx, "a@x.com", "123456")
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyVerified))
	assert.Equal(t, apperr.SignalLogin, err.Error())
}

/*
TestService_Signup_MailFailureRollsBack verifies the new account is removed
when the code cannot be delivered.
*/
func TestService_Signup_MailFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.fail = errors.New("provider down")

	_, err := f.service.Signup(ctx, registration("a@x.com"), "")
	assert.True(t, apperr.HasCode(err, apperr.CodeMailDelivery))

	_, err = f.store.FindByEmail(ctx, "a@x.com")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestService_Signup_ExistingAddress covers both existing-account branches.
*/
func TestService_Signup_ExistingAddress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "111111", "222222", "333333")

	_, err := f.service.Signup(ctx, registration("a@x.com"), "")
	require.NoError(t, err)

	_, err = f.service.Signup(ctx, registration("A@X.com"), "")
	assert.True(t, apperr.HasCode(err, apperr.CodeVerificationRequired))
	assert.Equal(t, "222222", f.notifier.lastCode())

	_, err = f.service.VerifyEmail(ctx, "a@x.com", "111111")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidOTP), "superseded code must not verify")

	_, err = f.service.VerifyEmail(ctx, "a@x.com", "222222")
	require.NoError(t, err)

	_, err = f.service.Signup(ctx, registration("a@x.com"), "")
	assert.True(t, apperr.HasCode(err, apperr.CodeEmailInUse))
	assert.Equal(t, apperr.SignalLogin, err.Error())
}

/*
TestService_ConcurrentSignup verifies one address never yields two accounts.
*/
func TestService_ConcurrentSignup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Signup(ctx, registration("race@x.com"), "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	candidates, err := f.store.FindUnverifiedBefore(ctx, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

/*
TestService_ResendVerification covers the resend branches.
*/
func TestService_ResendVerification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "111111", "222222")

	assert.True(t, apperr.HasCode(f.service.ResendVerification(ctx, "nobody@x.com", ""), apperr.CodeNotFound))

	_, err := f.service.Signup(ctx, registration("a@x.com"), "")
	require.NoError(t, err)

	require.NoError(t, f.service.ResendVerification(ctx, "a@x.com", ""))
	assert.Equal(t, "222222", f.notifier.lastCode())

	_, err = f.service.VerifyEmail(ctx, "a@x.com", "222222")
	require.NoError(t, err)

	assert.True(t, apperr.HasCode(f.service.ResendVerification(ctx, "a@x.com", ""), apperr.CodeAlreadyVerified))
}

// # Authentication

/*
TestService_Login covers credentials and the unverified redirect.
*/
func TestService_Login(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "111111", "222222")

	_, err := f.service.Login(ctx, "nobody@x.com", "pw12345678", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	_, err = f.service.Signup(ctx, registration("a@x.com"), "")
	require.NoError(t, err)

	_, err = f.service.Login(ctx, "a@x.com", "wrong-password", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))

	_, err = f.service.Login(ctx, "a@x.com", "pw12345678", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeVerificationRequired))
	assert.Equal(t, apperr.SignalVerifyEmail, err.Error())
	require.Len(t, f.notifier.verifications, 2, "a fresh code is mailed on unverified login")
	assert.Equal(t, "222222", f.notifier.lastCode())

	_, err = f.service.VerifyEmail(ctx, "a@x.com", "222222")
	require.NoError(t, err)

	session, err := f.service.Login(ctx, "a@x.com", "pw12345678", "")
	require.NoError(t, err)
	assert.Empty(t, session.Account.PasswordHash)

	resolved, err := f.service.ResolveSession(ctx, session.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, ResolvedViaAccess, resolved.Kind)
}

/*
TestService_Login_UnverifiedMailFailure verifies the secondary mail path
also surfaces delivery failures.
*/
func TestService_Login_UnverifiedMailFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.Signup(ctx, registration("a@x.com"), "")
	require.NoError(t, err)

	f.notifier.fail = errors.New("provider down")
	_, err = f.service.Login(ctx, "a@x.com", "pw12345678", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeMailDelivery))
}

// # Password Recovery

/*
TestService_ResetPassword_SingleUse verifies a reset token works once.
*/
func TestService_ResetPassword_SingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signupVerified(t, "a@x.com")

	require.NoError(t, f.service.ForgotPassword(ctx, "a@x.com", "198.51.100.1"))
	require.Len(t, f.notifier.resets, 1)

	link, err := url.Parse(f.notifier.resets[0].ResetURL)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", link.Host)
	assert.Equal(t, "/reset-password/", link.Path)
	token := link.Query().Get("token")
	assert.Len(t, token, 64)

	_, err = f.service.ResetPassword(ctx, token, "newpw123")
	require.NoError(t, err)

	_, err = f.service.ResetPassword(ctx, token, "other123")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidOrExpired))

	_, err = f.service.Login(ctx, "a@x.com", "newpw123", "")
	assert.NoError(t, err)

	stored, err := f.store.FindByEmail(ctx, "a@x.com", account.WithResetToken)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpiresAt)
}

/*
TestService_ResetPassword_Expired verifies the ten-minute window.
*/
func TestService_ResetPassword_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signupVerified(t, "a@x.com")

	require.NoError(t, f.service.ForgotPassword(ctx, "a@x.com", ""))
	link, err := url.Parse(f.notifier.resets[0].ResetURL)
	require.NoError(t, err)

	f.clock.Advance(constants.ResetTokenTTL + time.Second)

	_, err = f.service.ResetPassword(ctx, link.Query().Get("token"), "newpw123")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidOrExpired))

	_, err = f.service.ResetPassword(ctx, "", "newpw123")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidOrExpired))
}

/*
TestService_ForgotPassword_MailFailureClearsToken verifies no live reset token
survives an undelivered email.
*/
func TestService_ForgotPassword_MailFailureClearsToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signupVerified(t, "a@x.com")

	f.notifier.fail = errors.New("provider down")
	err := f.service.ForgotPassword(ctx, "a@x.com", "")
	assert.True(t, apperr.HasCode(err, apperr.CodeMailDelivery))

	stored, err := f.store.FindByEmail(ctx, "a@x.com", account.WithResetToken)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpiresAt)

	assert.True(t, apperr.HasCode(f.service.ForgotPassword(ctx, "nobody@x.com", ""), apperr.CodeNotFound))
}

// # Session Lifecycle

/*
TestService_PasswordChangeInvalidatesTokens verifies global invalidation.
*/
func TestService_PasswordChangeInvalidatesTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.signupVerified(t, "a@x.com")

	// Well inside the same one-second iat window.
	f.clock.Advance(1500 * time.Millisecond)

	_, err := f.service.ChangePassword(ctx, before.Account, "wrong-old", "brand-new-pw")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))

	after, err := f.service.ChangePassword(ctx, before.Account, "pw12345678", "brand-new-pw")
	require.NoError(t, err)

	stale, err := f.service.ResolveSession(ctx, before.AccessToken, before.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, Unauthorized, stale.Kind)

	fresh, err := f.service.ResolveSession(ctx, after.AccessToken, after.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, ResolvedViaAccess, fresh.Kind)

	viaRefresh, err := f.service.ResolveSession(ctx, "", after.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, ResolvedViaRefresh, viaRefresh.Kind)
}

/*
TestService_ResetInvalidatesTokens verifies a reset also kills prior sessions.
*/
func TestService_ResetInvalidatesTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.signupVerified(t, "a@x.com")

	f.clock.Advance(1500 * time.Millisecond)
	require.NoError(t, f.service.ForgotPassword(ctx, "a@x.com", ""))
	link, err := url.Parse(f.notifier.resets[0].ResetURL)
	require.NoError(t, err)
	updated, err := f.service.ResetPassword(ctx, link.Query().Get("token"), "newpw123")
	require.NoError(t, err)

	stored, err := f.store.FindByID(ctx, updated.ID, account.WithRefreshToken)
	require.NoError(t, err)
	assert.Nil(t, stored.RefreshTokenHash, "reset revokes the stored refresh session")

	resolution, err := f.service.ResolveSession(ctx, before.AccessToken, before.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, Unauthorized, resolution.Kind)

	// The old refresh token is still signature-valid but must never resolve again.
	f.clock.Advance(10 * 24 * time.Hour)
	resolution, err = f.service.ResolveSession(ctx, "", before.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, Unauthorized, resolution.Kind)
}

/*
TestService_PasswordChangeSubSecond verifies a token issued a millisecond
before the change no longer resolves.
*/
func TestService_PasswordChangeSubSecond(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.signupVerified(t, "a@x.com")

	f.clock.Advance(time.Millisecond)
	after, err := f.service.ChangePassword(ctx, before.Account, "pw12345678", "brand-new-pw")
	require.NoError(t, err)

	stale, err := f.service.ResolveSession(ctx, before.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, Unauthorized, stale.Kind)

	stale, err = f.service.ResolveSession(ctx, "", before.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, Unauthorized, stale.Kind)

	fresh, err := f.service.ResolveSession(ctx, after.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, ResolvedViaAccess, fresh.Kind)
}

/*
TestService_ResolveSession_RefreshFallback verifies an expired access token
falls back to the refresh token and mints a new access token.
*/
func TestService_ResolveSession_RefreshFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.signupVerified(t, "a@x.com")

	f.clock.Advance(16 * time.Minute)

	resolution, err := f.service.ResolveSession(ctx, session.AccessToken, session.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, ResolvedViaRefresh, resolution.Kind)
	assert.Equal(t, session.Account.ID, resolution.Account.ID)
	assert.Nil(t, resolution.Account.RefreshTokenHash)

	claims, err := f.tokens.Verify(resolution.AccessToken, sec.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, session.Account.ID, claims.SubjectID)

	// A refresh token presented as an access token never resolves.
	swapped, err := f.service.ResolveSession(ctx, session.RefreshToken, "")
	require.NoError(t, err)
	assert.Equal(t, Unauthorized, swapped.Kind)

	none, err := f.service.ResolveSession(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, Unauthorized, none.Kind)
}

/*
TestService_LogoutRevokesRefresh verifies the old refresh token stops working.
*/
func TestService_LogoutRevokesRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.signupVerified(t, "a@x.com")

	require.NoError(t, f.service.Logout(ctx, session.Account))
	require.NoError(t, f.service.Logout(ctx, session.Account), "logout is idempotent")

	resolution, err := f.service.ResolveSession(ctx, "", session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, Unauthorized, resolution.Kind)

	_, err = f.service.ResolveRefreshSession(ctx, session.RefreshToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))
}

/*
TestService_ResolveRefreshSession verifies delete authorization.
*/
func TestService_ResolveRefreshSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.signupVerified(t, "a@x.com")

	found, err := f.service.ResolveRefreshSession(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, session.Account.ID, found.ID)

	_, err = f.service.ResolveRefreshSession(ctx, session.AccessToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))

	_, err = f.service.ResolveRefreshSession(ctx, "")
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))
}
