// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/constants"
	"github.com/taibuivan/authkeeper/internal/platform/cookie"
	"github.com/taibuivan/authkeeper/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/authkeeper/internal/platform/request"
	"github.com/taibuivan/authkeeper/internal/platform/respond"
	"github.com/taibuivan/authkeeper/internal/platform/sec"
	"github.com/taibuivan/authkeeper/internal/platform/validate"
	"github.com/taibuivan/authkeeper/internal/users/account"
)

// # Field Names

const (
	fieldFirstName   = "firstname"
	fieldLastName    = "lastname"
	fieldEmail       = "email"
	fieldPassword    = "password"
	fieldOTP         = "otp_code"
	fieldResetToken  = "resetToken"
	fieldOldPassword = "oldPassword"
	fieldNewPassword = "newPassword"

	minPasswordLength = 8
	maxNameLength     = 100
)

// # Definitions & Constructors

// Handler implements the authentication and user HTTP endpoints.
//
// # Scope
//
// It owns the session guards, so every route that needs a signed-in account
// is mounted through [Handler.UserRoutes].
type Handler struct {
	authService *Service
	profile     *account.Handler
	cookies     *cookie.Jar
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, profile *account.Handler, cookies *cookie.Jar) *Handler {
	return &Handler{authService: service, profile: profile, cookies: cookies}
}

// Routes returns a [chi.Router] with the authentication routes.
//
// # Endpoints
//   - POST  /signup              : Creates an unverified account and emails a code.
//   - POST  /login               : Signs in and sets both session cookies.
//   - POST  /verify-email        : Consumes the code and signs in.
//   - POST  /resend-verification : Emails a fresh code.
//   - POST  /forgot-password     : Emails a reset link.
//   - PATCH /reset-password      : Redeems a reset token.
//   - GET   /logout              : Revokes the refresh token and clears cookies.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/signup", handler.signup)
	router.Post("/login", handler.login)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/resend-verification", handler.resendVerification)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Patch("/reset-password", handler.resetPassword)

	// Protected endpoints
	router.With(handler.RequireSession).Get("/logout", handler.logout)

	return router
}

// UserRoutes returns a [chi.Router] with the routes of a signed-in account.
//
// # Endpoints
//   - GET    /session         : Current account.
//   - POST   /profile-photo   : Replaces the profile photo.
//   - PATCH  /update-profile  : Edits the names.
//   - PATCH  /change-password : Replaces the password and rotates tokens.
//   - DELETE /delete-account  : Requires a refresh-bound session.
func (handler *Handler) UserRoutes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(handler.RequireSession)
		r.Get("/session", handler.profile.Session)
		r.Post("/profile-photo", handler.profile.UploadPhoto)
		r.Patch("/update-profile", handler.profile.UpdateProfile)
		r.Patch("/change-password", handler.changePassword)
	})

	router.With(handler.RequireRefreshSession).Delete("/delete-account", handler.profile.DeleteAccount)

	return router
}

// # Session Guards

// RequireSession resolves the caller from the session cookies and stores the
// account in the request context. A refresh-based resolution also sets a new
// access cookie on the response.
func (handler *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		resolution, err := handler.authService.ResolveSession(request.Context(),
			requestutil.Cookie(request, constants.AccessTokenCookieName),
			requestutil.Cookie(request, constants.RefreshTokenCookieName),
		)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		if resolution.Kind == Unauthorized {
			ctxutil.GetLogger(request.Context()).Debug("session_rejected", slog.String("reason", resolution.Reason))
			respond.Error(writer, request, apperr.Unauthorized("Login to gain access"))
			return
		}

		if resolution.Kind == ResolvedViaRefresh {
			handler.cookies.SetAccess(writer, resolution.AccessToken)
		}

		next.ServeHTTP(writer, request.WithContext(account.WithAccount(request.Context(), resolution.Account)))
	})
}

// RequireRefreshSession admits only callers holding a live refresh token.
func (handler *Handler) RequireRefreshSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		found, err := handler.authService.ResolveRefreshSession(request.Context(),
			requestutil.Cookie(request, constants.RefreshTokenCookieName),
		)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		next.ServeHTTP(writer, request.WithContext(account.WithAccount(request.Context(), found)))
	})
}

// # Request Payloads

type signupRequest struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Email   string `json:"email"`
	OTPCode string `json:"otp_code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	ResetToken string `json:"resetToken"`
	Password   string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// # Handlers

/*
Signup handles the creation of a new account.

POST /api/v1/auth/signup

Request:
  - Body: signupRequest (firstname, lastname, email, password)

Response:
  - 201: {status, data: user}
  - 400: ValidationError, EmailInUse (login), VerificationRequired (verify_email)
  - 502: MailDeliveryFailure
*/
func (handler *Handler) signup(writer http.ResponseWriter, request *http.Request) {
	var input signupRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.RequiredMsg(fieldFirstName, input.FirstName, "What is your first name?").
		MaxLen(fieldFirstName, input.FirstName, maxNameLength).
		RequiredMsg(fieldLastName, input.LastName, "What is your last name?").
		MaxLen(fieldLastName, input.LastName, maxNameLength).
		Required(fieldEmail, input.Email).
		Email(fieldEmail, input.Email).
		Required(fieldPassword, input.Password).
		MinLen(fieldPassword, input.Password, minPasswordLength).
		MaxBytes(fieldPassword, input.Password, sec.MaxPasswordBytes)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	created, err := handler.authService.Signup(request.Context(), account.Registration{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Password:  input.Password,
	}, requestutil.ClientIP(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

/*
Login authenticates an account and establishes a session.

POST /api/v1/auth/login

Response:
  - 200: {status, user} plus both session cookies
  - 400: InvalidCredentials, VerificationRequired (verify_email)
  - 404: NotFound
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldEmail, input.Email).Required(fieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), input.Email, input.Password, requestutil.ClientIP(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeSession(writer, session)
}

/*
VerifyEmail consumes the emailed code.

POST /api/v1/auth/verify-email

Response:
  - 200: {status, user} plus both session cookies
  - 400: InvalidOTP, AlreadyVerified (login)
  - 404: NotFound
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldEmail, input.Email).Required(fieldOTP, input.OTPCode)
	if input.OTPCode != "" {
		validator.Digits(fieldOTP, input.OTPCode, sec.OTPDigits)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.VerifyEmail(request.Context(), input.Email, input.OTPCode)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeSession(writer, session)
}

/*
ResendVerification emails a fresh code.

POST /api/v1/auth/resend-verification

Response:
  - 200: {status, message}
  - 400: AlreadyVerified (login)
  - 404: NotFound
*/
func (handler *Handler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Email == "" {
		respond.Error(writer, request, validate.RequiredError(fieldEmail, "This field is required"))
		return
	}

	if err := handler.authService.ResendVerification(request.Context(), input.Email, requestutil.ClientIP(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, http.StatusOK, "Verification code sent to your email!")
}

/*
ForgotPassword emails a reset link.

POST /api/v1/auth/forgot-password

Response:
  - 200: {status, message}
  - 404: NotFound
  - 502: MailDeliveryFailure
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input emailRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Email == "" {
		respond.Error(writer, request, validate.RequiredError(fieldEmail, "This field is required"))
		return
	}

	if err := handler.authService.ForgotPassword(request.Context(), input.Email, requestutil.ClientIP(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, http.StatusOK, "Token sent to email!")
}

/*
ResetPassword redeems a reset token.

PATCH /api/v1/auth/reset-password

Response:
  - 200: {status, message}
  - 400: ValidationError, InvalidOrExpiredToken
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldResetToken, input.ResetToken).
		Required(fieldPassword, input.Password).
		MinLen(fieldPassword, input.Password, minPasswordLength).
		MaxBytes(fieldPassword, input.Password, sec.MaxPasswordBytes)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if _, err := handler.authService.ResetPassword(request.Context(), input.ResetToken, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, http.StatusOK, "Your password has been reset.")
}

/*
Logout terminates the session.

GET /api/v1/auth/logout

Response:
  - 204: No Content, both cookies cleared
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if current := account.FromContext(request.Context()); current != nil {
		if err := handler.authService.Logout(request.Context(), current); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	handler.cookies.Clear(writer)
	respond.NoContent(writer)
}

/*
ChangePassword replaces the password of the signed-in account.

PATCH /api/v1/user/change-password

Response:
  - 200: {status, user} plus rotated session cookies
  - 400: ValidationError, InvalidCredentials
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	current := account.FromContext(request.Context())
	if current == nil {
		respond.Error(writer, request, apperr.Unauthorized("Login to gain access"))
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldOldPassword, input.OldPassword).
		Required(fieldNewPassword, input.NewPassword).
		MinLen(fieldNewPassword, input.NewPassword, minPasswordLength).
		MaxBytes(fieldNewPassword, input.NewPassword, sec.MaxPasswordBytes)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.ChangePassword(request.Context(), current, input.OldPassword, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeSession(writer, session)
}

// writeSession sets both cookies and returns the account.
func (handler *Handler) writeSession(writer http.ResponseWriter, session *Session) {
	handler.cookies.SetSession(writer, session.AccessToken, session.RefreshToken)
	respond.User(writer, session.Account)
}
