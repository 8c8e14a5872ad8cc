// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for AuthKeeper.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Taxonomy: One constructor per failure kind the session engine can surface.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"net/http"
)

// # Error Codes

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeInvalidOTP           = "INVALID_OTP"
	CodeInvalidOrExpired     = "INVALID_OR_EXPIRED_TOKEN"
	CodeEmailInUse           = "EMAIL_IN_USE"
	CodeAlreadyVerified      = "ALREADY_VERIFIED"
	CodeVerificationRequired = "VERIFICATION_REQUIRED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeDuplicateKey         = "DUPLICATE_KEY"
	CodeConflict             = "CONFLICT"
	CodeMailDelivery         = "MAIL_DELIVERY_FAILED"
	CodeInternal             = "INTERNAL_ERROR"
)

// # Redirect Signals

// The frontend keys its redirects on these message values, so they are kept
// verbatim regardless of the error code.
const (
	SignalLogin       = "login"
	SignalVerifyEmail = "verify_email"
)

// AppError is the canonical error type for the AuthKeeper API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// in production to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "INVALID_OTP").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"message"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// Is matches two AppErrors by code, so sentinel comparisons work across
// freshly constructed values.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// # Client Errors (4xx)

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// NotFound creates a 404 [AppError] with a client-facing message.
//
// Example:
//
//	apperr.NotFound("Couldn't find your account.")
func NotFound(msg string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    msg,
		HTTPStatus: http.StatusNotFound,
	}
}

// InvalidCredentials creates a 400 [AppError] for a password mismatch.
func InvalidCredentials(msg string) *AppError {
	return &AppError{
		Code:       CodeInvalidCredentials,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidOTP creates a 400 [AppError] for a one-time code that does not match.
func InvalidOTP() *AppError {
	return &AppError{
		Code:       CodeInvalidOTP,
		Message:    "Your one-time password is incorrect. Please try again.",
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidOrExpiredToken creates a 400 [AppError] for an unusable reset token.
func InvalidOrExpiredToken() *AppError {
	return &AppError{
		Code:       CodeInvalidOrExpired,
		Message:    "Token is invalid or has expired!",
		HTTPStatus: http.StatusBadRequest,
	}
}

// EmailInUse creates a 400 [AppError] telling the caller to redirect to login.
func EmailInUse() *AppError {
	return &AppError{
		Code:       CodeEmailInUse,
		Message:    SignalLogin,
		HTTPStatus: http.StatusBadRequest,
	}
}

// AlreadyVerified creates a 400 [AppError] telling the caller to redirect to login.
func AlreadyVerified() *AppError {
	return &AppError{
		Code:       CodeAlreadyVerified,
		Message:    SignalLogin,
		HTTPStatus: http.StatusBadRequest,
	}
}

// VerificationRequired creates a 400 [AppError] telling the caller to redirect
// to the email verification flow.
func VerificationRequired() *AppError {
	return &AppError{
		Code:       CodeVerificationRequired,
		Message:    SignalVerifyEmail,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// DuplicateKey creates a 409 [AppError] for unique-constraint violations
// detected by the storage layer.
func DuplicateKey(msg string, cause error) *AppError {
	return &AppError{
		Code:       CodeDuplicateKey,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
		Cause:      cause,
	}
}

// Conflict creates a 409 [AppError] for a write that lost a race with a
// concurrent change to the same record.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// # Server Errors (5xx)

// MailDeliveryFailure creates a 502 [AppError] wrapping the mail provider's error.
func MailDeliveryFailure(cause error) *AppError {
	return &AppError{
		Code:       CodeMailDelivery,
		Message:    "We couldn't send the email. Please try again later.",
		HTTPStatus: http.StatusBadGateway,
		Cause:      cause,
	}
}

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Something went wrong",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// # Helpers

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// HasCode reports whether err carries an [*AppError] with the given code.
func HasCode(err error, code string) bool {
	ae := As(err)
	return ae != nil && ae.Code == code
}
