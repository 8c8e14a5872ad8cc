// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package respond provides HTTP response helpers used by all API handlers.
//
// # Architecture
//
// This package centralizes the presentation logic for HTTP responses.
// It ensures that every response (Success or Error) across the entire application
// follows a strict, predictable JSON envelope structure. The envelope shape is
// the one the web frontend already parses: a "status" discriminator plus either
// the payload or a message.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/constants"
	"github.com/taibuivan/authkeeper/internal/platform/ctxutil"
)

// SuccessEnvelope is the JSON envelope for successful single-resource responses.
type SuccessEnvelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// UserEnvelope is the JSON envelope for responses that return the current account.
type UserEnvelope struct {
	Status string      `json:"status"`
	User   interface{} `json:"user"`
}

// ErrorEnvelope is the JSON envelope for error responses.
//
// Status is "fail" for client errors and "error" for server errors. Detail and
// Stack are only populated in development mode.
type ErrorEnvelope struct {
	Status  string              `json:"status"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details []apperr.FieldError `json:"details,omitempty"`
	Detail  string              `json:"detail,omitempty"`
	Stack   string              `json:"stack,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes a 200 OK response with data wrapped in the standard success envelope.
func OK(writer http.ResponseWriter, data interface{}) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Status: constants.StatusSuccess, Data: data})
}

// Created writes a 201 Created response with data wrapped in the standard success envelope.
func Created(writer http.ResponseWriter, data interface{}) {
	JSON(writer, http.StatusCreated, SuccessEnvelope{Status: constants.StatusSuccess, Data: data})
}

// Message writes a success envelope that only carries a human-readable message.
func Message(writer http.ResponseWriter, statusCode int, message string) {
	JSON(writer, statusCode, map[string]string{
		constants.FieldStatus:  constants.StatusSuccess,
		constants.FieldMessage: message,
	})
}

// User writes a 200 OK response carrying the current account under "user".
func User(writer http.ResponseWriter, user interface{}) {
	JSON(writer, http.StatusOK, UserEnvelope{Status: constants.StatusSuccess, User: user})
}

// NoContent writes a 204 No Content response.
func NoContent(writer http.ResponseWriter) {
	writer.WriteHeader(http.StatusNoContent)
}

// Error converts any Go error into a standardized JSON API error response.
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	logger := ctxutil.GetLogger(request.Context())

	var appError *apperr.AppError
	if !errors.As(err, &appError) {
		// Unexpected internal error: log full details but hide them from the client for security.
		logger.ErrorContext(request.Context(), "unhandled_error_swallowed",
			slog.String("error", err.Error()),
			slog.String("request_id", ctxutil.GetRequestID(request.Context())),
		)
		appError = apperr.Internal(err)
	}

	// Always log 5xx errors as they indicate server-side issues.
	status := constants.StatusFail
	if appError.HTTPStatus >= 500 {
		status = constants.StatusError
		logger.ErrorContext(request.Context(), "api_server_error",
			slog.String("code", appError.Code),
			slog.String("request_id", ctxutil.GetRequestID(request.Context())),
			slog.Any("cause", appError.Cause),
		)
	}

	envelope := ErrorEnvelope{
		Status:  status,
		Code:    appError.Code,
		Message: appError.Message,
		Details: appError.Details,
	}

	if ctxutil.IsDevelopment(request.Context()) {
		envelope.Detail = err.Error()
		if appError.Cause != nil {
			envelope.Detail = appError.Cause.Error()
		}
		envelope.Stack = string(debug.Stack())
	}

	JSON(writer, appError.HTTPStatus, envelope)
}
