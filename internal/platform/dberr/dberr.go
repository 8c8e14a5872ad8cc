// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
)

// Postgres SQLSTATE codes mapped to client errors.
const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
//
// The action names the failed operation and ends up in the server-side cause only.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("Couldn't find your account.")
	}

	// 2. Unique violations surface as a storage race
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.DuplicateKey("A record with this value already exists.", fmt.Errorf("%s: %w", action, err))
	}

	// 3. Check constraints reject the submitted value
	if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
		invalid := apperr.ValidationError("The submitted value is not allowed.")
		invalid.Cause = fmt.Errorf("%s: %w", action, err)
		return invalid
	}

	// 4. Unknown query errors become Internal Server Errors
	return apperr.Internal(fmt.Errorf("%s: %w", action, err))
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure
// on the named constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
