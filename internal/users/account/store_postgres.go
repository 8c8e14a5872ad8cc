// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account (Postgres) implements the storage layer for accounts.

# Schema Table Mapping
  - users.account: Identity, credentials, verification and session state.

Every mutation is a single UPDATE ... RETURNING statement, so fields that
change together (the reset token pair, verification plus OTP) are never
observed half-written by a concurrent request.
*/
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/database/schema"
	"github.com/taibuivan/authkeeper/internal/platform/dberr"
	"github.com/taibuivan/authkeeper/pkg/uuid"
)

// # Repository Implementation

// querier is the part of [pgxpool.Pool] the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAccountRepository implements [Store] using pgx.
type PostgresAccountRepository struct {
	pool querier
}

// NewPostgresStore creates a new Postgres implementation of the account store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// errAccountNotFound is the client-facing miss for every lookup.
func errAccountNotFound() error {
	return apperr.NotFound("Couldn't find your account.")
}

// # Column Helpers

var table = schema.UserAccount

// selectColumns lists the public columns followed by the requested secrets.
func selectColumns(set Secret) string {
	columns := table.PublicColumns()
	if set.has(WithPassword) {
		columns = append(columns, table.PasswordHash)
	}
	if set.has(WithOTP) {
		columns = append(columns, table.OTPHash)
	}
	if set.has(WithResetToken) {
		columns = append(columns, table.ResetTokenHash, table.ResetTokenExpiresAt)
	}
	if set.has(WithRefreshToken) {
		columns = append(columns, table.RefreshTokenHash)
	}
	return strings.Join(columns, ", ")
}

// scanTargets mirrors [selectColumns] for row scanning.
func scanTargets(account *Account, set Secret) []any {
	targets := []any{
		&account.ID, &account.FirstName, &account.LastName, &account.Email, &account.Role,
		&account.IsEmailVerified, &account.PasswordChangedAt, &account.ImageName,
		&account.CreatedAt, &account.UpdatedAt,
	}
	if set.has(WithPassword) {
		targets = append(targets, &account.PasswordHash)
	}
	if set.has(WithOTP) {
		targets = append(targets, &account.OTPHash)
	}
	if set.has(WithResetToken) {
		targets = append(targets, &account.ResetTokenHash, &account.ResetTokenExpiresAt)
	}
	if set.has(WithRefreshToken) {
		targets = append(targets, &account.RefreshTokenHash)
	}
	return targets
}

// queryOne runs a single-row SELECT with the given WHERE clause.
func (repository *PostgresAccountRepository) queryOne(context context.Context, set Secret, where string, args ...any) (*Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, selectColumns(set), table.Table, where)

	account := &Account{}
	err := repository.pool.QueryRow(context, query, args...).Scan(scanTargets(account, set)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errAccountNotFound()
		}
		return nil, dberr.Wrap(err, "postgres_account_repo_query_failed")
	}
	return account, nil
}

// # Store Methods

/*
Create inserts a fresh account.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - error: apperr.DuplicateKey on a concurrent signup for the same email
*/
func (repository *PostgresAccountRepository) Create(context context.Context, account *Account) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		table.Table,
		table.ID, table.FirstName, table.LastName, table.Email, table.PasswordHash,
		table.Role, table.IsEmailVerified, table.OTPHash, table.CreatedAt, table.UpdatedAt,
	)

	_, err := repository.pool.Exec(context, query,
		account.ID,
		account.FirstName,
		account.LastName,
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.IsEmailVerified,
		account.OTPHash,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if dberr.IsUniqueViolation(err, table.EmailKey) {
			return apperr.DuplicateKey("An account with this email already exists.", err)
		}
		return dberr.Wrap(err, "postgres_account_repo_create_failed")
	}

	return nil
}

// FindByID implements [Store].
func (repository *PostgresAccountRepository) FindByID(context context.Context, id string, secrets ...Secret) (*Account, error) {
	if !uuid.Valid(id) {
		return nil, errAccountNotFound()
	}
	return repository.queryOne(context, secretSet(secrets), table.ID+" = $1", id)
}

// FindByEmail implements [Store].
func (repository *PostgresAccountRepository) FindByEmail(context context.Context, email string, secrets ...Secret) (*Account, error) {
	return repository.queryOne(context, secretSet(secrets), table.Email+" = $1", NormalizeEmail(email))
}

// FindByRefreshToken implements [Store].
func (repository *PostgresAccountRepository) FindByRefreshToken(context context.Context, id, tokenHash string) (*Account, error) {
	if !uuid.Valid(id) || tokenHash == "" {
		return nil, errAccountNotFound()
	}
	where := fmt.Sprintf("%s = $1 AND %s = $2", table.ID, table.RefreshTokenHash)
	return repository.queryOne(context, WithRefreshToken, where, id, tokenHash)
}

// FindByResetToken implements [Store].
func (repository *PostgresAccountRepository) FindByResetToken(context context.Context, tokenHash string, now time.Time) (*Account, error) {
	where := fmt.Sprintf("%s = $1 AND %s > $2", table.ResetTokenHash, table.ResetTokenExpiresAt)
	return repository.queryOne(context, WithResetToken, where, tokenHash, now.UTC())
}

/*
Apply writes a [Changes] set as one guarded UPDATE.

Description: Builds "UPDATE ... SET <touched> WHERE id = $1 AND <guards>
RETURNING <public columns>". A miss on a guarded write is disambiguated into
ErrPrecondition (row exists) or NotFound.

Parameters:
  - context: context.Context
  - id: string
  - changes: *Changes

Returns:
  - *Account: Updated entity
  - error: ErrPrecondition, apperr.NotFound, or storage failures
*/
func (repository *PostgresAccountRepository) Apply(context context.Context, id string, changes *Changes) (*Account, error) {
	if err := changes.Validate(); err != nil {
		return nil, apperr.Internal(err)
	}
	if !uuid.Valid(id) {
		return nil, errAccountNotFound()
	}

	args := []any{id}
	bind := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	var assignments []string
	addColumn := func(set bool, name string, value any) {
		if set {
			assignments = append(assignments, name+" = "+bind(value))
		}
	}
	addColumn(changes.firstName.set, table.FirstName, changes.firstName.value)
	addColumn(changes.lastName.set, table.LastName, changes.lastName.value)
	addColumn(changes.passwordHash.set, table.PasswordHash, changes.passwordHash.value)
	addColumn(changes.passwordChangedAt.set, table.PasswordChangedAt, changes.passwordChangedAt.value)
	addColumn(changes.isEmailVerified.set, table.IsEmailVerified, changes.isEmailVerified.value)
	addColumn(changes.otpHash.set, table.OTPHash, changes.otpHash.value)
	addColumn(changes.resetTokenHash.set, table.ResetTokenHash, changes.resetTokenHash.value)
	addColumn(changes.resetTokenExpiresAt.set, table.ResetTokenExpiresAt, changes.resetTokenExpiresAt.value)
	addColumn(changes.refreshTokenHash.set, table.RefreshTokenHash, changes.refreshTokenHash.value)
	addColumn(changes.imageName.set, table.ImageName, changes.imageName.value)
	assignments = append(assignments, table.UpdatedAt+" = NOW()")

	conditions := []string{table.ID + " = $1"}
	if changes.expectOTPHash != nil {
		conditions = append(conditions, table.OTPHash+" = "+bind(*changes.expectOTPHash))
	}
	if changes.expectImage {
		conditions = append(conditions, table.ImageName+" IS NOT DISTINCT FROM "+bind(changes.expectImageName))
	}
	if changes.expectUnverified {
		conditions = append(conditions, table.IsEmailVerified+" = FALSE")
	}
	if changes.expectResetHash != nil {
		conditions = append(conditions,
			table.ResetTokenHash+" = "+bind(*changes.expectResetHash),
			table.ResetTokenExpiresAt+" > "+bind(changes.expectResetAfter),
		)
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s RETURNING %s`,
		table.Table,
		strings.Join(assignments, ", "),
		strings.Join(conditions, " AND "),
		selectColumns(0),
	)

	account := &Account{}
	err := repository.pool.QueryRow(context, query, args...).Scan(scanTargets(account, 0)...)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if dberr.IsUniqueViolation(err, table.ResetTokenKey) {
			return nil, apperr.DuplicateKey("Reset token collision.", err)
		}
		return nil, dberr.Wrap(err, "postgres_account_repo_apply_failed")
	}

	if !changes.Guarded() {
		return nil, errAccountNotFound()
	}

	// Guarded miss: tell a failed guard apart from a missing row.
	var exists bool
	existsQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, table.Table, table.ID)
	if err := repository.pool.QueryRow(context, existsQuery, id).Scan(&exists); err != nil {
		return nil, dberr.Wrap(err, "postgres_account_repo_apply_exists_failed")
	}
	if !exists {
		return nil, errAccountNotFound()
	}
	return nil, ErrPrecondition
}

// Delete implements [Store].
func (repository *PostgresAccountRepository) Delete(context context.Context, id string) error {
	if !uuid.Valid(id) {
		return errAccountNotFound()
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table.Table, table.ID)
	tag, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return dberr.Wrap(err, "postgres_account_repo_delete_failed")
	}
	if tag.RowsAffected() == 0 {
		return errAccountNotFound()
	}
	return nil
}

// FindUnverifiedBefore implements [Store].
func (repository *PostgresAccountRepository) FindUnverifiedBefore(context context.Context, cutoff time.Time) ([]*Account, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = FALSE AND %s <= $1
		ORDER BY %s`,
		selectColumns(0), table.Table,
		table.IsEmailVerified, table.CreatedAt,
		table.CreatedAt,
	)

	rows, err := repository.pool.Query(context, query, cutoff.UTC())
	if err != nil {
		return nil, dberr.Wrap(err, "postgres_account_repo_find_unverified_failed")
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account := &Account{}
		if err := rows.Scan(scanTargets(account, 0)...); err != nil {
			return nil, dberr.Wrap(err, "postgres_account_repo_scan_unverified_failed")
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "postgres_account_repo_iterate_unverified_failed")
	}

	return accounts, nil
}

// DeleteUnverified implements [Store]. The predicate is re-checked in the
// DELETE so an account verified after the scan survives.
func (repository *PostgresAccountRepository) DeleteUnverified(context context.Context, id string, cutoff time.Time) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = FALSE AND %s <= $2`,
		table.Table, table.ID, table.IsEmailVerified, table.CreatedAt)

	tag, err := repository.pool.Exec(context, query, id, cutoff.UTC())
	if err != nil {
		return false, dberr.Wrap(err, "postgres_account_repo_delete_unverified_failed")
	}
	return tag.RowsAffected() > 0, nil
}
