// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/sec"
)

const uuidForTest = "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b"

const publicColumns = "id, firstname, lastname, email, role, isemailverified, passwordchangedat, imagename, createdat, updatedat"

// newMockRepository wires the repository to a pgxmock pool.
func newMockRepository(t *testing.T) (*PostgresAccountRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return &PostgresAccountRepository{pool: mock}, mock
}

// accountRow returns one RETURNING row of public columns for account.
func accountRow(account *Account) *pgxmock.Rows {
	columns := []string{
		"id", "firstname", "lastname", "email", "role", "isemailverified",
		"passwordchangedat", "imagename", "createdat", "updatedat",
	}
	return pgxmock.NewRows(columns).AddRow(
		account.ID, account.FirstName, account.LastName, account.Email, account.Role,
		account.IsEmailVerified, account.PasswordChangedAt, account.ImageName,
		account.CreatedAt, account.UpdatedAt,
	)
}

func ptr[T any](value T) *T { return &value }

/*
TestPostgresStore_ApplyVerify checks the guarded verify write: the verified
flag, cleared OTP and new refresh hash are assigned, and both the OTP and the
unverified guards land in the WHERE clause.
*/
func TestPostgresStore_ApplyVerify(t *testing.T) {
	repository, mock := newMockRepository(t)
	account := newTestAccount(t, "ada@example.com", time.Now().UTC())
	account.IsEmailVerified = true

	changes := NewChanges().
		MarkVerified().
		SetRefreshToken("refresh-token").
		ExpectUnverified().
		ExpectOTP("123456")

	query := "UPDATE users.account SET isemailverified = $2, otphash = $3, refreshtokenhash = $4, updatedat = NOW() " +
		"WHERE id = $1 AND otphash = $5 AND isemailverified = FALSE RETURNING " + publicColumns
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(account.ID, ptr(true), (*string)(nil), ptr(sec.HashToken("refresh-token")), sec.HashToken("123456")).
		WillReturnRows(accountRow(account))

	updated, err := repository.Apply(context.Background(), account.ID, changes)
	require.NoError(t, err)
	assert.Equal(t, account.ID, updated.ID)
	assert.True(t, updated.IsEmailVerified)
	assert.Nil(t, updated.OTPHash)
}

/*
TestPostgresStore_ApplyReset checks the reset write: the new password and its
timestamp are assigned, the reset pair and the refresh hash are cleared, and
the reset token guard requires both hash and expiry.
*/
func TestPostgresStore_ApplyReset(t *testing.T) {
	repository, mock := newMockRepository(t)
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	account := newTestAccount(t, "ada@example.com", now)

	changes := NewChanges().ClearResetToken().ClearRefreshToken().ExpectResetToken("reset-token", now)
	require.NoError(t, changes.SetPassword(&countingHasher{}, "new-password", now))

	query := "UPDATE users.account SET passwordhash = $2, passwordchangedat = $3, resettokenhash = $4, " +
		"resettokenexpiresat = $5, refreshtokenhash = $6, updatedat = NOW() " +
		"WHERE id = $1 AND resettokenhash = $7 AND resettokenexpiresat > $8 RETURNING " + publicColumns
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(
			account.ID,
			ptr("hashed:new-password"),
			pgxmock.AnyArg(),
			(*string)(nil),
			(*time.Time)(nil),
			(*string)(nil),
			sec.HashToken("reset-token"),
			pgxmock.AnyArg(),
		).
		WillReturnRows(accountRow(account))

	_, err := repository.Apply(context.Background(), account.ID, changes)
	require.NoError(t, err)
}

/*
TestPostgresStore_ApplyProfile checks a profile write touches only the name
columns and carries no guard.
*/
func TestPostgresStore_ApplyProfile(t *testing.T) {
	repository, mock := newMockRepository(t)
	account := newTestAccount(t, "ada@example.com", time.Now().UTC())
	account.FirstName, account.LastName = "Grace", "Hopper"

	query := "UPDATE users.account SET firstname = $2, lastname = $3, updatedat = NOW() " +
		"WHERE id = $1 RETURNING " + publicColumns
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(account.ID, ptr("Grace"), ptr("Hopper")).
		WillReturnRows(accountRow(account))

	updated, err := repository.Apply(context.Background(), account.ID, NewChanges().SetName(" Grace ", "Hopper"))
	require.NoError(t, err)
	assert.Equal(t, "Grace", updated.FirstName)
	assert.Empty(t, updated.PasswordHash)
	assert.Nil(t, updated.RefreshTokenHash)
}

/*
TestPostgresStore_ApplyImageGuard checks the photo guard compares the stored
key with IS NOT DISTINCT FROM so a missing photo matches NULL.
*/
func TestPostgresStore_ApplyImageGuard(t *testing.T) {
	repository, mock := newMockRepository(t)
	account := newTestAccount(t, "ada@example.com", time.Now().UTC())
	account.ImageName = ptr("photos/new.jpg")

	query := "UPDATE users.account SET imagename = $2, updatedat = NOW() " +
		"WHERE id = $1 AND imagename IS NOT DISTINCT FROM $3 RETURNING " + publicColumns
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(account.ID, ptr("photos/new.jpg"), (*string)(nil)).
		WillReturnRows(accountRow(account))

	updated, err := repository.Apply(context.Background(), account.ID, NewChanges().SetImage("photos/new.jpg").ExpectImage(nil))
	require.NoError(t, err)
	require.NotNil(t, updated.ImageName)
	assert.Equal(t, "photos/new.jpg", *updated.ImageName)
}

/*
TestPostgresStore_ApplyGuardedMiss checks a guarded write that matches no row
is split into ErrPrecondition when the account exists and NotFound when it
does not.
*/
func TestPostgresStore_ApplyGuardedMiss(t *testing.T) {
	cases := []struct {
		name   string
		exists bool
		check  func(t *testing.T, err error)
	}{
		{
			name:   "guard failed",
			exists: true,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrPrecondition)
			},
		},
		{
			name:   "row missing",
			exists: false,
			check: func(t *testing.T, err error) {
				assert.NotErrorIs(t, err, ErrPrecondition)
				assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repository, mock := newMockRepository(t)
			account := newTestAccount(t, "ada@example.com", time.Now().UTC())

			mock.ExpectQuery(regexp.QuoteMeta("UPDATE users.account SET")).
				WithArgs(account.ID, ptr(true), (*string)(nil), sec.HashToken("654321")).
				WillReturnError(pgx.ErrNoRows)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM users.account WHERE id = $1)")).
				WithArgs(account.ID).
				WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(tc.exists))

			changes := NewChanges().MarkVerified().ExpectUnverified().ExpectOTP("654321")
			_, err := repository.Apply(context.Background(), account.ID, changes)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

/*
TestPostgresStore_ApplyUnguardedMiss checks an unguarded write that matches
no row is NotFound without a follow-up existence query.
*/
func TestPostgresStore_ApplyUnguardedMiss(t *testing.T) {
	repository, mock := newMockRepository(t)
	account := newTestAccount(t, "ada@example.com", time.Now().UTC())

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users.account SET firstname = $2")).
		WithArgs(account.ID, ptr("Grace"), ptr("Hopper")).
		WillReturnError(pgx.ErrNoRows)

	_, err := repository.Apply(context.Background(), account.ID, NewChanges().SetName("Grace", "Hopper"))
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestPostgresStore_ApplyRejectsBeforeQuery checks invalid input never reaches
the database.
*/
func TestPostgresStore_ApplyRejectsBeforeQuery(t *testing.T) {
	repository, _ := newMockRepository(t)

	_, err := repository.Apply(context.Background(), uuidForTest, NewChanges())
	assert.True(t, apperr.HasCode(err, apperr.CodeInternal))

	_, err = repository.Apply(context.Background(), "not-a-uuid", NewChanges().SetName("Grace", "Hopper"))
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestPostgresStore_CreateDuplicate checks a unique violation on the email key
is reported as DuplicateKey.
*/
func TestPostgresStore_CreateDuplicate(t *testing.T) {
	repository, mock := newMockRepository(t)
	account := newTestAccount(t, "ada@example.com", time.Now().UTC())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users.account")).
		WithArgs(
			account.ID, "Ada", "Lovelace", "ada@example.com", account.PasswordHash,
			string(sec.RoleUser), false, account.OTPHash, account.CreatedAt, account.UpdatedAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "account_email_key"})

	err := repository.Create(context.Background(), account)
	assert.True(t, apperr.HasCode(err, apperr.CodeDuplicateKey))
}

/*
TestPostgresStore_FindByIDWithSecrets checks secret columns are appended in
selector order and scanned into the matching fields.
*/
func TestPostgresStore_FindByIDWithSecrets(t *testing.T) {
	repository, mock := newMockRepository(t)
	account := newTestAccount(t, "ada@example.com", time.Now().UTC())
	refreshHash := sec.HashToken("refresh-token")

	query := "SELECT " + publicColumns + ", passwordhash, refreshtokenhash FROM users.account WHERE id = $1"
	rows := pgxmock.NewRows([]string{
		"id", "firstname", "lastname", "email", "role", "isemailverified",
		"passwordchangedat", "imagename", "createdat", "updatedat",
		"passwordhash", "refreshtokenhash",
	}).AddRow(
		account.ID, account.FirstName, account.LastName, account.Email, account.Role,
		false, (*time.Time)(nil), (*string)(nil), account.CreatedAt, account.UpdatedAt,
		account.PasswordHash, &refreshHash,
	)
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(account.ID).WillReturnRows(rows)

	found, err := repository.FindByID(context.Background(), account.ID, WithRefreshToken, WithPassword)
	require.NoError(t, err)
	assert.Equal(t, account.PasswordHash, found.PasswordHash)
	require.NotNil(t, found.RefreshTokenHash)
	assert.Equal(t, refreshHash, *found.RefreshTokenHash)
	assert.Nil(t, found.OTPHash)
}

/*
TestPostgresStore_FindByEmailMiss checks the email is normalised before the
lookup and a miss is NotFound.
*/
func TestPostgresStore_FindByEmailMiss(t *testing.T) {
	repository, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + publicColumns + " FROM users.account WHERE email = $1")).
		WithArgs("ada@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repository.FindByEmail(context.Background(), "  ADA@example.com ")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestPostgresStore_Delete checks a delete that removes nothing is NotFound.
*/
func TestPostgresStore_Delete(t *testing.T) {
	repository, mock := newMockRepository(t)
	query := regexp.QuoteMeta("DELETE FROM users.account WHERE id = $1")

	mock.ExpectExec(query).WithArgs(uuidForTest).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, repository.Delete(context.Background(), uuidForTest))

	mock.ExpectExec(query).WithArgs(uuidForTest).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	err := repository.Delete(context.Background(), uuidForTest)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestPostgresStore_UnverifiedSweep checks the sweep scan orders by creation
time and the delete re-checks the unverified predicate.
*/
func TestPostgresStore_UnverifiedSweep(t *testing.T) {
	repository, mock := newMockRepository(t)
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	first := newTestAccount(t, "first@example.com", cutoff.Add(-2*time.Hour))
	second := newTestAccount(t, "second@example.com", cutoff.Add(-time.Hour))

	rows := accountRow(first)
	rows.AddRow(
		second.ID, second.FirstName, second.LastName, second.Email, second.Role,
		second.IsEmailVerified, second.PasswordChangedAt, second.ImageName,
		second.CreatedAt, second.UpdatedAt,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users.account") +
		`\s+WHERE isemailverified = FALSE AND createdat <= \$1\s+ORDER BY createdat`).
		WithArgs(cutoff).
		WillReturnRows(rows)

	accounts, err := repository.FindUnverifiedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, first.ID, accounts[0].ID)
	assert.Equal(t, second.ID, accounts[1].ID)

	deleteQuery := regexp.QuoteMeta("DELETE FROM users.account WHERE id = $1 AND isemailverified = FALSE AND createdat <= $2")
	mock.ExpectExec(deleteQuery).WithArgs(first.ID, cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(deleteQuery).WithArgs(second.ID, cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := repository.DeleteUnverified(context.Background(), first.ID, cutoff)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repository.DeleteUnverified(context.Background(), second.ID, cutoff)
	require.NoError(t, err)
	assert.False(t, deleted)
}
