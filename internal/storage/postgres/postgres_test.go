package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
)

func newMock(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db, time.Second), mock
}

func TestSQLState(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
	assert.False(t, isUniqueViolation(nil))
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := p.CreateUser(context.Background(), &models.UserRecord{
		Email: "dup@example.com", PasswordHash: "h", Role: models.RoleUser, Status: models.StatusActive,
		CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_ReturnsID(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("Ada", "Lovelace", "ada@example.com", "h", "admin", "active", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := p.CreateUser(context.Background(), &models.UserRecord{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", PasswordHash: "h",
		Role: models.RoleAdmin, Status: models.StatusActive, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail_NotFoundAndUnavailable(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery("SELECT .* FROM users WHERE email").WillReturnError(sql.ErrNoRows)
	_, err := p.GetUserByEmail(context.Background(), "none@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	mock.ExpectQuery("SELECT .* FROM users WHERE email").WillReturnError(sql.ErrConnDone)
	_, err = p.GetUserByEmail(context.Background(), "none@example.com")
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser_PassesOnlySuppliedFields(t *testing.T) {
	p, mock := newMock(t)
	now := time.Now()
	status := models.StatusInactive

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET")).
		WithArgs(int64(3),
			sql.NullString{}, sql.NullString{}, sql.NullString{}, sql.NullString{}, sql.NullString{},
			sql.NullString{String: "inactive", Valid: true}, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := p.UpdateUser(context.Background(), 3, &models.UserPatch{Status: &status, UpdatedAt: now})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLoginFailure_Locks(t *testing.T) {
	p, mock := newMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET")).
		WithArgs(int64(1), 3, until, now).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_count", "locked_until"}).AddRow(3, until))
	mock.ExpectCommit()

	res, err := p.RecordLoginFailure(context.Background(), 1, 3, until, now)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	require.NotNil(t, res.LockedUntil)
	assert.True(t, until.Equal(*res.LockedUntil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLoginFailure_LockInForce(t *testing.T) {
	p, mock := newMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := now.Add(5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET")).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT locked_until FROM users")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"locked_until"}).AddRow(current))
	mock.ExpectRollback()

	_, err := p.RecordLoginFailure(context.Background(), 1, 3, now.Add(time.Hour), now)
	var locked *apperrors.LockedError
	require.ErrorAs(t, err, &locked)
	assert.True(t, current.Equal(locked.Until))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLoginFailure_ConnectionLost(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	_, err := p.RecordLoginFailure(context.Background(), 1, 3, time.Now(), time.Now())
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefreshToken_UnknownUser(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := p.CreateRefreshToken(context.Background(), &models.RefreshToken{Token: "t", UserID: 9})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRefreshToken(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE token = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := p.DeleteRefreshToken(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
