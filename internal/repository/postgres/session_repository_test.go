package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/tmdavis2/pit-portal/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSessionRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO sessions (user_id, token, expires_at)"))
	mock.ExpectPrepare(regexp.QuoteMeta("WHERE token = $1 AND expires_at > $2"))
	mock.ExpectPrepare(regexp.QuoteMeta("DELETE FROM sessions WHERE token = $1"))
	mock.ExpectPrepare(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at <= $1"))
}

func TestNewSessionRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO sessions")).
			WillReturnError(errors.New("prepare failed"))

		repo, err := NewSessionRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
	})
}

func TestSessionRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	setupSessionRepositoryMocks(mock)

	repo, err := NewSessionRepository(db)
	require.NoError(t, err)

	expiresAt := time.Now().Add(24 * time.Hour)
	createdAt := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs("user-1", "token-abc", expiresAt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("session-1", createdAt))

	session := &domain.Session{
		UserID:    "user-1",
		Token:     "token-abc",
		ExpiresAt: expiresAt,
	}

	err = repo.Create(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "session-1", session.ID)
	assert.Equal(t, createdAt, session.CreatedAt)
}

func TestSessionRepository_GetByToken(t *testing.T) {
	t.Run("valid_session", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)

		expiresAt := time.Now().Add(time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE token = $1 AND expires_at > $2")).
			WithArgs("token-abc", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at"}).
				AddRow("session-1", "user-1", "token-abc", expiresAt, time.Now()))

		session, err := repo.GetByToken(context.Background(), "token-abc")
		require.NoError(t, err)
		assert.Equal(t, "user-1", session.UserID)
	})

	t.Run("expired_or_missing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)

		// Expired sessions fall out of the WHERE clause, so both cases
		// surface as no rows.
		mock.ExpectQuery(regexp.QuoteMeta("WHERE token = $1 AND expires_at > $2")).
			WithArgs("stale", sqlmock.AnyArg()).
			WillReturnError(sql.ErrNoRows)

		session, err := repo.GetByToken(context.Background(), "stale")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.Nil(t, session)
	})
}

func TestSessionRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	setupSessionRepositoryMocks(mock)

	repo, err := NewSessionRepository(db)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE token = $1")).
		WithArgs("token-abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Delete(context.Background(), "token-abc")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	setupSessionRepositoryMocks(mock)

	repo, err := NewSessionRepository(db)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at <= $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
