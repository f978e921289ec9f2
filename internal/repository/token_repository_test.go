package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chat-gateway/internal/apperr"
)

var fixedNow = time.Date(2025, 5, 10, 14, 30, 0, 0, time.UTC)

// timeArg matches a time.Time argument by instant rather than representation.
type timeArg struct{ want time.Time }

func (a timeArg) Match(v driver.Value) bool {
	got, ok := v.(time.Time)
	return ok && got.Equal(a.want)
}

func newTokenRepoWithMock(t *testing.T) (*TokenRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewTokenRepo(db)
	repo.Now = func() time.Time { return fixedNow }
	return repo, mock
}

func sequence(tokens ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		tok := tokens[i]
		i++
		return tok, nil
	}
}

const insertTokenSQL = "INSERT INTO tokens (name, phone, token, created_at, expires_at) VALUES (?,?,?,?,?)"

func TestIssue_InsertsNormalizedRow(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	repo.Generate = sequence("tok-1")

	mock.ExpectExec(regexp.QuoteMeta(insertTokenSQL)).
		WithArgs("Maria", "5511912345678", "tok-1", timeArg{fixedNow}, timeArg{fixedNow.AddDate(0, 0, 7)}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tok, err := repo.Issue(context.Background(), "  Maria ", "+55 11 91234-5678", 7)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssue_DuplicatePhone(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	repo.Generate = sequence("tok-2")

	mock.ExpectExec(regexp.QuoteMeta(insertTokenSQL)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '5511912345678' for key 'tokens.uq_tokens_phone'"})

	_, err := repo.Issue(context.Background(), "Maria", "5511912345678", 7)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDuplicatePhone, apperr.KindOf(err))
	assert.ErrorIs(t, err, ErrDuplicatePhone)
}

func TestIssue_RetriesOnTokenCollision(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	repo.Generate = sequence("taken", "fresh")

	mock.ExpectExec(regexp.QuoteMeta(insertTokenSQL)).
		WithArgs("Ana", "11987654321", "taken", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'taken' for key 'tokens.uq_tokens_token'"})
	mock.ExpectExec(regexp.QuoteMeta(insertTokenSQL)).
		WithArgs("Ana", "11987654321", "fresh", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	tok, err := repo.Issue(context.Background(), "Ana", "(11) 98765-4321", 3)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssue_StorageFailure(t *testing.T) {
	msgs := []string{
		"dial tcp: connection refused",
		// a number in the text is not a server error code
		"dial tcp 10.0.0.5:10620: connect: connection refused",
		"Error 1062 from a proxy that lost the driver type",
	}
	for _, msg := range msgs {
		repo, mock := newTokenRepoWithMock(t)
		repo.Generate = sequence("tok")

		mock.ExpectExec(regexp.QuoteMeta(insertTokenSQL)).WillReturnError(errors.New(msg))

		_, err := repo.Issue(context.Background(), "Maria", "5511912345678", 7)
		assert.Equal(t, apperr.KindStorageUnavailable, apperr.KindOf(err), msg)
		assert.NotErrorIs(t, err, ErrDuplicatePhone, msg)
	}
}

func TestIssue_TokenCollisionsExhausted(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	repo.Generate = sequence("a", "b", "c")

	for i := 0; i < tokenInsertAttempts; i++ {
		mock.ExpectExec(regexp.QuoteMeta(insertTokenSQL)).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'tokens.uq_tokens_token'"})
	}

	_, err := repo.Issue(context.Background(), "Ana", "11987654321", 3)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorageUnavailable, apperr.KindOf(err))
	assert.NotErrorIs(t, err, ErrDuplicatePhone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssue_Validation(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)

	cases := []struct {
		name, phone string
		days        int
	}{
		{"", "5511912345678", 7},
		{"Maria", "", 7},
		{"Maria", "12-34", 7},
		{"Maria", "5511912345678", 0},
		{"Maria", "5511912345678", -3},
	}
	for _, tc := range cases {
		_, err := repo.Issue(context.Background(), tc.name, tc.phone, tc.days)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "%+v", tc)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssue_NoDatabase(t *testing.T) {
	repo := NewTokenRepo(nil)
	_, err := repo.Issue(context.Background(), "Maria", "5511912345678", 7)
	assert.Equal(t, apperr.KindStorageUnavailable, apperr.KindOf(err))
}

const isValidSQL = "SELECT expires_at FROM tokens WHERE token=? LIMIT 1"

func TestIsValid_ExpiryBoundary(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	expires := fixedNow.AddDate(0, 0, 7)

	// valid right after issuance
	mock.ExpectQuery(regexp.QuoteMeta(isValidSQL)).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(expires))
	ok, err := repo.IsValid(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	// exactly at expiry
	repo.Now = func() time.Time { return expires }
	mock.ExpectQuery(regexp.QuoteMeta(isValidSQL)).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(expires))
	ok, err = repo.IsValid(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	// after expiry
	repo.Now = func() time.Time { return expires.Add(time.Minute) }
	mock.ExpectQuery(regexp.QuoteMeta(isValidSQL)).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(expires))
	ok, err = repo.IsValid(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsValid_NullExpiryAndMissingRow(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(isValidSQL)).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(nil))
	ok, err := repo.IsValid(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta(isValidSQL)).WithArgs("gone").WillReturnError(sql.ErrNoRows)
	ok, err = repo.IsValid(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.IsValid(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsValid_StorageFailure(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(isValidSQL)).WillReturnError(errors.New("bad connection"))

	_, err := repo.IsValid(context.Background(), "tok")
	assert.Equal(t, apperr.KindStorageUnavailable, apperr.KindOf(err))
}

const findActiveSQL = "SELECT token FROM tokens WHERE phone=? AND expires_at IS NOT NULL AND expires_at > ? ORDER BY id LIMIT 1"

func TestFindActiveByPhone(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(findActiveSQL)).
		WithArgs("5511912345678", timeArg{fixedNow}).
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("live"))
	tok, ok, err := repo.FindActiveByPhone(context.Background(), "+55 (11) 91234-5678")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "live", tok)

	mock.ExpectQuery(regexp.QuoteMeta(findActiveSQL)).
		WithArgs("5511912345678", timeArg{fixedNow}).
		WillReturnError(sql.ErrNoRows)
	_, ok, err = repo.FindActiveByPhone(context.Background(), "5511912345678")
	require.NoError(t, err)
	assert.False(t, ok)
}

const renewSQL = "UPDATE tokens SET expires_at=? WHERE token=?"

func TestRenew_ResetsFromNow(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)

	// The stale expiry is irrelevant: the new expiry is computed from now.
	mock.ExpectExec(regexp.QuoteMeta(renewSQL)).
		WithArgs(timeArg{fixedNow.AddDate(0, 0, 5)}, "tok").
		WillReturnResult(sqlmock.NewResult(0, 1))

	found, err := repo.Renew(context.Background(), "tok", 5)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenew_NotFound(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	mock.ExpectExec(regexp.QuoteMeta(renewSQL)).
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := repo.Renew(context.Background(), "missing", 7)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenew_NonPositiveDays(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)

	for _, days := range []int{0, -1} {
		_, err := repo.Renew(context.Background(), "tok", days)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

const revokeSQL = "DELETE FROM tokens WHERE token=?"

func TestRevoke_Idempotent(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	mock.ExpectExec(regexp.QuoteMeta(revokeSQL)).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(revokeSQL)).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := repo.Revoke(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Revoke(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_NewestFirst(t *testing.T) {
	repo, mock := newTokenRepoWithMock(t)
	newer := fixedNow
	older := fixedNow.Add(-48 * time.Hour)
	exp := newer.AddDate(0, 0, 7)

	rows := sqlmock.NewRows([]string{"id", "name", "phone", "token", "created_at", "expires_at"}).
		AddRow(2, "Bia", "11987654321", "t2", newer, exp).
		AddRow(1, "Ana", "11912345678", "t1", older, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, phone, token, created_at, expires_at FROM tokens ORDER BY created_at DESC, id DESC")).
		WillReturnRows(rows)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t2", list[0].Token)
	require.NotNil(t, list[0].ExpiresAt)
	assert.True(t, list[0].ExpiresAt.Equal(exp))
	assert.Nil(t, list[1].ExpiresAt)
}
