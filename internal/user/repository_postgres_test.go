package user

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wichananm65/referral-service/internal/referral"
)

var userRowColumns = []string{"id", "full_name", "username", "email", "phone", "password", "role", "referral_code", "referrer", "referral_tree", "deed_energy", "wallet_address", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgres_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows(userRowColumns).
		AddRow("id-b", "Bob", "bob", "b@x", "1", "hash", "user", "BBBB", "id-a",
			[]byte(`[{"id":"id-c","referralCode":"CCCC","referralTree":[]}]`), 2.5, nil, now, now)
	mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("id-b").WillReturnRows(rows)

	u, err := repo.GetByID(context.Background(), "id-b")
	require.NoError(t, err)
	assert.Equal(t, "Bob", u.FullName)
	require.NotNil(t, u.Referrer)
	assert.Equal(t, "id-a", *u.Referrer)
	assert.Nil(t, u.WalletAddress)
	assert.Equal(t, 2.5, u.DeedEnergy)
	assert.Equal(t, referral.Tree{{ID: "id-c", ReferralCode: "CCCC", ReferralTree: referral.Tree{}}}, u.ReferralTree)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM users WHERE id").WithArgs("missing").WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListByReferrerKeepsOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(userRowColumns).
		AddRow("id-1", "One", "one", "1@x", "1", "h", "user", "C1", "root", []byte(`[]`), 0.0, nil, now, now).
		AddRow("id-2", "Two", "two", "2@x", "2", "h", "user", "C2", "root", []byte(`[]`), 0.0, "0xabc", now, now)
	mock.ExpectQuery("WHERE referrer = \\$1 ORDER BY created_at, id").WithArgs("root").WillReturnRows(rows)

	users, err := repo.ListByReferrer(context.Background(), "root")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "id-1", users[0].ID)
	assert.Equal(t, "id-2", users[1].ID)
	require.NotNil(t, users[1].WalletAddress)
	assert.Equal(t, "0xabc", *users[1].WalletAddress)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReferralCodeExists(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("ABCD").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ReferralCodeExists(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateAssignsIDAndDefaults(t *testing.T) {
	repo, mock := newMockRepo(t)

	args := make([]driver.Value, 14)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO users").WithArgs(args...).WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Create(context.Background(), User{
		FullName: "Ann", Username: "ann", Email: "a@x", Phone: "1", Password: "h", ReferralCode: "AAAA",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, DefaultRole, created.Role)
	assert.NotNil(t, created.ReferralTree)
	assert.False(t, created.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateReturnsPreviousRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("id-a").WillReturnRows(
		sqlmock.NewRows(userRowColumns).
			AddRow("id-a", "Old", "a", "a@x", "1", "h", "user", "AAAA", nil, []byte(`[]`), 0.0, nil, now, now))
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name := "New"
	before, err := repo.Update(context.Background(), "id-a", Patch{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Old", before.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateMissingRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("ghost").WillReturnRows(sqlmock.NewRows(userRowColumns))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "ghost", Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetReferralTree(t *testing.T) {
	repo, mock := newMockRepo(t)

	tree := referral.Tree{{ID: "c", ReferralCode: "CCCC", ReferralTree: referral.Tree{}}}
	mock.ExpectExec("UPDATE users SET referral_tree").
		WithArgs("p", []byte(`[{"id":"c","referralCode":"CCCC","referralTree":[]}]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET referral_tree").
		WithArgs("gone", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetReferralTree(context.Background(), "p", tree))
	assert.ErrorIs(t, repo.SetReferralTree(context.Background(), "gone", nil), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteAndDeleteAll(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("DELETE FROM users WHERE id = \\$1 RETURNING").WithArgs("id-a").WillReturnRows(
		sqlmock.NewRows(userRowColumns).
			AddRow("id-a", "A", "a", "a@x", "1", "h", "user", "AAAA", nil, []byte(`[]`), 0.0, nil, now, now))
	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := repo.Delete(context.Background(), "id-a")
	require.NoError(t, err)
	assert.Equal(t, "id-a", deleted.ID)

	n, err := repo.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_StoreErrorSurfaces(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM users ORDER BY").WillReturnError(errors.New("connection reset"))

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS users_referrer_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
