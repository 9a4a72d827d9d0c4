package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return New(db), mock, db
}

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.Len(t, migrations, 4)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "migrations are numbered in order")
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
	assert.Contains(t, migrations[3].SQL, "renewal_status")
}

func TestRunMigrations(t *testing.T) {
	t.Run("applies pending migrations", func(t *testing.T) {
		_, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS access_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT version FROM access_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))

		for _, m := range GetMigrations()[2:] {
			mock.ExpectBegin()
			mock.ExpectExec(`.+`).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(`INSERT INTO access_migrations`).
				WithArgs(m.Version, m.Description).
				WillReturnResult(sqlmock.NewResult(1, 1))
			mock.ExpectCommit()
		}

		require.NoError(t, RunMigrations(context.Background(), db))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back a failed migration", func(t *testing.T) {
		_, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS access_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT version FROM access_migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}))
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()

		err := RunMigrations(context.Background(), db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to apply migration 1")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tracking table failure", func(t *testing.T) {
		_, mock, db := newMockStore(t)
		defer db.Close()

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS access_migrations`).WillReturnError(errors.New("read-only"))

		err := RunMigrations(context.Background(), db)
		assert.ErrorContains(t, err, "failed to create migrations table")
	})
}

func TestStore_LocksRowsOnPostgres(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM project_members WHERE project_id = \$1 AND user_id = \$2 FOR UPDATE`).
		WithArgs("tower", "bob").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.UpdateExpiration(context.Background(), "bob", "tower", func(s model.ExpirationState) (model.ExpirationState, error) {
		return s, nil
	})
	assert.True(t, model.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_OrganizationLock(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM organizations WHERE id = \$1 FOR UPDATE`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("acme"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM organization_members`).
		WithArgs("acme", "OWNER").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.MutateOrganizationMembership(context.Background(), "bob", "acme",
		func(*model.OrganizationMembership, int) (*model.OrganizationMembership, error) {
			t.Fatal("mutation must not run when the owner count fails")
			return nil, nil
		})
	assert.ErrorContains(t, err, "failed to count owners")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryErrors(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, email, system_role, created_at FROM users`).
		WithArgs("alice").
		WillReturnError(errors.New("connection refused"))
	_, err := store.GetUser(ctx, "alice")
	require.Error(t, err)
	assert.False(t, model.IsNotFound(err))
	assert.Contains(t, err.Error(), "failed to get user")

	mock.ExpectQuery(`SELECT user_id FROM organization_members`).
		WithArgs("acme").
		WillReturnError(errors.New("timeout"))
	_, err = store.ListOrganizationMemberIDs(ctx, "acme")
	assert.ErrorContains(t, err, "failed to list organization members")

	mock.ExpectExec(`DELETE FROM project_members`).
		WithArgs("tower", "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, model.IsNotFound(store.DeleteProjectMembership(ctx, "bob", "tower")))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, store.HealthCheck(ctx), "database unhealthy")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_RequiresURL(t *testing.T) {
	_, err := Open(storage.Config{Type: "postgres"})
	assert.ErrorContains(t, err, "postgres url is required")
}
