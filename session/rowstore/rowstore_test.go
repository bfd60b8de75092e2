package rowstore_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/trpc-group/compliance-rag/session/rowstore"
	"github.com/trpc-group/compliance-rag/storage/mysql"
)

type sqlClientAdapter struct {
	db *sql.DB
}

func (a *sqlClientAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.db.ExecContext(ctx, query, args...)
}

func (a *sqlClientAdapter) Query(ctx context.Context, handler mysql.HandlerFunc, query string, args ...any) error {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if err := handler(rows); err != nil {
		return err
	}
	return rows.Err()
}

func (a *sqlClientAdapter) Transaction(ctx context.Context, fn mysql.TxFunc) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (a *sqlClientAdapter) Close() error { return a.db.Close() }

func newStore(t *testing.T) (*rowstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return rowstore.New(&sqlClientAdapter{db: db}), mock
}

func TestCreateSession(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := store.CreateSession(context.Background(), "u1", "first chat")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveSessions(t *testing.T) {
	store, mock := newStore(t)
	rows := sqlmock.NewRows([]string{"session_id", "name", "created_at"}).
		AddRow("s1", "chat one", time.Now())
	mock.ExpectQuery("SELECT session_id, name, created_at FROM sessions").WillReturnRows(rows)

	sessions, err := store.ListActiveSessions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "s1", sessions[0].SessionID)
	require.True(t, sessions[0].Active)
}

func TestGetSession_NotFound(t *testing.T) {
	store, mock := newStore(t)
	rows := sqlmock.NewRows([]string{"session_id", "name", "created_at", "is_active"})
	mock.ExpectQuery("SELECT session_id, name, created_at, is_active FROM sessions").WillReturnRows(rows)

	_, ok, err := store.GetSession(context.Background(), "u1", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteSession_Idempotent(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("UPDATE sessions SET is_active = 0").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteSession(context.Background(), "u1", "already-gone")
	require.NoError(t, err)
}
