package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/jobpipe/internal/ciutil"
	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
	"github.com/phrazzld/jobpipe/internal/store/storetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteLedger(t *testing.T) *JobLedger {
	t.Helper()

	db, err := Open(context.Background(), Options{Dialect: DialectSQLite, DSN: ":memory:", AutoMigrate: true}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewJobLedger(db, DialectSQLite, discardLogger())
}

func TestJobLedger_SQLite(t *testing.T) {
	t.Parallel()
	storetest.RunLedgerSuite(t, func(t *testing.T) store.JobLedger {
		return newSQLiteLedger(t)
	})
}

func TestJobLedger_Postgres(t *testing.T) {
	dsn := ciutil.RequireBackend(t, ciutil.EnvTestDatabaseURL)

	db, err := Open(context.Background(), Options{Dialect: DialectPostgres, DSN: dsn, AutoMigrate: true}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	storetest.RunLedgerSuite(t, func(t *testing.T) store.JobLedger {
		_, err := db.Exec(`TRUNCATE jobs CASCADE`)
		require.NoError(t, err)
		return NewJobLedger(db, DialectPostgres, discardLogger())
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	ledger := newSQLiteLedger(t)
	require.NoError(t, Migrate(context.Background(), ledger.db, DialectSQLite, discardLogger()))
}

func TestJobLedger_CallbackWithoutData(t *testing.T) {
	t.Parallel()

	ledger := newSQLiteLedger(t)
	ctx := context.Background()

	job := storetest.NewJob(t)
	job.Callback = &domain.Callback{URL: "http://example.com/hook"}
	require.NoError(t, ledger.Create(ctx, job))

	got, err := ledger.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Callback)
	assert.Equal(t, "http://example.com/hook", got.Callback.URL)
	assert.Empty(t, got.Callback.Data)
}

func TestRebind(t *testing.T) {
	t.Parallel()

	q := `UPDATE jobs SET status = ? WHERE id = ? AND status = ?`
	assert.Equal(t, q, rebind(DialectSQLite, q))
	assert.Equal(t, `UPDATE jobs SET status = $1 WHERE id = $2 AND status = $3`, rebind(DialectPostgres, q))
}

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "file::memory:?_pragma=foreign_keys(1)", sqliteDSN(":memory:"))
	assert.Equal(t, "jobs.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", sqliteDSN("jobs.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", sqliteDSN("file:x.db?mode=rwc"))
	assert.Equal(t, "x.db?_pragma=foreign_keys(0)", sqliteDSN("x.db?_pragma=foreign_keys(0)"))
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Options{Dialect: "oracle"}, discardLogger())
	assert.Error(t, err)
}
