package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateCreatesSchema(t *testing.T) {
	conn := openMemoryDB(t)
	require.NoError(t, Migrate(conn, nil))

	for _, table := range []string{"schema_migrations", "pipeline_runs", "run_records", "run_locks"} {
		var name string
		err := conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openMemoryDB(t)
	require.NoError(t, Migrate(conn, nil))
	require.NoError(t, Migrate(conn, nil))

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 4, count)
}

func TestOneRunningIndexEnforced(t *testing.T) {
	conn := openMemoryDB(t)
	require.NoError(t, Migrate(conn, nil))

	_, err := conn.Exec(
		"INSERT INTO pipeline_runs (id, status, started_at) VALUES ('r1', 'running', CURRENT_TIMESTAMP)")
	require.NoError(t, err)

	insert := `INSERT INTO run_records (id, run_id, agent_name, status, attempt, started_at)
		VALUES (?, 'r1', 'pattern_recognition', 'running', ?, CURRENT_TIMESTAMP)`
	_, err = conn.Exec(insert, "rec1", 1)
	require.NoError(t, err)

	// Second concurrent running record for the same (run, agent) is rejected.
	_, err = conn.Exec(insert, "rec2", 2)
	require.Error(t, err)
}

func TestOpenOnDisk(t *testing.T) {
	path := t.TempDir() + "/noculars.db"
	conn, err := Open(path, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(conn, nil))

	var mode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}
