package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient opens a migrated client on a temp database file.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pce_test.db")
	client, err := NewClient(context.Background(), DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClientAppliesMigrations(t *testing.T) {
	client := newTestClient(t)

	rows, err := client.DB().Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	require.NoError(t, rows.Err())

	for _, want := range []string{
		"state", "events", "actions", "cci", "approvals", "transcript", "plugin_kv",
	} {
		assert.Contains(t, tables, want)
	}
}

func TestNewClientIdempotentMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pce_test.db")

	client, err := NewClient(context.Background(), DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	// Reopening the same file must not fail on already-applied migrations.
	client, err = NewClient(context.Background(), DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestNewClientWALMode(t *testing.T) {
	client := newTestClient(t)

	var mode string
	require.NoError(t, client.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestHealth(t *testing.T) {
	client := newTestClient(t)

	status, err := Health(context.Background(), client.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.GreaterOrEqual(t, status.MaxOpenConns, 1)
}

func TestTranscriptCursorAutoincrement(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	insert := func() int64 {
		res, err := client.DB().ExecContext(ctx,
			`INSERT INTO transcript (ts, kind, agent, correlation_id, decision_id, payload_json)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			"2026-01-01T00:00:00Z", "event_ingested", "pce", "c1", "d1", "{}")
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}

	first := insert()
	second := insert()
	assert.Equal(t, first+1, second, "cursors are dense and monotonic")

	// AUTOINCREMENT never reuses a cursor, even after deleting the tail.
	_, err := client.DB().ExecContext(ctx, `DELETE FROM transcript WHERE cursor = ?`, second)
	require.NoError(t, err)
	third := insert()
	assert.Equal(t, second+1, third)
}
