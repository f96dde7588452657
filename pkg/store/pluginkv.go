package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PluginEntry is one namespaced key/value pair.
type PluginEntry struct {
	Key   string
	Value json.RawMessage
}

// PluginGet loads a namespaced value into target. Returns false when the key
// does not exist (target is left untouched).
func (m *Manager) PluginGet(ctx context.Context, namespace, key string, target any) (bool, error) {
	var raw string
	err := m.db.QueryRowContext(ctx,
		`SELECT value_json FROM plugin_kv WHERE namespace = ? AND key = ?`,
		namespace, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load plugin value %s/%s: %w", namespace, key, err)
	}

	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return false, fmt.Errorf("failed to decode plugin value %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

// PluginSet stores a namespaced value, replacing any previous one.
func (m *Manager) PluginSet(ctx context.Context, namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode plugin value %s/%s: %w", namespace, key, err)
	}

	return m.submitWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO plugin_kv (namespace, key, value_json, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (namespace, key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at`,
			namespace, key, string(raw), m.now().Format(time.RFC3339Nano))
		return err
	})
}

// PluginDelete removes one namespaced key.
func (m *Manager) PluginDelete(ctx context.Context, namespace, key string) error {
	return m.submitWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`DELETE FROM plugin_kv WHERE namespace = ? AND key = ?`, namespace, key)
		return err
	})
}

// PluginDeletePrefix removes every key in the namespace starting with prefix
// and returns how many were deleted.
func (m *Manager) PluginDeletePrefix(ctx context.Context, namespace, prefix string) (int64, error) {
	var deleted int64
	err := m.submitWrite(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`DELETE FROM plugin_kv WHERE namespace = ? AND key LIKE ? ESCAPE '\'`,
			namespace, likePrefix(prefix))
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

// PluginListPrefix returns every entry in the namespace whose key starts with
// prefix, ordered by key.
func (m *Manager) PluginListPrefix(ctx context.Context, namespace, prefix string) ([]PluginEntry, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT key, value_json FROM plugin_kv WHERE namespace = ? AND key LIKE ? ESCAPE '\' ORDER BY key ASC`,
		namespace, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list plugin keys %s/%s*: %w", namespace, prefix, err)
	}
	defer rows.Close()

	var entries []PluginEntry
	for rows.Next() {
		var (
			key string
			raw string
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		entries = append(entries, PluginEntry{Key: key, Value: json.RawMessage(raw)})
	}
	return entries, rows.Err()
}

// likePrefix escapes LIKE metacharacters so prefixes containing % or _
// match literally.
func likePrefix(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+8)
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '%', '_', '\\':
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, prefix[i])
	}
	return string(escaped) + "%"
}
