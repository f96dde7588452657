package store

import (
	"context"
	"database/sql"
)

// TrimEvents deletes all but the newest keep event rows.
func (m *Manager) TrimEvents(ctx context.Context, keep int) (int64, error) {
	return m.trim(ctx,
		`DELETE FROM events WHERE rowid NOT IN
		 (SELECT rowid FROM events ORDER BY ts DESC, rowid DESC LIMIT ?)`, keep)
}

// TrimActions deletes all but the newest keep action rows.
func (m *Manager) TrimActions(ctx context.Context, keep int) (int64, error) {
	return m.trim(ctx,
		`DELETE FROM actions WHERE rowid NOT IN
		 (SELECT rowid FROM actions ORDER BY ts DESC, rowid DESC LIMIT ?)`, keep)
}

// TrimCCI deletes all but the newest keep CCI snapshots.
func (m *Manager) TrimCCI(ctx context.Context, keep int) (int64, error) {
	return m.trim(ctx,
		`DELETE FROM cci WHERE rowid NOT IN
		 (SELECT rowid FROM cci ORDER BY ts DESC, rowid DESC LIMIT ?)`, keep)
}

// TrimTranscript deletes all but the newest keep transcript rows. Cursors of
// surviving rows are untouched, so consumers never observe reordering.
func (m *Manager) TrimTranscript(ctx context.Context, keep int) (int64, error) {
	return m.trim(ctx,
		`DELETE FROM transcript WHERE cursor NOT IN
		 (SELECT cursor FROM transcript ORDER BY cursor DESC LIMIT ?)`, keep)
}

func (m *Manager) trim(ctx context.Context, query string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	var deleted int64
	err := m.submitWrite(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(query, keep)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
