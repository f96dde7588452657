package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pce-project/pce/pkg/models"
)

// LoadState returns the global state document, or an empty document when the
// engine has never persisted one.
func (m *Manager) LoadState(ctx context.Context) (map[string]any, error) {
	var raw []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT json FROM state WHERE key = ?`, StateKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state document: %w", err)
	}
	if state == nil {
		state = map[string]any{}
	}
	return state, nil
}

// SaveState replaces the global state document.
func (m *Manager) SaveState(ctx context.Context, state map[string]any) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state document: %w", err)
	}

	return m.submitWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO state (key, json, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET json = excluded.json, updated_at = excluded.updated_at`,
			StateKey, raw, m.now().Format(time.RFC3339Nano))
		return err
	})
}

// RememberEvent persists a normalized event into the event log.
func (m *Manager) RememberEvent(ctx context.Context, ev *models.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return m.submitWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO events (event_id, type, source, ts, json) VALUES (?, ?, ?, ?, ?)`,
			ev.EventID, ev.EventType, ev.Source,
			ev.Timestamp.UTC().Format(time.RFC3339Nano), string(raw))
		return err
	})
}

// RememberAction persists a completed action, the unit of the CCI window.
func (m *Manager) RememberAction(ctx context.Context, action *models.CompletedAction) error {
	raw, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}

	return m.submitWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO actions (action_id, decision_id, ts, json) VALUES (?, ?, ?, ?)`,
			action.ActionID, action.DecisionID,
			action.CompletedAt.UTC().Format(time.RFC3339Nano), string(raw))
		return err
	})
}

// RecentActions returns the newest n completed actions ordered oldest first,
// the order the CCI stability component expects.
func (m *Manager) RecentActions(ctx context.Context, n int) ([]*models.CompletedAction, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT json FROM actions ORDER BY ts DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.CompletedAction
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var action models.CompletedAction
		if err := json.Unmarshal([]byte(raw), &action); err != nil {
			return nil, fmt.Errorf("failed to decode action: %w", err)
		}
		actions = append(actions, &action)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
		actions[i], actions[j] = actions[j], actions[i]
	}
	return actions, nil
}

// SaveCCISnapshot persists one CCI observation keyed by its timestamp.
func (m *Manager) SaveCCISnapshot(ctx context.Context, snap *models.CCISnapshot) error {
	components, err := json.Marshal(snap.Components)
	if err != nil {
		return fmt.Errorf("failed to encode CCI components: %w", err)
	}

	return m.submitWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO cci (ts, cci, components_json) VALUES (?, ?, ?)`,
			snap.Timestamp.UTC().Format(time.RFC3339Nano), snap.Score, string(components))
		return err
	})
}

// CCIHistory returns up to limit snapshots, newest first.
func (m *Manager) CCIHistory(ctx context.Context, limit int) ([]*models.CCISnapshot, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT ts, cci, components_json FROM cci ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query CCI history: %w", err)
	}
	defer rows.Close()

	var history []*models.CCISnapshot
	for rows.Next() {
		var (
			ts         string
			score      float64
			components string
		)
		if err := rows.Scan(&ts, &score, &components); err != nil {
			return nil, err
		}

		snap := &models.CCISnapshot{Score: score}
		if snap.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse CCI timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(components), &snap.Components); err != nil {
			return nil, fmt.Errorf("failed to decode CCI components: %w", err)
		}
		history = append(history, snap)
	}
	return history, rows.Err()
}
