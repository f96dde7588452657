package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pce-project/pce/pkg/models"
)

// AppendTranscript appends one item to the audit log and returns the cursor
// the database assigned to it. Cursors are strictly monotonic and never
// reused, even after retention trims.
func (m *Manager) AppendTranscript(ctx context.Context, item *models.TranscriptItem) (int64, error) {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode transcript payload: %w", err)
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = m.now()
	}

	var cursor int64
	err = m.submitWrite(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO transcript (ts, kind, agent, correlation_id, decision_id, payload_json)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			item.Timestamp.UTC().Format(time.RFC3339Nano), string(item.Kind),
			item.Agent, item.CorrelationID, item.DecisionID, string(payload))
		if err != nil {
			return err
		}
		cursor, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	item.Cursor = cursor
	return cursor, nil
}

// TranscriptSince returns up to limit items with cursor strictly greater
// than since, in cursor order.
func (m *Manager) TranscriptSince(ctx context.Context, since int64, limit int) ([]*models.TranscriptItem, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT cursor, ts, kind, agent, correlation_id, decision_id, payload_json
		 FROM transcript WHERE cursor > ? ORDER BY cursor ASC LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var items []*models.TranscriptItem
	for rows.Next() {
		item, err := scanTranscriptItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// LatestCursor returns the highest assigned transcript cursor (0 when empty).
func (m *Manager) LatestCursor(ctx context.Context) (int64, error) {
	var cursor sql.NullInt64
	err := m.db.QueryRowContext(ctx, `SELECT MAX(cursor) FROM transcript`).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest cursor: %w", err)
	}
	if !cursor.Valid {
		return 0, nil
	}
	return cursor.Int64, nil
}

func scanTranscriptItem(rows *sql.Rows) (*models.TranscriptItem, error) {
	var (
		item          models.TranscriptItem
		ts, kind      string
		agent         sql.NullString
		correlationID sql.NullString
		decisionID    sql.NullString
		payload       string
	)
	if err := rows.Scan(&item.Cursor, &ts, &kind, &agent, &correlationID, &decisionID, &payload); err != nil {
		return nil, err
	}

	var err error
	if item.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("failed to parse transcript timestamp: %w", err)
	}
	item.Kind = models.TranscriptKind(kind)
	item.Agent = agent.String
	item.CorrelationID = correlationID.String
	item.DecisionID = decisionID.String
	if err := json.Unmarshal([]byte(payload), &item.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode transcript payload: %w", err)
	}
	return &item, nil
}
