package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pce-project/pce/pkg/models"
)

// InsertApproval persists a new approval record.
func (m *Manager) InsertApproval(ctx context.Context, a *models.Approval) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode approval: %w", err)
	}

	return m.submitWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO approvals (approval_id, status, json, created_at, resolved_at) VALUES (?, ?, ?, ?, ?)`,
			a.ApprovalID, string(a.Status), string(raw),
			a.CreatedAt.UTC().Format(time.RFC3339Nano), nullableTime(a.ResolvedAt))
		return err
	})
}

// UpdateApproval rewrites an existing approval record.
func (m *Manager) UpdateApproval(ctx context.Context, a *models.Approval) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode approval: %w", err)
	}

	return m.submitWrite(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE approvals SET status = ?, json = ?, resolved_at = ? WHERE approval_id = ?`,
			string(a.Status), string(raw), nullableTime(a.ResolvedAt), a.ApprovalID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetApproval loads one approval by ID.
func (m *Manager) GetApproval(ctx context.Context, approvalID string) (*models.Approval, error) {
	var raw string
	err := m.db.QueryRowContext(ctx,
		`SELECT json FROM approvals WHERE approval_id = ?`, approvalID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval: %w", err)
	}

	var approval models.Approval
	if err := json.Unmarshal([]byte(raw), &approval); err != nil {
		return nil, fmt.Errorf("failed to decode approval: %w", err)
	}
	return &approval, nil
}

// ListApprovals returns all approvals ordered by creation time.
func (m *Manager) ListApprovals(ctx context.Context) ([]*models.Approval, error) {
	return m.queryApprovals(ctx,
		`SELECT json FROM approvals ORDER BY created_at ASC, rowid ASC`)
}

// ListApprovalsByStatus returns approvals in one status, oldest first.
func (m *Manager) ListApprovalsByStatus(ctx context.Context, status models.ApprovalStatus) ([]*models.Approval, error) {
	return m.queryApprovals(ctx,
		`SELECT json FROM approvals WHERE status = ? ORDER BY created_at ASC, rowid ASC`, string(status))
}

// CountApprovalsByStatus counts approvals in one status.
func (m *Manager) CountApprovalsByStatus(ctx context.Context, status models.ApprovalStatus) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approvals WHERE status = ?`, string(status)).Scan(&count)
	return count, err
}

func (m *Manager) queryApprovals(ctx context.Context, query string, args ...any) ([]*models.Approval, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var approval models.Approval
		if err := json.Unmarshal([]byte(raw), &approval); err != nil {
			return nil, fmt.Errorf("failed to decode approval: %w", err)
		}
		approvals = append(approvals, &approval)
	}
	return approvals, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
