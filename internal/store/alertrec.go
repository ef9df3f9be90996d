package store

import (
	"context"
	"fmt"
	"time"
)

const alertCols = `id, user_id, competitor_id, snapshot_id, type, severity, status,
	title, message, change_count, change_percentage, version_number, change_summary,
	affected_sections, created_at`

// InsertAlert records one reported change.
func (s *Store) InsertAlert(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = "alr_" + s.newID()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	if a.Status == "" {
		a.Status = "unread"
	}
	if a.Type == "" {
		a.Type = "content_change"
	}
	if a.AffectedSections == "" {
		a.AffectedSections = "[]"
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO alerts (`+alertCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.CompetitorID, a.SnapshotID, a.Type, a.Severity, a.Status,
		a.Title, a.Message, a.ChangeCount, a.ChangePercentage, a.VersionNumber,
		a.ChangeSummary, a.AffectedSections, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts for a competitor, newest first. Empty status
// means all statuses.
func (s *Store) ListAlerts(ctx context.Context, competitorID, status string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + alertCols + ` FROM alerts WHERE competitor_id = ?`
	args := []any{competitorID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.CompetitorID, &a.SnapshotID, &a.Type, &a.Severity,
			&a.Status, &a.Title, &a.Message, &a.ChangeCount, &a.ChangePercentage,
			&a.VersionNumber, &a.ChangeSummary, &a.AffectedSections, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan alert: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SetAlertStatus transitions an alert to read or archived.
func (s *Store) SetAlertStatus(ctx context.Context, id, status string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE alerts SET status = ? WHERE id = ?`, status, id)
	return err
}
