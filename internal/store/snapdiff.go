package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CreateDiff inserts the change payload between two consecutive snapshots.
func (s *Store) CreateDiff(ctx context.Context, d *SnapshotDiff) error {
	return s.insertDiff(ctx, s.DB, d)
}

func (s *Store) insertDiff(ctx context.Context, ex execContext, d *SnapshotDiff) error {
	if d.ID == "" {
		d.ID = "diff_" + s.newID()
	}
	if d.CreatedAt == 0 {
		d.CreatedAt = time.Now().UnixMilli()
	}

	data, err := json.Marshal(d.Hunks)
	if err != nil {
		return fmt.Errorf("store: marshal hunks: %w", err)
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO snapshot_diffs (id, from_snapshot_id, to_snapshot_id,
		diff_data, change_summary, change_count, change_percentage, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.FromSnapshotID, d.ToSnapshotID, string(data),
		d.ChangeSummary, d.ChangeCount, d.ChangePercentage, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert diff: %w", err)
	}
	return nil
}

// DiffsBetween returns the ordered diff chain covering versions
// fromVersion+1 .. toVersion for one competitor.
func (s *Store) DiffsBetween(ctx context.Context, competitorID string, fromVersion, toVersion int) ([]*SnapshotDiff, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT d.id, d.from_snapshot_id, d.to_snapshot_id, d.diff_data,
		        d.change_summary, d.change_count, d.change_percentage, d.created_at
		FROM snapshot_diffs d
		JOIN snapshots t ON t.id = d.to_snapshot_id
		WHERE t.competitor_id = ? AND t.version_number > ? AND t.version_number <= ?
		ORDER BY t.version_number ASC`,
		competitorID, fromVersion, toVersion)
	if err != nil {
		return nil, fmt.Errorf("store: diffs between: %w", err)
	}
	defer rows.Close()

	var out []*SnapshotDiff
	for rows.Next() {
		var d SnapshotDiff
		var data string
		if err := rows.Scan(&d.ID, &d.FromSnapshotID, &d.ToSnapshotID, &data,
			&d.ChangeSummary, &d.ChangeCount, &d.ChangePercentage, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan diff: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &d.Hunks); err != nil {
			return nil, fmt.Errorf("store: unmarshal hunks: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// IncomingDiff returns the diff whose to_snapshot_id is snapshotID, or nil.
func (s *Store) IncomingDiff(ctx context.Context, snapshotID string) (*SnapshotDiff, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, from_snapshot_id, to_snapshot_id, diff_data,
		        change_summary, change_count, change_percentage, created_at
		FROM snapshot_diffs WHERE to_snapshot_id = ?`, snapshotID)

	var d SnapshotDiff
	var data string
	err := row.Scan(&d.ID, &d.FromSnapshotID, &d.ToSnapshotID, &data,
		&d.ChangeSummary, &d.ChangeCount, &d.ChangePercentage, &d.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: incoming diff: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &d.Hunks); err != nil {
		return nil, fmt.Errorf("store: unmarshal hunks: %w", err)
	}
	return &d, nil
}
