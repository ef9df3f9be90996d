package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const competitorCols = `id, user_id, name, url, monitoring_enabled, check_interval_s,
	priority, total_versions, last_checked_at, last_change_at, created_at, updated_at`

// InsertCompetitor adds a tracked page. Zero fields get defaults; the check
// interval is floored at 300 seconds.
func (s *Store) InsertCompetitor(ctx context.Context, c *Competitor) error {
	now := time.Now().UnixMilli()
	if c.ID == "" {
		c.ID = "cmp_" + s.newID()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}
	if c.CheckIntervalS < 300 {
		c.CheckIntervalS = 300
	}
	if c.Priority == "" {
		c.Priority = "medium"
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO competitors (`+competitorCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, c.Name, c.URL, c.MonitoringEnabled, c.CheckIntervalS,
		c.Priority, c.TotalVersions, c.LastCheckedAt, c.LastChangeAt,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert competitor: %w", err)
	}
	return nil
}

// GetCompetitor retrieves a competitor by ID, or nil when absent.
func (s *Store) GetCompetitor(ctx context.Context, id string) (*Competitor, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+competitorCols+` FROM competitors WHERE id = ?`, id)
	return scanCompetitor(row.Scan)
}

// ListCompetitors returns all competitors, newest first.
func (s *Store) ListCompetitors(ctx context.Context) ([]*Competitor, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+competitorCols+` FROM competitors ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list competitors: %w", err)
	}
	defer rows.Close()

	var out []*Competitor
	for rows.Next() {
		c, err := scanCompetitor(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCompetitor updates the mutable configuration fields.
func (s *Store) UpdateCompetitor(ctx context.Context, c *Competitor) error {
	c.UpdatedAt = time.Now().UnixMilli()
	if c.CheckIntervalS < 300 {
		c.CheckIntervalS = 300
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE competitors SET name=?, url=?, monitoring_enabled=?,
		check_interval_s=?, priority=?, updated_at=? WHERE id=?`,
		c.Name, c.URL, c.MonitoringEnabled, c.CheckIntervalS, c.Priority,
		c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update competitor: %w", err)
	}
	return nil
}

// DeleteCompetitor removes a competitor; snapshots and alerts cascade.
func (s *Store) DeleteCompetitor(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM competitors WHERE id = ?`, id)
	return err
}

// DueCompetitors returns monitoring-enabled competitors whose next check
// time has passed. Never-checked competitors are always due.
func (s *Store) DueCompetitors(ctx context.Context) ([]*Competitor, error) {
	now := time.Now().UnixMilli()
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+competitorCols+` FROM competitors
		WHERE monitoring_enabled = 1
		  AND (last_checked_at IS NULL OR last_checked_at + check_interval_s * 1000 <= ?)
		ORDER BY last_checked_at ASC NULLS FIRST`, now)
	if err != nil {
		return nil, fmt.Errorf("store: due competitors: %w", err)
	}
	defer rows.Close()

	var out []*Competitor
	for rows.Next() {
		c, err := scanCompetitor(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordChecked updates last_checked_at after a capture attempt that found
// no significant change.
func (s *Store) RecordChecked(ctx context.Context, id string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE competitors SET last_checked_at=?, updated_at=? WHERE id=?`,
		now, now, id)
	return err
}

// RecordChange updates all three counters after a successful versioned
// capture: last_checked_at, last_change_at, and total_versions.
func (s *Store) RecordChange(ctx context.Context, id string, totalVersions int) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE competitors SET last_checked_at=?, last_change_at=?,
		total_versions=?, updated_at=? WHERE id=?`,
		now, now, totalVersions, now, id)
	return err
}

// SetTotalVersions resyncs the version counter (used by retention).
func (s *Store) SetTotalVersions(ctx context.Context, id string, n int) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE competitors SET total_versions=?, updated_at=? WHERE id=?`,
		n, now, id)
	return err
}

func scanCompetitor(scan func(...any) error) (*Competitor, error) {
	var c Competitor
	var enabled int
	err := scan(
		&c.ID, &c.UserID, &c.Name, &c.URL, &enabled, &c.CheckIntervalS,
		&c.Priority, &c.TotalVersions, &c.LastCheckedAt, &c.LastChangeAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan competitor: %w", err)
	}
	c.MonitoringEnabled = enabled != 0
	return &c, nil
}
