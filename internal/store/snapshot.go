package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const snapshotCols = `id, competitor_id, version_number, captured_at, is_full_version,
	is_current, full_html, change_count, change_percentage, severity, change_type, change_summary`

// GetCurrent returns the competitor's current snapshot, or nil before the
// first capture.
func (s *Store) GetCurrent(ctx context.Context, competitorID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		WHERE competitor_id = ? AND is_current = 1`, competitorID)
	return s.scanSnapshot(row.Scan)
}

// GetByVersion returns one snapshot by version number, or nil.
func (s *Store) GetByVersion(ctx context.Context, competitorID string, version int) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		WHERE competitor_id = ? AND version_number = ?`, competitorID, version)
	return s.scanSnapshot(row.Scan)
}

// GetSnapshot returns one snapshot by ID, or nil.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	return s.scanSnapshot(row.Scan)
}

// ListSnapshots returns all snapshots for a competitor ordered by version
// number, ascending or descending.
func (s *Store) ListSnapshots(ctx context.Context, competitorID string, descending bool) ([]*Snapshot, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		WHERE competitor_id = ? ORDER BY version_number `+order, competitorID)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		snap, err := s.scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// FindLastFullAtOrBefore returns the newest full snapshot with
// version_number <= version, or nil when no baseline survives.
func (s *Store) FindLastFullAtOrBefore(ctx context.Context, competitorID string, version int) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		WHERE competitor_id = ? AND is_full_version = 1 AND version_number <= ?
		ORDER BY version_number DESC LIMIT 1`, competitorID, version)
	return s.scanSnapshot(row.Scan)
}

// CountSnapshots returns the number of surviving snapshots for a competitor.
func (s *Store) CountSnapshots(ctx context.Context, competitorID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE competitor_id = ?`, competitorID).Scan(&n)
	return n, err
}

// OldestSnapshot returns the snapshot with the lowest version number, or nil.
func (s *Store) OldestSnapshot(ctx context.Context, competitorID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		WHERE competitor_id = ? ORDER BY version_number ASC LIMIT 1`, competitorID)
	return s.scanSnapshot(row.Scan)
}

// NextSnapshotAfter returns the snapshot with the lowest version number
// strictly greater than version, or nil.
func (s *Store) NextSnapshotAfter(ctx context.Context, competitorID string, version int) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots
		WHERE competitor_id = ? AND version_number > ?
		ORDER BY version_number ASC LIMIT 1`, competitorID, version)
	return s.scanSnapshot(row.Scan)
}

// CreateCurrentSnapshot inserts snap as the competitor's new current version.
// The previous current is cleared in the same transaction so "exactly one
// current" holds at every observable point. A duplicate
// (competitor_id, version_number) surfaces as ErrVersionConflict.
func (s *Store) CreateCurrentSnapshot(ctx context.Context, snap *Snapshot) error {
	return s.createSnapshot(ctx, snap, nil)
}

// CreateCurrentSnapshotWithDiff inserts snap and its incoming diff in one
// transaction: either the version and its diff both land, or neither does.
// d.ToSnapshotID is filled with the new snapshot's ID.
func (s *Store) CreateCurrentSnapshotWithDiff(ctx context.Context, snap *Snapshot, d *SnapshotDiff) error {
	return s.createSnapshot(ctx, snap, d)
}

func (s *Store) createSnapshot(ctx context.Context, snap *Snapshot, d *SnapshotDiff) error {
	if snap.ID == "" {
		snap.ID = "snap_" + s.newID()
	}
	if snap.CapturedAt == 0 {
		snap.CapturedAt = time.Now().UnixMilli()
	}
	snap.IsCurrent = true

	stored, err := encodeHTML(snap.FullHTML, s.compress)
	if err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE snapshots SET is_current = 0
		WHERE competitor_id = ? AND is_current = 1 AND id != ?`,
		snap.CompetitorID, snap.ID); err != nil {
		return fmt.Errorf("store: mark not current: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (`+snapshotCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		snap.ID, snap.CompetitorID, snap.VersionNumber, snap.CapturedAt,
		snap.IsFullVersion, snap.IsCurrent, stored, snap.ChangeCount,
		snap.ChangePercentage, snap.Severity, snap.ChangeType, snap.ChangeSummary,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("store: insert snapshot: %w", err)
	}

	if d != nil {
		d.ToSnapshotID = snap.ID
		if err := s.insertDiff(ctx, tx, d); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteSnapshot removes a snapshot; diffs referencing it cascade.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	return err
}

// PromoteToFull turns snapshot promoteID into a full baseline carrying
// fullHTML and deletes snapshot deleteID, in one transaction. Retention uses
// this so that reconstructability never has an observable gap.
func (s *Store) PromoteToFull(ctx context.Context, promoteID, fullHTML, deleteID string) error {
	stored, err := encodeHTML(fullHTML, s.compress)
	if err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE snapshots SET is_full_version = 1, full_html = ? WHERE id = ?`,
		stored, promoteID); err != nil {
		return fmt.Errorf("store: promote snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id = ?`, deleteID); err != nil {
		return fmt.Errorf("store: delete snapshot: %w", err)
	}

	return tx.Commit()
}

func (s *Store) scanSnapshot(scan func(...any) error) (*Snapshot, error) {
	var snap Snapshot
	var full, current int
	var stored string
	err := scan(
		&snap.ID, &snap.CompetitorID, &snap.VersionNumber, &snap.CapturedAt,
		&full, &current, &stored, &snap.ChangeCount, &snap.ChangePercentage,
		&snap.Severity, &snap.ChangeType, &snap.ChangeSummary,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan snapshot: %w", err)
	}
	snap.IsFullVersion = full != 0
	snap.IsCurrent = current != 0
	snap.FullHTML, err = decodeHTML(stored)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
