package store

import "database/sql"

// Schema is the complete pagewatch schema. Timestamps are epoch milliseconds.
const Schema = `
-- Tracked competitor pages
CREATE TABLE IF NOT EXISTS competitors (
    id                 TEXT PRIMARY KEY,
    user_id            TEXT NOT NULL DEFAULT '',
    name               TEXT NOT NULL DEFAULT '',
    url                TEXT NOT NULL,
    monitoring_enabled INTEGER NOT NULL DEFAULT 1,
    check_interval_s   INTEGER NOT NULL DEFAULT 3600,
    priority           TEXT NOT NULL DEFAULT 'medium',
    total_versions     INTEGER NOT NULL DEFAULT 0,
    last_checked_at    INTEGER,
    last_change_at     INTEGER,
    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_competitors_url ON competitors(url);
CREATE INDEX IF NOT EXISTS idx_competitors_due ON competitors(monitoring_enabled, last_checked_at);

-- One recorded version of a page. full_html is present iff is_full_version,
-- optionally gzip+base64 framed (see compress.go).
CREATE TABLE IF NOT EXISTS snapshots (
    id                TEXT PRIMARY KEY,
    competitor_id     TEXT NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
    version_number    INTEGER NOT NULL,
    captured_at       INTEGER NOT NULL,
    is_full_version   INTEGER NOT NULL DEFAULT 0,
    is_current        INTEGER NOT NULL DEFAULT 0,
    full_html         TEXT NOT NULL DEFAULT '',
    change_count      INTEGER NOT NULL DEFAULT 0,
    change_percentage REAL NOT NULL DEFAULT 0,
    severity          TEXT NOT NULL DEFAULT 'low',
    change_type       TEXT NOT NULL DEFAULT 'other',
    change_summary    TEXT NOT NULL DEFAULT '',
    UNIQUE(competitor_id, version_number)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_current ON snapshots(competitor_id, is_current) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_snapshots_captured ON snapshots(competitor_id, captured_at DESC);

-- Change payload between two consecutive snapshots of one competitor.
-- diff_data is a JSON hunk array covering both documents completely.
CREATE TABLE IF NOT EXISTS snapshot_diffs (
    id                TEXT PRIMARY KEY,
    from_snapshot_id  TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    to_snapshot_id    TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    diff_data         TEXT NOT NULL,
    change_summary    TEXT NOT NULL DEFAULT '',
    change_count      INTEGER NOT NULL DEFAULT 0,
    change_percentage REAL NOT NULL DEFAULT 0,
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diffs_to ON snapshot_diffs(to_snapshot_id);
CREATE INDEX IF NOT EXISTS idx_diffs_from ON snapshot_diffs(from_snapshot_id);

-- Reported changes
CREATE TABLE IF NOT EXISTS alerts (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL DEFAULT '',
    competitor_id     TEXT NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
    snapshot_id       TEXT NOT NULL DEFAULT '',
    type              TEXT NOT NULL DEFAULT 'content_change',
    severity          TEXT NOT NULL DEFAULT 'low',
    status            TEXT NOT NULL DEFAULT 'unread',
    title             TEXT NOT NULL DEFAULT '',
    message           TEXT NOT NULL DEFAULT '',
    change_count      INTEGER NOT NULL DEFAULT 0,
    change_percentage REAL NOT NULL DEFAULT 0,
    version_number    INTEGER NOT NULL DEFAULT 0,
    change_summary    TEXT NOT NULL DEFAULT '',
    affected_sections TEXT NOT NULL DEFAULT '[]',
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id, status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_competitor ON alerts(competitor_id, created_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
