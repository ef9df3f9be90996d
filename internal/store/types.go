package store

import "github.com/pagewatch/pagewatch/internal/diffhtml"

// Competitor is one tracked page. The outer system creates it; the core reads
// it and maintains the three counters on each capture.
type Competitor struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	URL               string `json:"url"`
	MonitoringEnabled bool   `json:"monitoring_enabled"`
	// CheckIntervalS is the capture cadence in seconds, floor 300.
	CheckIntervalS int    `json:"check_interval_s"`
	Priority       string `json:"priority"` // low | medium | high
	TotalVersions  int    `json:"total_versions"`
	LastCheckedAt  *int64 `json:"last_checked_at,omitempty"` // epoch ms
	LastChangeAt   *int64 `json:"last_change_at,omitempty"`  // epoch ms
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Snapshot is one recorded version of a page. FullHTML always holds plain
// HTML at this layer; on-disk framing is the store's concern.
type Snapshot struct {
	ID               string  `json:"id"`
	CompetitorID     string  `json:"competitor_id"`
	VersionNumber    int     `json:"version_number"`
	CapturedAt       int64   `json:"captured_at"` // epoch ms
	IsFullVersion    bool    `json:"is_full_version"`
	IsCurrent        bool    `json:"is_current"`
	FullHTML         string  `json:"-"`
	ChangeCount      int     `json:"change_count"`
	ChangePercentage float64 `json:"change_percentage"`
	Severity         string  `json:"severity"`
	ChangeType       string  `json:"change_type"`
	ChangeSummary    string  `json:"change_summary"`
}

// SnapshotDiff is the change payload between two consecutive snapshots.
type SnapshotDiff struct {
	ID               string          `json:"id"`
	FromSnapshotID   string          `json:"from_snapshot_id"`
	ToSnapshotID     string          `json:"to_snapshot_id"`
	Hunks            []diffhtml.Hunk `json:"hunks"`
	ChangeSummary    string          `json:"change_summary"`
	ChangeCount      int             `json:"change_count"`
	ChangePercentage float64         `json:"change_percentage"`
	CreatedAt        int64           `json:"created_at"`
}

// Alert is one reported change, owned by the competitor's user.
type Alert struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	CompetitorID     string  `json:"competitor_id"`
	SnapshotID       string  `json:"snapshot_id"`
	Type             string  `json:"type"`     // content_change | price_change | new_page | page_removed | error
	Severity         string  `json:"severity"` // copied from the triggering snapshot
	Status           string  `json:"status"`   // unread | read | archived
	Title            string  `json:"title"`
	Message          string  `json:"message"`
	ChangeCount      int     `json:"change_count"`
	ChangePercentage float64 `json:"change_percentage"`
	VersionNumber    int     `json:"version_number"`
	ChangeSummary    string  `json:"change_summary"`
	// AffectedSections is a JSON array of section records.
	AffectedSections string `json:"affected_sections"`
	CreatedAt        int64  `json:"created_at"`
}
