// Package version implements the snapshot versioning policy: full versus
// diff writes, reconstruction of any surviving version, and retention with
// promote-next-on-delete.
package version

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pagewatch/pagewatch/internal/diffhtml"
	"github.com/pagewatch/pagewatch/internal/store"
)

var (
	// ErrVersionNotFound means the requested version does not exist.
	ErrVersionNotFound = errors.New("version: not found")
	// ErrNoReachableBaseline means no full snapshot exists at or before the
	// requested version.
	ErrNoReachableBaseline = errors.New("version: no reachable baseline")
	// ErrNotReconstructable means the diff chain has a gap or a corrupt
	// payload.
	ErrNotReconstructable = errors.New("version: not reconstructable")
	// ErrRetentionBlocked means a retention step could not complete; the
	// preceding capture is unaffected.
	ErrRetentionBlocked = errors.New("version: retention blocked")
)

// Config tunes the engine.
type Config struct {
	// FullVersionInterval writes every Nth version as a full baseline.
	// Default: 10.
	FullVersionInterval int
	// MaxVersions is the retention ceiling per competitor. Default: 30.
	MaxVersions int
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.FullVersionInterval <= 0 {
		c.FullVersionInterval = 10
	}
	if c.MaxVersions <= 0 {
		c.MaxVersions = 30
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine applies the versioning policy on top of the store.
type Engine struct {
	store *store.Store
	cfg   Config
}

// New creates an Engine.
func New(s *store.Store, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{store: s, cfg: cfg}
}

// shouldBeFull decides whether version n+1 is written as a full baseline:
// every FullVersionInterval-th version, any critical change, and always the
// first capture.
func (e *Engine) shouldBeFull(n int, severity diffhtml.Severity) bool {
	return (n+1)%e.cfg.FullVersionInterval == 0 ||
		severity == diffhtml.SeverityCritical ||
		n == 0
}

// Write persists one new version. current is nil for the initial capture.
// prevRaw is the raw HTML of the current version (already reconstructed by
// the caller); raw is the newly rendered HTML. norm carries the metrics of
// the normalized diff. Returns store.ErrVersionConflict when a concurrent
// writer won the version number.
func (e *Engine) Write(ctx context.Context, competitorID string, current *store.Snapshot, prevRaw, raw string, norm *diffhtml.Result) (*store.Snapshot, error) {
	n := 0
	if current != nil {
		n = current.VersionNumber
	}
	full := e.shouldBeFull(n, norm.Severity)

	snap := &store.Snapshot{
		CompetitorID:     competitorID,
		VersionNumber:    n + 1,
		IsFullVersion:    full,
		ChangeCount:      norm.ChangeCount,
		ChangePercentage: norm.ChangePercentage,
		Severity:         string(norm.Severity),
		ChangeType:       string(norm.ChangeType),
		ChangeSummary:    norm.Summary,
	}
	if full {
		snap.FullHTML = raw
	}

	if n == 0 {
		if err := e.store.CreateCurrentSnapshot(ctx, snap); err != nil {
			return nil, err
		}
		return snap, nil
	}

	// The stored diff is computed raw-to-raw so the chain reconstructs
	// byte-identical HTML; the normalized diff only drives metrics. Snapshot
	// and diff land in one transaction: a failed write leaves neither.
	cover := diffhtml.Compare(prevRaw, raw, diffhtml.Config{})
	if err := e.store.CreateCurrentSnapshotWithDiff(ctx, snap, &store.SnapshotDiff{
		FromSnapshotID:   current.ID,
		Hunks:            cover.Hunks,
		ChangeSummary:    norm.Summary,
		ChangeCount:      norm.ChangeCount,
		ChangePercentage: norm.ChangePercentage,
	}); err != nil {
		return nil, err
	}

	return snap, nil
}

// Reconstruct returns the raw HTML of any surviving version, byte-identical
// to what the renderer returned at capture time.
func (e *Engine) Reconstruct(ctx context.Context, competitorID string, version int) (string, error) {
	snap, err := e.store.GetByVersion(ctx, competitorID, version)
	if err != nil {
		return "", err
	}
	if snap == nil {
		return "", fmt.Errorf("%w: version %d", ErrVersionNotFound, version)
	}
	if snap.IsFullVersion {
		return snap.FullHTML, nil
	}

	base, err := e.store.FindLastFullAtOrBefore(ctx, competitorID, version)
	if err != nil {
		return "", err
	}
	if base == nil {
		return "", fmt.Errorf("%w: version %d", ErrNoReachableBaseline, version)
	}

	diffs, err := e.store.DiffsBetween(ctx, competitorID, base.VersionNumber, version)
	if err != nil {
		return "", err
	}
	if len(diffs) != version-base.VersionNumber {
		return "", fmt.Errorf("%w: chain gap (%d diffs for versions %d..%d)",
			ErrNotReconstructable, len(diffs), base.VersionNumber, version)
	}

	html := base.FullHTML
	for _, d := range diffs {
		html, err = applyHunks(html, d.Hunks)
		if err != nil {
			return "", fmt.Errorf("%w: diff %s: %v", ErrNotReconstructable, d.ID, err)
		}
	}
	return html, nil
}

// applyHunks rebuilds the new document from the base and a complete hunk
// cover: unchanged and removed hunks in order must reproduce the base, and
// the result is the unchanged and added hunks in order.
func applyHunks(base string, hunks []diffhtml.Hunk) (string, error) {
	var oldSide, newSide strings.Builder
	for _, h := range hunks {
		switch h.Op {
		case diffhtml.OpUnchanged:
			oldSide.WriteString(h.Text)
			newSide.WriteString(h.Text)
		case diffhtml.OpRemoved:
			oldSide.WriteString(h.Text)
		case diffhtml.OpAdded:
			newSide.WriteString(h.Text)
		default:
			return "", fmt.Errorf("unknown hunk op %q", h.Op)
		}
	}
	if oldSide.String() != base {
		return "", errors.New("hunk cover does not match base document")
	}
	return newSide.String(), nil
}

// Retention deletes the oldest snapshots until the competitor is at or
// under the retention ceiling. When the oldest is a full baseline, the next
// snapshot is first reconstructed and promoted so reachability never has a
// gap. A failed step wraps ErrRetentionBlocked and leaves the capture that
// triggered it intact.
func (e *Engine) Retention(ctx context.Context, competitorID string) error {
	log := e.cfg.Logger
	for {
		n, err := e.store.CountSnapshots(ctx, competitorID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRetentionBlocked, err)
		}
		if n <= e.cfg.MaxVersions {
			return nil
		}

		oldest, err := e.store.OldestSnapshot(ctx, competitorID)
		if err != nil || oldest == nil {
			return fmt.Errorf("%w: oldest lookup: %v", ErrRetentionBlocked, err)
		}

		if !oldest.IsFullVersion {
			if err := e.store.DeleteSnapshot(ctx, oldest.ID); err != nil {
				return fmt.Errorf("%w: delete v%d: %v", ErrRetentionBlocked, oldest.VersionNumber, err)
			}
			continue
		}

		next, err := e.store.NextSnapshotAfter(ctx, competitorID, oldest.VersionNumber)
		if err != nil {
			return fmt.Errorf("%w: next lookup: %v", ErrRetentionBlocked, err)
		}
		if next == nil || next.IsFullVersion {
			// Nothing depends on this baseline.
			if err := e.store.DeleteSnapshot(ctx, oldest.ID); err != nil {
				return fmt.Errorf("%w: delete v%d: %v", ErrRetentionBlocked, oldest.VersionNumber, err)
			}
			continue
		}

		html, err := e.Reconstruct(ctx, competitorID, next.VersionNumber)
		if err != nil {
			return fmt.Errorf("%w: reconstruct v%d: %v", ErrRetentionBlocked, next.VersionNumber, err)
		}
		if err := e.store.PromoteToFull(ctx, next.ID, html, oldest.ID); err != nil {
			return fmt.Errorf("%w: promote v%d: %v", ErrRetentionBlocked, next.VersionNumber, err)
		}
		log.Debug("version: retention promoted baseline",
			"competitor_id", competitorID, "promoted", next.VersionNumber, "deleted", oldest.VersionNumber)
	}
}
