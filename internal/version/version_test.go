package version

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/pagewatch/pagewatch/internal/dbopen"
	"github.com/pagewatch/pagewatch/internal/diffhtml"
	"github.com/pagewatch/pagewatch/internal/store"
)

func newEngine(t *testing.T, cfg Config) (*Engine, *store.Store, string) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	s := store.New(db)
	c := &store.Competitor{URL: "https://acme.example/", MonitoringEnabled: true}
	if err := s.InsertCompetitor(context.Background(), c); err != nil {
		t.Fatalf("InsertCompetitor: %v", err)
	}
	return New(s, cfg), s, c.ID
}

// pageHTML builds a multi-line document whose middle changes per version,
// so diffs hit mid-document edits, not just appends.
func pageHTML(v int) string {
	var b strings.Builder
	b.WriteString("<html><body>\n<header>Acme</header>\n")
	for i := 0; i < 5; i++ {
		b.WriteString(fmt.Sprintf("<p>stable paragraph %d</p>\n", i))
	}
	b.WriteString(fmt.Sprintf("<div>version %d payload: %s</div>\n", v, strings.Repeat("x", 50+v)))
	b.WriteString("<footer>contact us</footer>\n</body></html>\n")
	return b.String()
}

// writeVersions drives the engine through count sequential captures and
// returns the raw HTML of each version, indexed by version number.
func writeVersions(t *testing.T, e *Engine, competitorID string, count int) map[int]string {
	t.Helper()
	ctx := context.Background()
	raws := map[int]string{}
	var current *store.Snapshot
	prevRaw := ""
	for v := 1; v <= count; v++ {
		raw := pageHTML(v)
		norm := &diffhtml.Result{
			Severity:   diffhtml.SeverityLow,
			ChangeType: diffhtml.ChangeContent,
			Summary:    "test change",
		}
		if current == nil {
			norm.Summary = "initial"
			norm.ChangeType = diffhtml.ChangeOther
		}
		snap, err := e.Write(ctx, competitorID, current, prevRaw, raw, norm)
		if err != nil {
			t.Fatalf("Write v%d: %v", v, err)
		}
		if snap.VersionNumber != v {
			t.Fatalf("Write v%d produced version %d", v, snap.VersionNumber)
		}
		raws[v] = raw
		current, prevRaw = snap, raw
	}
	return raws
}

// WHAT: with full_version_interval=3, ten captures produce full baselines
// at versions 1, 3, 6, 9 and diffs everywhere else.
func TestFullVersionCadence(t *testing.T) {
	e, s, id := newEngine(t, Config{FullVersionInterval: 3, MaxVersions: 100})
	writeVersions(t, e, id, 10)

	snaps, err := s.ListSnapshots(context.Background(), id, false)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	wantFull := map[int]bool{1: true, 3: true, 6: true, 9: true}
	for _, snap := range snaps {
		if snap.IsFullVersion != wantFull[snap.VersionNumber] {
			t.Errorf("v%d full = %v, want %v", snap.VersionNumber, snap.IsFullVersion, wantFull[snap.VersionNumber])
		}
		if snap.IsCurrent != (snap.VersionNumber == 10) {
			t.Errorf("v%d current = %v", snap.VersionNumber, snap.IsCurrent)
		}
	}
}

// WHAT: a critical change forces a full baseline off-cadence.
func TestCriticalForcesFull(t *testing.T) {
	e, _, id := newEngine(t, Config{FullVersionInterval: 10, MaxVersions: 100})
	ctx := context.Background()

	v1, err := e.Write(ctx, id, nil, "", pageHTML(1), &diffhtml.Result{Severity: diffhtml.SeverityLow, Summary: "initial"})
	if err != nil {
		t.Fatal(err)
	}
	v2, err := e.Write(ctx, id, v1, pageHTML(1), pageHTML(2), &diffhtml.Result{Severity: diffhtml.SeverityCritical, Summary: "rewrite"})
	if err != nil {
		t.Fatal(err)
	}
	if !v2.IsFullVersion {
		t.Errorf("critical v2 not written as full")
	}
}

// WHAT: every version between two baselines reconstructs byte-identically
// to the HTML that was captured.
// WHY: this is the round-trip law; the whole diff-storage design exists to
// keep it true.
func TestReconstructByteIdentical(t *testing.T) {
	e, _, id := newEngine(t, Config{FullVersionInterval: 10, MaxVersions: 100})
	raws := writeVersions(t, e, id, 10)
	ctx := context.Background()

	for v := 1; v <= 10; v++ {
		got, err := e.Reconstruct(ctx, id, v)
		if err != nil {
			t.Fatalf("Reconstruct v%d: %v", v, err)
		}
		if got != raws[v] {
			t.Errorf("Reconstruct v%d differs from captured HTML", v)
		}
	}
}

// WHAT: reconstruction failure modes each map to their own error.
func TestReconstructErrors(t *testing.T) {
	e, s, id := newEngine(t, Config{FullVersionInterval: 10, MaxVersions: 100})
	writeVersions(t, e, id, 5)
	ctx := context.Background()

	if _, err := e.Reconstruct(ctx, id, 99); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("missing version error = %v, want ErrVersionNotFound", err)
	}

	// Break the chain: remove the diff into version 3.
	v3, err := s.GetByVersion(ctx, id, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB.ExecContext(ctx,
		`DELETE FROM snapshot_diffs WHERE to_snapshot_id = ?`, v3.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Reconstruct(ctx, id, 4); !errors.Is(err, ErrNotReconstructable) {
		t.Errorf("chain gap error = %v, want ErrNotReconstructable", err)
	}

	// Remove the baseline entirely.
	v1, err := s.GetByVersion(ctx, id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB.ExecContext(ctx,
		`UPDATE snapshots SET is_full_version = 0, full_html = '' WHERE id = ?`, v1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Reconstruct(ctx, id, 2); !errors.Is(err, ErrNoReachableBaseline) {
		t.Errorf("no baseline error = %v, want ErrNoReachableBaseline", err)
	}
}

// WHAT: a corrupt diff payload is detected instead of silently producing
// wrong HTML.
func TestReconstructCorruptPayload(t *testing.T) {
	e, s, id := newEngine(t, Config{FullVersionInterval: 10, MaxVersions: 100})
	writeVersions(t, e, id, 3)
	ctx := context.Background()

	v2, err := s.GetByVersion(ctx, id, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB.ExecContext(ctx,
		`UPDATE snapshot_diffs SET diff_data = ? WHERE to_snapshot_id = ?`,
		`[{"op":"unchanged","text":"<html>wrong</html>","lines":1}]`, v2.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Reconstruct(ctx, id, 2); !errors.Is(err, ErrNotReconstructable) {
		t.Errorf("corrupt payload error = %v, want ErrNotReconstructable", err)
	}
}

// WHAT: retention at max_versions=3 with versions 1(full) 2(diff) 3(full)
// 4(diff) deletes version 1 and promotes version 2 to a full baseline;
// every surviving version still reconstructs.
func TestRetentionPromotesNext(t *testing.T) {
	e, s, id := newEngine(t, Config{FullVersionInterval: 3, MaxVersions: 3})
	raws := writeVersions(t, e, id, 4)
	ctx := context.Background()

	// Precondition: 1 full, 2 diff, 3 full, 4 diff.
	for v, wantFull := range map[int]bool{1: true, 2: false, 3: true, 4: false} {
		snap, err := s.GetByVersion(ctx, id, v)
		if err != nil || snap == nil {
			t.Fatalf("v%d: %v", v, err)
		}
		if snap.IsFullVersion != wantFull {
			t.Fatalf("precondition v%d full = %v", v, snap.IsFullVersion)
		}
	}

	if err := e.Retention(ctx, id); err != nil {
		t.Fatalf("Retention: %v", err)
	}

	gone, err := s.GetByVersion(ctx, id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Errorf("version 1 survived retention")
	}

	v2, err := s.GetByVersion(ctx, id, 2)
	if err != nil || v2 == nil {
		t.Fatalf("v2 after retention: %v", err)
	}
	if !v2.IsFullVersion {
		t.Errorf("version 2 not promoted to full")
	}
	if v2.FullHTML != raws[2] {
		t.Errorf("promoted full_html differs from captured HTML")
	}

	for v := 2; v <= 4; v++ {
		got, err := e.Reconstruct(ctx, id, v)
		if err != nil {
			t.Errorf("Reconstruct v%d after retention: %v", v, err)
			continue
		}
		if got != raws[v] {
			t.Errorf("Reconstruct v%d differs after retention", v)
		}
	}
}

// WHAT: retention deletes plain diff snapshots without promotion and stops
// at the ceiling.
func TestRetentionDeletesDiffsDirectly(t *testing.T) {
	e, s, id := newEngine(t, Config{FullVersionInterval: 3, MaxVersions: 4})
	raws := writeVersions(t, e, id, 7) // fulls at 1, 3, 6
	ctx := context.Background()

	if err := e.Retention(ctx, id); err != nil {
		t.Fatalf("Retention: %v", err)
	}

	n, err := s.CountSnapshots(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("count after retention = %d, want 4", n)
	}
	for v := 4; v <= 7; v++ {
		got, err := e.Reconstruct(ctx, id, v)
		if err != nil {
			t.Errorf("Reconstruct v%d: %v", v, err)
			continue
		}
		if got != raws[v] {
			t.Errorf("Reconstruct v%d differs after retention", v)
		}
	}
}

// WHAT: when the diff insert fails mid-write, the snapshot rolls back with
// it: the failed version leaves no row and the previous current survives
// untouched and reconstructable.
// WHY: a non-full snapshot without its incoming diff is unreconstructable
// and poisons every later version chained through it.
func TestWriteRollsBackOnDiffFailure(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	// ID sequence: competitor, snap v1, snap v2, diff v2, snap v3, diff v3.
	// The last entry repeats the v2 diff ID, so the v3 diff insert hits the
	// primary key.
	ids := []string{"c1", "s1", "s2", "d1", "s3", "d1"}
	n := 0
	s := store.New(db, store.WithIDGenerator(func() string {
		id := ids[n%len(ids)]
		n++
		return id
	}))
	ctx := context.Background()

	c := &store.Competitor{URL: "https://acme.example/", MonitoringEnabled: true}
	if err := s.InsertCompetitor(ctx, c); err != nil {
		t.Fatalf("InsertCompetitor: %v", err)
	}
	e := New(s, Config{FullVersionInterval: 10, MaxVersions: 100})

	v1, err := e.Write(ctx, c.ID, nil, "", pageHTML(1), &diffhtml.Result{Summary: "initial"})
	if err != nil {
		t.Fatalf("Write v1: %v", err)
	}
	v2, err := e.Write(ctx, c.ID, v1, pageHTML(1), pageHTML(2), &diffhtml.Result{Summary: "change"})
	if err != nil {
		t.Fatalf("Write v2: %v", err)
	}

	if _, err := e.Write(ctx, c.ID, v2, pageHTML(2), pageHTML(3), &diffhtml.Result{Summary: "change"}); err == nil {
		t.Fatalf("Write v3 succeeded despite diff insert failure")
	}

	v3, err := s.GetByVersion(ctx, c.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if v3 != nil {
		t.Errorf("snapshot v3 persisted despite failed write")
	}
	cur, err := s.GetCurrent(ctx, c.ID)
	if err != nil || cur == nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionNumber != 2 {
		t.Errorf("current = v%d, want v2", cur.VersionNumber)
	}
	got, err := e.Reconstruct(ctx, c.ID, 2)
	if err != nil {
		t.Fatalf("Reconstruct v2 after failed write: %v", err)
	}
	if got != pageHTML(2) {
		t.Errorf("Reconstruct v2 differs after failed write")
	}
}
