package diffhtml

import (
	"strings"
	"testing"
)

func reconstructNew(hunks []Hunk) string {
	var b strings.Builder
	for _, h := range hunks {
		if h.Op == OpUnchanged || h.Op == OpAdded {
			b.WriteString(h.Text)
		}
	}
	return b.String()
}

func reconstructOld(hunks []Hunk) string {
	var b strings.Builder
	for _, h := range hunks {
		if h.Op == OpUnchanged || h.Op == OpRemoved {
			b.WriteString(h.Text)
		}
	}
	return b.String()
}

func TestByteEqualShortCircuit(t *testing.T) {
	// WHAT: Byte-equal inputs return zero metrics without running LCS.
	// WHY: Equal normalized forms are the common case on unchanged pages.
	html := "<html>\n<body>\n<h1>v1</h1>\n</body>\n</html>"
	r := Compare(html, html, Config{})
	if r.ChangeCount != 0 || r.ChangedLines != 0 || r.ChangePercentage != 0 {
		t.Errorf("expected zero metrics, got %+v", r)
	}
	if r.Severity != SeverityLow {
		t.Errorf("severity: got %s, want low", r.Severity)
	}
	if got := reconstructNew(r.Hunks); got != html {
		t.Errorf("hunk cover broken on equal inputs: %q", got)
	}
}

func TestHunkCoverRoundTrip(t *testing.T) {
	// WHAT: The hunk sequence fully covers both documents.
	// WHY: Reconstruction concatenates unchanged+added to rebuild the new
	// version; unchanged+removed must equal the old one for integrity checks.
	before := "line one\nline two\nline three\nline four\n"
	after := "line one\nline 2 rewritten\nline three\nline four\nline five\n"
	r := Compare(before, after, Config{})
	if got := reconstructNew(r.Hunks); got != after {
		t.Errorf("new cover:\n got %q\nwant %q", got, after)
	}
	if got := reconstructOld(r.Hunks); got != before {
		t.Errorf("old cover:\n got %q\nwant %q", got, before)
	}
}

func TestSignificantChangeThresholdBoundary(t *testing.T) {
	// WHAT: A single hunk of 99 chars is filtered; 100 chars counts.
	// WHY: The significant_change_threshold boundary is alert-or-silence.
	// Trailing newline keeps the appended line in its own hunk.
	base := "<html>\n<body>\n<p>stable</p>\n</body>\n</html>\n"
	for _, tt := range []struct {
		name  string
		n     int
		count int
	}{
		{"99 chars filtered", 99, 0},
		{"100 chars counted", 100, 1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			line := strings.Repeat("x", tt.n)
			r := Compare(base, base+line, Config{})
			if r.ChangeCount != tt.count {
				t.Errorf("ChangeCount = %d, want %d", r.ChangeCount, tt.count)
			}
		})
	}
}

func TestChangePercentageGate(t *testing.T) {
	// WHAT: Exactly 5% changed lines passes the significance gate; below fails.
	// WHY: The gate is >= change_threshold, not strictly greater.
	long := strings.Repeat("y", 120)

	// 20 total lines, 1 changed line => exactly 5%.
	oldLines := make([]string, 19)
	for i := range oldLines {
		oldLines[i] = "stable line"
	}
	before := strings.Join(oldLines, "\n") + "\n"
	after := before + long

	r := Compare(before, after, Config{})
	if r.TotalLines != 20 {
		t.Fatalf("TotalLines = %d, want 20", r.TotalLines)
	}
	if r.ChangePercentage != 5.0 {
		t.Fatalf("ChangePercentage = %v, want 5.0", r.ChangePercentage)
	}
	if !r.Significant(Config{}) {
		t.Error("5.0%% should be significant with default 5%% threshold")
	}

	// 25 total lines, 1 changed line => 4%.
	oldLines = make([]string, 24)
	for i := range oldLines {
		oldLines[i] = "stable line"
	}
	before = strings.Join(oldLines, "\n") + "\n"
	r = Compare(before, before+long, Config{})
	if r.Significant(Config{}) {
		t.Errorf("4%% should not be significant, got %+v", r.ChangePercentage)
	}
}

func TestSeverityLadder(t *testing.T) {
	tests := []struct {
		pct   float64
		count int
		want  Severity
	}{
		{0, 0, SeverityLow},
		{5, 1, SeverityLow},
		{5.1, 1, SeverityMedium},
		{10, 1, SeverityMedium},
		{10.1, 1, SeverityHigh},
		{20, 1, SeverityHigh},
		{20.1, 1, SeverityCritical},
		{1, 10, SeverityLow},
		{1, 11, SeverityMedium},
		{1, 20, SeverityMedium},
		{1, 21, SeverityHigh},
		{1, 50, SeverityHigh},
		{1, 51, SeverityCritical},
	}
	for _, tt := range tests {
		if got := severityFor(tt.pct, tt.count); got != tt.want {
			t.Errorf("severityFor(%v, %d) = %s, want %s", tt.pct, tt.count, got, tt.want)
		}
	}
}

func TestChangeTypeClassification(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ChangeType
	}{
		{"pricing", "<div>Pro plan now $49/mo with annual billing discount</div>", ChangePricing},
		{"feature", "<p>Introducing our new API integration, now available in beta release</p>", ChangeFeature},
		{"content", "<article>New blog post from the team: a case study</article>", ChangeContent},
		{"other", "<span>zzz qqq</span>", ChangeOther},
		{"empty", "", ChangeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.text); got != tt.want {
				t.Errorf("classify(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	before := "a\nb\nc\n"
	after := "a\n" + strings.Repeat("z", 150) + "\nc\n"
	r := Compare(before, after, Config{})
	if r.ChangeCount == 0 {
		t.Fatal("expected a significant change")
	}
	if !strings.Contains(r.Summary, "addition") && !strings.Contains(r.Summary, "removal") {
		t.Errorf("summary lacks counts: %q", r.Summary)
	}
}
