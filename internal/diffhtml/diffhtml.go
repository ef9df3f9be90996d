// Package diffhtml computes the line-level change set between two HTML
// documents.
//
// The diff is a longest-common-subsequence comparison at line granularity.
// The resulting hunk sequence is a complete ordered cover of both inputs:
// concatenating unchanged+removed hunks reproduces the old document and
// concatenating unchanged+added hunks reproduces the new one. The version
// engine relies on that property for reconstruction.
package diffhtml

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op tags a hunk.
type Op string

const (
	OpAdded     Op = "added"
	OpRemoved   Op = "removed"
	OpUnchanged Op = "unchanged"
)

// Severity classifies the aggregate magnitude of a change.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ChangeType is the best-guess category of what changed.
type ChangeType string

const (
	ChangePricing ChangeType = "pricing"
	ChangeFeature ChangeType = "feature"
	ChangeDesign  ChangeType = "design"
	ChangeContent ChangeType = "content"
	ChangeOther   ChangeType = "other"
)

// Hunk is a contiguous run of lines sharing one operation.
type Hunk struct {
	Op    Op     `json:"op"`
	Text  string `json:"text"`
	Lines int    `json:"lines"`
}

// Config tunes significance filtering.
type Config struct {
	// SignificantChangeThreshold is the minimum trimmed hunk length in
	// characters for an added/removed hunk to count. Default: 100.
	SignificantChangeThreshold int
	// ChangeThreshold is the minimum changed-line fraction (0.05 = 5%)
	// for the whole capture to be significant. Default: 0.05.
	ChangeThreshold float64
}

func (c *Config) defaults() {
	if c.SignificantChangeThreshold <= 0 {
		c.SignificantChangeThreshold = 100
	}
	if c.ChangeThreshold <= 0 {
		c.ChangeThreshold = 0.05
	}
}

// Result is the outcome of one comparison.
type Result struct {
	// Hunks is the complete ordered cover, including unchanged runs.
	Hunks []Hunk
	// ChangeCount is the number of significant added/removed hunks.
	ChangeCount int
	// ChangedLines sums line counts over significant hunks.
	ChangedLines int
	// TotalLines is the line count of the new document (min 1).
	TotalLines int
	// ChangePercentage is 100 * ChangedLines / TotalLines, clamped to 100.
	ChangePercentage float64
	Severity         Severity
	ChangeType       ChangeType
	Summary          string
}

// Compare diffs oldHTML against newHTML and computes metrics over the
// significant hunks. Byte-equal inputs short-circuit without running LCS.
func Compare(oldHTML, newHTML string, cfg Config) *Result {
	cfg.defaults()

	if oldHTML == newHTML {
		r := &Result{
			TotalLines: countLines(newHTML),
			Severity:   SeverityLow,
			ChangeType: ChangeOther,
			Summary:    "no change",
		}
		if newHTML != "" {
			r.Hunks = []Hunk{{Op: OpUnchanged, Text: newHTML, Lines: countLines(newHTML)}}
		}
		return r
	}

	dmp := diffmatchpatch.New()
	c1, c2, lines := dmp.DiffLinesToChars(oldHTML, newHTML)
	diffs := dmp.DiffMain(c1, c2, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	hunks := make([]Hunk, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		h := Hunk{Text: d.Text, Lines: countLines(d.Text)}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			h.Op = OpAdded
		case diffmatchpatch.DiffDelete:
			h.Op = OpRemoved
		default:
			h.Op = OpUnchanged
		}
		hunks = append(hunks, h)
	}

	r := &Result{Hunks: hunks}
	r.TotalLines = countLines(newHTML)
	if r.TotalLines < 1 {
		r.TotalLines = 1
	}

	var added, removed int
	var changedText strings.Builder
	for _, h := range hunks {
		if h.Op == OpUnchanged {
			continue
		}
		if len(strings.TrimSpace(h.Text)) < cfg.SignificantChangeThreshold {
			continue
		}
		r.ChangeCount++
		r.ChangedLines += h.Lines
		changedText.WriteString(h.Text)
		if h.Op == OpAdded {
			added++
		} else {
			removed++
		}
	}

	r.ChangePercentage = 100 * float64(r.ChangedLines) / float64(r.TotalLines)
	if r.ChangePercentage > 100 {
		r.ChangePercentage = 100
	}
	r.Severity = severityFor(r.ChangePercentage, r.ChangeCount)
	r.ChangeType = classify(changedText.String())
	r.Summary = summarize(added, removed, r.ChangePercentage)
	return r
}

// Significant reports whether this result passes the capture-level gate:
// at least one significant hunk and a change percentage at or above the
// configured threshold.
func (r *Result) Significant(cfg Config) bool {
	cfg.defaults()
	return r.ChangeCount > 0 && r.ChangePercentage >= cfg.ChangeThreshold*100
}

func severityFor(pct float64, count int) Severity {
	switch {
	case pct > 20 || count > 50:
		return SeverityCritical
	case pct > 10 || count > 20:
		return SeverityHigh
	case pct > 5 || count > 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func summarize(added, removed int, pct float64) string {
	if added == 0 && removed == 0 {
		return "no change"
	}
	parts := make([]string, 0, 2)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d addition(s)", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removal(s)", removed))
	}
	return fmt.Sprintf("%s, %.1f%% of page", strings.Join(parts, ", "), pct)
}

// countLines returns the number of newline-separated lines in s.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
