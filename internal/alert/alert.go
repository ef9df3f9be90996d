// Package alert turns detected changes into structured alert records owned
// by the competitor's user.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/pagewatch/pagewatch/internal/diffhtml"
	"github.com/pagewatch/pagewatch/internal/section"
	"github.com/pagewatch/pagewatch/internal/store"
)

// Emitter builds and persists alerts.
type Emitter struct {
	store *store.Store
	md    *converter.Converter
	log   *slog.Logger
}

// New creates an Emitter.
func New(s *store.Store, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{
		store: s,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		log: log,
	}
}

var severityRank = map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}

// EmitChange records one alert for a versioned change. The type is
// price_change when the change classified as pricing, or when the dominant
// affected section is pricing, at medium severity or above; otherwise
// content_change.
func (e *Emitter) EmitChange(ctx context.Context, c *store.Competitor, snap *store.Snapshot, norm *diffhtml.Result, sections []section.Section) (*store.Alert, error) {
	typ := "content_change"
	pricing := snap.ChangeType == string(diffhtml.ChangePricing) ||
		section.Dominant(sections) == "pricing"
	if pricing && severityRank[snap.Severity] >= severityRank["medium"] {
		typ = "price_change"
	}

	sectionsJSON := "[]"
	if len(sections) > 0 {
		data, err := json.Marshal(sections)
		if err != nil {
			return nil, fmt.Errorf("alert: marshal sections: %w", err)
		}
		sectionsJSON = string(data)
	}

	a := &store.Alert{
		UserID:           c.UserID,
		CompetitorID:     c.ID,
		SnapshotID:       snap.ID,
		Type:             typ,
		Severity:         snap.Severity,
		Title:            e.title(c, typ),
		Message:          e.message(c, snap, norm),
		ChangeCount:      snap.ChangeCount,
		ChangePercentage: snap.ChangePercentage,
		VersionNumber:    snap.VersionNumber,
		ChangeSummary:    snap.ChangeSummary,
		AffectedSections: sectionsJSON,
	}
	if err := e.store.InsertAlert(ctx, a); err != nil {
		return nil, err
	}
	e.log.Info("alert: emitted",
		"competitor_id", c.ID, "type", typ, "severity", a.Severity, "version", a.VersionNumber)
	return a, nil
}

// EmitError records a high-severity error alert for a failed scheduled
// capture.
func (e *Emitter) EmitError(ctx context.Context, c *store.Competitor, captureErr error) (*store.Alert, error) {
	a := &store.Alert{
		UserID:       c.UserID,
		CompetitorID: c.ID,
		Type:         "error",
		Severity:     "high",
		Title:        fmt.Sprintf("Capture failed for %s", displayName(c)),
		Message:      captureErr.Error(),
	}
	if err := e.store.InsertAlert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (e *Emitter) title(c *store.Competitor, typ string) string {
	name := displayName(c)
	switch typ {
	case "price_change":
		return fmt.Sprintf("Pricing change detected on %s", name)
	default:
		return fmt.Sprintf("Page change detected on %s", name)
	}
}

// message renders the changed hunks as markdown so the alert body is
// readable without the page. Falls back to the plain summary.
func (e *Emitter) message(c *store.Competitor, snap *store.Snapshot, norm *diffhtml.Result) string {
	var added, removed strings.Builder
	for _, h := range norm.Hunks {
		switch h.Op {
		case diffhtml.OpAdded:
			added.WriteString(h.Text)
			added.WriteByte('\n')
		case diffhtml.OpRemoved:
			removed.WriteString(h.Text)
			removed.WriteByte('\n')
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (v%d, %.1f%% changed)\n", snap.ChangeSummary, snap.VersionNumber, snap.ChangePercentage)
	if md := e.toMarkdown(added.String(), c.URL); md != "" {
		b.WriteString("\n**Added**\n\n" + md + "\n")
	}
	if md := e.toMarkdown(removed.String(), c.URL); md != "" {
		b.WriteString("\n**Removed**\n\n" + md + "\n")
	}
	return strings.TrimSpace(b.String())
}

func (e *Emitter) toMarkdown(html, pageURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	md, err := e.md.ConvertString(html, converter.WithDomain(pageURL))
	if err != nil {
		e.log.Debug("alert: markdown conversion failed", "error", err)
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(md)
}

func displayName(c *store.Competitor) string {
	if c.Name != "" {
		return c.Name
	}
	return c.URL
}
