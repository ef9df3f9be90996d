// Package capture orchestrates one monitoring pass over a competitor page:
// fetch, normalize, diff, store, alert, retention, with at-most-one
// concurrent capture per competitor.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagewatch/pagewatch/internal/alert"
	"github.com/pagewatch/pagewatch/internal/diffhtml"
	"github.com/pagewatch/pagewatch/internal/normalize"
	"github.com/pagewatch/pagewatch/internal/renderer"
	"github.com/pagewatch/pagewatch/internal/section"
	"github.com/pagewatch/pagewatch/internal/store"
	"github.com/pagewatch/pagewatch/internal/version"
)

var (
	// ErrCaptureInProgress means another capture holds the competitor's
	// lock. The scheduler skips; manual callers see the error.
	ErrCaptureInProgress = errors.New("capture: already in progress")
	// ErrMonitoringDisabled is returned to the scheduler for disabled
	// competitors. Manual captures bypass the check.
	ErrMonitoringDisabled = errors.New("capture: monitoring disabled")
	// ErrCompetitorNotFound means the competitor does not exist.
	ErrCompetitorNotFound = errors.New("capture: competitor not found")
)

// Options tunes one capture invocation.
type Options struct {
	// WaitMs overrides the renderer settle time for this capture.
	WaitMs int
	// ViewportWidth and ViewportHeight override the configured viewport.
	ViewportWidth  int
	ViewportHeight int
	// Simulate skips the renderer and uses SimulatedHTML.
	Simulate      bool
	SimulatedHTML string
	// IsInitialCapture allows a placeholder snapshot #1 when the renderer
	// is down.
	IsInitialCapture bool
	// IsManualCheck marks a user-triggered capture: bypasses the
	// monitoring_enabled check and receives errors synchronously instead
	// of error alerts.
	IsManualCheck bool
}

// Result reports what one capture did.
type Result struct {
	ChangesDetected  bool    `json:"changes_detected"`
	AlertCreated     bool    `json:"alert_created"`
	SnapshotID       string  `json:"snapshot_id,omitempty"`
	VersionNumber    int     `json:"version_number,omitempty"`
	ChangeCount      int     `json:"change_count"`
	ChangePercentage float64 `json:"change_percentage"`
	Severity         string  `json:"severity,omitempty"`
	ChangeType       string  `json:"change_type,omitempty"`
	ChangeSummary    string  `json:"change_summary,omitempty"`
}

// Config tunes the orchestrator.
type Config struct {
	// ChangeThreshold is the minimum changed-line fraction for a capture
	// to count as significant. Default: 0.05.
	ChangeThreshold float64
	// SignificantChangeThreshold is the minimum hunk length in characters.
	// Default: 100.
	SignificantChangeThreshold int
	// WaitMs is the default renderer settle time. Default: 3000.
	WaitMs int
	// RendererTimeoutMs bounds one renderer call, retries included.
	// Default: 30000.
	RendererTimeoutMs int
	// ViewportWidth and ViewportHeight set the render viewport. Default:
	// 1920x1080.
	ViewportWidth  int
	ViewportHeight int
	// Timeout bounds one whole capture. Default: 60s.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.ChangeThreshold <= 0 {
		c.ChangeThreshold = 0.05
	}
	if c.SignificantChangeThreshold <= 0 {
		c.SignificantChangeThreshold = 100
	}
	if c.WaitMs <= 0 {
		c.WaitMs = 3000
	}
	if c.RendererTimeoutMs <= 0 {
		c.RendererTimeoutMs = 30_000
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 1080
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Orchestrator runs captures.
type Orchestrator struct {
	store    *store.Store
	renderer renderer.Renderer
	engine   *version.Engine
	sections *section.Extractor
	alerts   *alert.Emitter
	locks    *keyedLocks
	cfg      Config
}

// New creates an Orchestrator.
func New(s *store.Store, r renderer.Renderer, e *version.Engine, em *alert.Emitter, cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{
		store:    s,
		renderer: r,
		engine:   e,
		sections: section.NewExtractor(),
		alerts:   em,
		locks:    newKeyedLocks(),
		cfg:      cfg,
	}
}

// Capture runs one monitoring pass for a competitor.
func (o *Orchestrator) Capture(ctx context.Context, competitorID string, opts Options) (*Result, error) {
	if !o.locks.TryLock(competitorID) {
		return nil, ErrCaptureInProgress
	}
	defer o.locks.Unlock(competitorID)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	res, err := o.capture(ctx, competitorID, opts)
	if err != nil && !opts.IsManualCheck && !isFlowControl(err) {
		o.emitErrorAlert(ctx, competitorID, err)
	}
	return res, err
}

// isFlowControl filters errors that are part of normal scheduling, not
// capture failures worth alerting on.
func isFlowControl(err error) bool {
	return errors.Is(err, ErrMonitoringDisabled) || errors.Is(err, ErrCompetitorNotFound)
}

func (o *Orchestrator) capture(ctx context.Context, competitorID string, opts Options) (*Result, error) {
	log := o.cfg.Logger

	c, err := o.store.GetCompetitor(ctx, competitorID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCompetitorNotFound, competitorID)
	}
	if !c.MonitoringEnabled && !opts.IsManualCheck {
		return nil, ErrMonitoringDisabled
	}

	current, err := o.store.GetCurrent(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	html, err := o.fetch(ctx, c, current, opts)
	if err != nil {
		return nil, err
	}

	// Initial capture: snapshot #1 is always a full baseline.
	if current == nil {
		snap, err := o.engine.Write(ctx, c.ID, nil, "", html, &diffhtml.Result{
			Severity:   diffhtml.SeverityLow,
			ChangeType: diffhtml.ChangeOther,
			Summary:    "initial",
		})
		if err != nil {
			return nil, err
		}
		if err := o.updateCounters(ctx, c.ID); err != nil {
			return nil, err
		}
		log.Info("capture: initial snapshot", "competitor_id", c.ID, "snapshot_id", snap.ID)
		return &Result{
			SnapshotID:    snap.ID,
			VersionNumber: 1,
			Severity:      snap.Severity,
			ChangeType:    snap.ChangeType,
			ChangeSummary: snap.ChangeSummary,
		}, nil
	}

	prevRaw, err := o.engine.Reconstruct(ctx, c.ID, current.VersionNumber)
	if err != nil {
		return nil, err
	}

	diffCfg := diffhtml.Config{
		SignificantChangeThreshold: o.cfg.SignificantChangeThreshold,
		ChangeThreshold:            o.cfg.ChangeThreshold,
	}
	norm := diffhtml.Compare(
		normalize.Lineify(normalize.Normalize(prevRaw)),
		normalize.Lineify(normalize.Normalize(html)),
		diffCfg)
	if !norm.Significant(diffCfg) {
		if err := o.store.RecordChecked(ctx, c.ID); err != nil {
			return nil, err
		}
		log.Debug("capture: no significant change",
			"competitor_id", c.ID, "change_count", norm.ChangeCount, "pct", norm.ChangePercentage)
		return &Result{
			ChangeCount:      norm.ChangeCount,
			ChangePercentage: norm.ChangePercentage,
		}, nil
	}

	// Best-effort enrichment; never blocks the capture.
	sections := o.sections.Extract(prevRaw, html, norm.Hunks)

	snap, err := o.engine.Write(ctx, c.ID, current, prevRaw, html, norm)
	if errors.Is(err, store.ErrVersionConflict) {
		// A concurrent writer took the version number. Re-read and retry
		// once.
		log.Warn("capture: version conflict, retrying", "competitor_id", c.ID)
		current, err = o.store.GetCurrent(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		prevRaw, err = o.engine.Reconstruct(ctx, c.ID, current.VersionNumber)
		if err != nil {
			return nil, err
		}
		snap, err = o.engine.Write(ctx, c.ID, current, prevRaw, html, norm)
	}
	if err != nil {
		return nil, err
	}

	alertCreated := false
	if _, err := o.alerts.EmitChange(ctx, c, snap, norm, sections); err != nil {
		log.Error("capture: alert emission failed", "competitor_id", c.ID, "error", err)
	} else {
		alertCreated = true
	}

	if err := o.engine.Retention(ctx, c.ID); err != nil {
		log.Warn("capture: retention blocked", "competitor_id", c.ID, "error", err)
	}

	if err := o.updateCounters(ctx, c.ID); err != nil {
		return nil, err
	}

	log.Info("capture: change recorded",
		"competitor_id", c.ID, "version", snap.VersionNumber,
		"severity", snap.Severity, "pct", snap.ChangePercentage)
	return &Result{
		ChangesDetected:  true,
		AlertCreated:     alertCreated,
		SnapshotID:       snap.ID,
		VersionNumber:    snap.VersionNumber,
		ChangeCount:      snap.ChangeCount,
		ChangePercentage: snap.ChangePercentage,
		Severity:         snap.Severity,
		ChangeType:       snap.ChangeType,
		ChangeSummary:    snap.ChangeSummary,
	}, nil
}

// fetch renders the page. A renderer outage on the very first capture with
// IsInitialCapture substitutes a placeholder so snapshot #1 always exists.
func (o *Orchestrator) fetch(ctx context.Context, c *store.Competitor, current *store.Snapshot, opts Options) (string, error) {
	waitMs := opts.WaitMs
	if waitMs <= 0 {
		waitMs = o.cfg.WaitMs
	}
	vw, vh := opts.ViewportWidth, opts.ViewportHeight
	if vw <= 0 || vh <= 0 {
		vw, vh = o.cfg.ViewportWidth, o.cfg.ViewportHeight
	}
	res, err := o.renderer.Fetch(ctx, c.URL, renderer.Options{
		WaitMs:         waitMs,
		TimeoutMs:      o.cfg.RendererTimeoutMs,
		ViewportWidth:  vw,
		ViewportHeight: vh,
		Simulate:       opts.Simulate,
		SimulatedHTML:  opts.SimulatedHTML,
	})
	if err != nil {
		outage := errors.Is(err, renderer.ErrUnavailable) || errors.Is(err, renderer.ErrTimeout)
		if outage && current == nil && opts.IsInitialCapture {
			o.cfg.Logger.Warn("capture: renderer down, using placeholder",
				"competitor_id", c.ID, "error", err)
			return placeholderHTML(c.URL), nil
		}
		return "", err
	}
	return res.HTML, nil
}

func placeholderHTML(url string) string {
	return fmt.Sprintf(
		"<html><body><p>Monitoring started for %s. First content capture pending.</p></body></html>", url)
}

// updateCounters syncs total_versions with the surviving snapshot count
// (retention may have removed rows) and stamps the change time.
func (o *Orchestrator) updateCounters(ctx context.Context, competitorID string) error {
	n, err := o.store.CountSnapshots(ctx, competitorID)
	if err != nil {
		return err
	}
	return o.store.RecordChange(ctx, competitorID, n)
}

func (o *Orchestrator) emitErrorAlert(ctx context.Context, competitorID string, captureErr error) {
	// The capture context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	c, err := o.store.GetCompetitor(ctx, competitorID)
	if err != nil || c == nil {
		return
	}
	if _, err := o.alerts.EmitError(ctx, c, captureErr); err != nil {
		o.cfg.Logger.Error("capture: error alert failed", "competitor_id", competitorID, "error", err)
	}
}
