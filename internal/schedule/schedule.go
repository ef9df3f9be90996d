// Package schedule polls for due competitors and runs captures through a
// bounded worker pool. A daily sweep re-runs retention for every
// competitor.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pagewatch/pagewatch/internal/capture"
	"github.com/pagewatch/pagewatch/internal/store"
	"github.com/pagewatch/pagewatch/internal/version"
)

// Config configures the scheduler.
type Config struct {
	// CheckInterval is how often to poll for due competitors. Default: 1m.
	CheckInterval time.Duration
	// Workers bounds concurrent captures. Default: 4.
	Workers int
	// RetentionSweep is the cadence of the full retention pass. Default: 24h.
	RetentionSweep time.Duration
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RetentionSweep <= 0 {
		c.RetentionSweep = 24 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler drives periodic captures.
type Scheduler struct {
	store  *store.Store
	orch   *capture.Orchestrator
	engine *version.Engine
	cfg    Config
}

// New creates a Scheduler.
func New(s *store.Store, o *capture.Orchestrator, e *version.Engine, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{store: s, orch: o, engine: e, cfg: cfg}
}

// Run polls on a ticker and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(s.cfg.RetentionSweep)
	defer sweep.Stop()

	// Run once immediately on start.
	s.captureDue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.captureDue(ctx)
		case <-sweep.C:
			s.retentionSweep(ctx)
		}
	}
}

// captureDue fans due competitors out over the worker pool. Contention and
// disabled competitors are skips, not failures.
func (s *Scheduler) captureDue(ctx context.Context) {
	log := s.cfg.Logger

	due, err := s.store.DueCompetitors(ctx)
	if err != nil {
		log.Error("schedule: due competitors", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	log.Debug("schedule: captures due", "count", len(due))

	jobs := make(chan *store.Competitor)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				s.captureOne(ctx, c)
			}
		}()
	}

	for _, c := range due {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- c:
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *Scheduler) captureOne(ctx context.Context, c *store.Competitor) {
	log := s.cfg.Logger

	res, err := s.orch.Capture(ctx, c.ID, capture.Options{})
	switch {
	case errors.Is(err, capture.ErrCaptureInProgress),
		errors.Is(err, capture.ErrMonitoringDisabled):
		log.Debug("schedule: skipped", "competitor_id", c.ID, "reason", err)
	case err != nil:
		log.Error("schedule: capture failed", "competitor_id", c.ID, "error", err)
	case res.ChangesDetected:
		log.Info("schedule: change detected",
			"competitor_id", c.ID, "version", res.VersionNumber, "severity", res.Severity)
	}
}

// retentionSweep re-runs retention for every competitor, catching up any
// step that was blocked during captures.
func (s *Scheduler) retentionSweep(ctx context.Context) {
	log := s.cfg.Logger

	comps, err := s.store.ListCompetitors(ctx)
	if err != nil {
		log.Error("schedule: list competitors", "error", err)
		return
	}
	for _, c := range comps {
		if err := s.engine.Retention(ctx, c.ID); err != nil {
			log.Warn("schedule: retention", "competitor_id", c.ID, "error", err)
		}
	}
	log.Debug("schedule: retention sweep complete", "competitors", len(comps))
}
