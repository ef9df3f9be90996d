package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Local renders pages with a Chrome instance driven through rod. It exists
// for deployments without the remote rendering service; same interface,
// same error taxonomy.
type Local struct {
	log *slog.Logger

	mu      sync.Mutex
	lnch    *launcher.Launcher
	browser *rod.Browser
	closed  bool
}

// NewLocal creates a Local renderer. Chrome is launched lazily on the first
// Fetch.
func NewLocal(log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{log: log}
}

// Fetch navigates to pageURL in a fresh stealth page, waits for load plus
// the configured settle time, and serializes the document.
func (l *Local) Fetch(ctx context.Context, pageURL string, opts Options) (*Result, error) {
	if opts.Simulate {
		return &Result{HTML: opts.SimulatedHTML, RenderedURL: pageURL}, nil
	}
	pageURL = NormalizeURL(pageURL)
	ctx, cancel := opts.withDeadline(ctx)
	defer cancel()

	b, err := l.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("%w: new page: %v", ErrUnavailable, err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.ViewportWidth,
			Height:            opts.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return nil, classifyRodErr(ctx, "set viewport", err)
		}
	}
	if err := page.Navigate(pageURL); err != nil {
		return nil, classifyRodErr(ctx, "navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, classifyRodErr(ctx, "wait load", err)
	}
	if opts.WaitMs > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("renderer: %w", classifyCtx(ctx.Err()))
		case <-time.After(time.Duration(opts.WaitMs) * time.Millisecond):
		}
	}

	if opts.RemoveScripts {
		if _, err := page.Eval(`() => {
			document.querySelectorAll("script").forEach(el => el.remove());
		}`); err != nil {
			l.log.Debug("renderer: script removal failed", "url", pageURL, "error", err)
		}
	}

	html, err := page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, classifyRodErr(ctx, "serialize", err)
	}
	title, err := page.Eval(`() => document.title`)
	if err != nil {
		return nil, classifyRodErr(ctx, "title", err)
	}
	info, err := page.Info()
	if err != nil {
		return nil, classifyRodErr(ctx, "page info", err)
	}

	return &Result{
		HTML:        html.Value.Str(),
		Title:       title.Value.Str(),
		RenderedURL: info.URL,
	}, nil
}

// Close shuts down Chrome.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.browser != nil {
		l.browser.Close()
		l.browser = nil
	}
	if l.lnch != nil {
		l.lnch.Cleanup()
		l.lnch = nil
	}
	return nil
}

func (l *Local) ensureBrowser() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, fmt.Errorf("%w: renderer closed", ErrUnavailable)
	}
	if l.browser != nil {
		return l.browser, nil
	}

	lnch := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	wsURL, err := lnch.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch chrome: %v", ErrUnavailable, err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		lnch.Cleanup()
		return nil, fmt.Errorf("%w: connect chrome: %v", ErrUnavailable, err)
	}
	l.log.Info("renderer: launched local chrome")

	l.lnch = lnch
	l.browser = b
	return b, nil
}

func classifyRodErr(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("renderer: %s: %w", step, classifyCtx(ctx.Err()))
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, step, err)
}
