// Package renderer fetches fully rendered page HTML for capture.
//
// Two implementations share the Renderer interface: Remote talks to the
// headless-Chrome rendering service over HTTP, Local drives a Chrome
// instance directly through rod. The capture orchestrator only sees the
// interface and the error taxonomy.
package renderer

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Fetch errors. Callers classify with errors.Is.
var (
	// ErrUnavailable means the renderer could not be reached at all.
	ErrUnavailable = errors.New("renderer: unavailable")
	// ErrTimeout means the render exceeded its deadline.
	ErrTimeout = errors.New("renderer: timeout")
	// ErrRejected means the renderer refused the request (bad URL, auth).
	// Not retryable.
	ErrRejected = errors.New("renderer: rejected")
)

// Options tunes one fetch.
type Options struct {
	// WaitMs is the post-load settle time in milliseconds.
	WaitMs int
	// TimeoutMs bounds the whole fetch, retries included. Zero means no
	// deadline beyond the caller's context.
	TimeoutMs int
	// ViewportWidth and ViewportHeight set the browser viewport. Zero
	// leaves the renderer's default.
	ViewportWidth  int
	ViewportHeight int
	// RemoveScripts asks the renderer to strip <script> elements before
	// serializing.
	RemoveScripts bool
	// Simulate short-circuits the fetch and returns SimulatedHTML. Used by
	// tests and dry runs.
	Simulate      bool
	SimulatedHTML string
}

// withDeadline applies Options.TimeoutMs to ctx.
func (o Options) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.TimeoutMs <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(o.TimeoutMs)*time.Millisecond)
}

// Result is one rendered page.
type Result struct {
	HTML        string
	Title       string
	RenderedURL string
	// WasTimeout is set when the renderer returned partial content after
	// hitting its own internal deadline.
	WasTimeout bool
}

// Renderer fetches the rendered HTML of a page.
type Renderer interface {
	Fetch(ctx context.Context, url string, opts Options) (*Result, error)
}

// NormalizeURL ensures the URL carries an http(s) scheme. Bare hosts get
// https.
func NormalizeURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return url
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}
