package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Remote fetches rendered HTML from the rendering service.
//
// The service exposes GET {base}/html?url=...&waitFor=...&removeScripts=...
// with a bearer token. Older deployments return the page as a raw HTML body
// with X-Page-Title / X-Rendered-Url / X-Was-Timeout headers; newer ones
// return a JSON envelope {html, title, url, wasTimeout}. Both are handled.
type Remote struct {
	base    string
	token   string
	client  *http.Client
	log     *slog.Logger
	retries int
	backoff time.Duration
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(log *slog.Logger) RemoteOption {
	return func(r *Remote) { r.log = log }
}

// WithBackoff sets the initial retry backoff. Default: 500ms, doubling.
func WithBackoff(d time.Duration) RemoteOption {
	return func(r *Remote) { r.backoff = d }
}

// NewRemote creates a client for the rendering service at base.
func NewRemote(base, token string, opts ...RemoteOption) *Remote {
	r := &Remote{
		base:    strings.TrimRight(base, "/"),
		token:   token,
		client:  &http.Client{Timeout: 90 * time.Second},
		log:     slog.Default(),
		retries: 2,
		backoff: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Fetch renders pageURL. Transport errors and 5xx responses are retried up
// to twice with exponential backoff; 4xx responses map to ErrRejected and
// are not retried. Options.TimeoutMs bounds the whole call, retries
// included.
func (r *Remote) Fetch(ctx context.Context, pageURL string, opts Options) (*Result, error) {
	if opts.Simulate {
		return &Result{HTML: opts.SimulatedHTML, RenderedURL: pageURL}, nil
	}
	pageURL = NormalizeURL(pageURL)
	ctx, cancel := opts.withDeadline(ctx)
	defer cancel()

	var lastErr error
	backoff := r.backoff
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			r.log.Debug("renderer: retrying", "url", pageURL, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("renderer: %w", classifyCtx(ctx.Err()))
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		res, retryable, err := r.fetchOnce(ctx, pageURL, opts)
		if err == nil {
			return res, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Remote) fetchOnce(ctx context.Context, pageURL string, opts Options) (*Result, bool, error) {
	q := url.Values{}
	q.Set("url", pageURL)
	if opts.WaitMs > 0 {
		q.Set("waitFor", strconv.Itoa(opts.WaitMs))
	}
	if opts.RemoveScripts {
		q.Set("removeScripts", "true")
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		q.Set("viewportWidth", strconv.Itoa(opts.ViewportWidth))
		q.Set("viewportHeight", strconv.Itoa(opts.ViewportHeight))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/html?"+q.Encode(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("renderer: new request: %w", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("renderer: %w", classifyCtx(ctx.Err()))
		}
		return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, false, fmt.Errorf("%w: http %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	res := &Result{
		HTML:        string(body),
		Title:       resp.Header.Get("X-Page-Title"),
		RenderedURL: resp.Header.Get("X-Rendered-Url"),
		WasTimeout:  resp.Header.Get("X-Was-Timeout") == "true",
	}

	// JSON envelope variant.
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var env struct {
			HTML       string `json:"html"`
			Title      string `json:"title"`
			URL        string `json:"url"`
			WasTimeout bool   `json:"wasTimeout"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, false, fmt.Errorf("renderer: decode envelope: %w", err)
		}
		res.HTML = env.HTML
		if env.Title != "" {
			res.Title = env.Title
		}
		if env.URL != "" {
			res.RenderedURL = env.URL
		}
		res.WasTimeout = res.WasTimeout || env.WasTimeout
	}

	if res.RenderedURL == "" {
		res.RenderedURL = pageURL
	}
	return res, false, nil
}

func classifyCtx(err error) error {
	if err == context.DeadlineExceeded {
		return ErrTimeout
	}
	return err
}
