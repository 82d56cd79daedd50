package compare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3
	defaultBackoff = 500 * time.Millisecond

	// maxDescriptionLen caps the page_description query parameter.
	maxDescriptionLen = 4000
)

// CheckRequest carries the page context for a consistency check.
type CheckRequest struct {
	ASIN        string
	Title       string
	Description string // may contain markup; sanitized before sending
	Region      string
}

// Client fetches consistency results over HTTP with bounded retries.
type Client struct {
	base    string
	client  *http.Client
	retries int
	backoff time.Duration
	strip   *bluemonday.Policy
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithRetries sets the retry count for transient failures.
func WithRetries(n int) Option {
	return func(cl *Client) { cl.retries = n }
}

// WithBackoff sets the linear backoff unit (attempt n waits n×backoff).
func WithBackoff(d time.Duration) Option {
	return func(cl *Client) { cl.backoff = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client for a service base URL.
func New(base string, opts ...Option) *Client {
	cl := &Client{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		retries: defaultRetries,
		backoff: defaultBackoff,
		strip:   bluemonday.StrictPolicy(),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(cl)
	}
	return cl
}

// Check requests a consistency result. Transient failures are retried
// with linear backoff; a malformed response is discarded and reported as
// an error, identically to a network failure.
func (cl *Client) Check(ctx context.Context, req CheckRequest) (*Result, error) {
	if req.ASIN == "" {
		return nil, fmt.Errorf("compare: check without asin")
	}

	q := url.Values{}
	q.Set("asin", req.ASIN)
	q.Set("page_title", req.Title)
	q.Set("page_description", cl.sanitize(req.Description))
	q.Set("page_region", req.Region)
	endpoint := cl.base + "/check?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= cl.retries; attempt++ {
		result, err := cl.doCheck(ctx, endpoint)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < cl.retries {
			wait := time.Duration(attempt) * cl.backoff
			cl.logger.Warn("compare: check failed, retrying",
				"asin", req.ASIN, "attempt", attempt, "wait", wait, "error", err)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("compare: check %s: %w", req.ASIN, lastErr)
}

func (cl *Client) doCheck(ctx context.Context, endpoint string) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("compare: new request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := cl.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("compare: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("compare: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("compare: status %d", resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("compare: malformed response: %w", err)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health probes the service /health endpoint.
func (cl *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cl.base+"/health", nil)
	if err != nil {
		return fmt.Errorf("compare: new request: %w", err)
	}
	resp, err := cl.client.Do(req)
	if err != nil {
		return fmt.Errorf("compare: health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("compare: health: status %d", resp.StatusCode)
	}
	return nil
}

// sanitize strips markup from the description, unescapes what bluemonday
// entity-encoded, collapses whitespace, and caps the length.
func (cl *Client) sanitize(s string) string {
	s = cl.strip.Sanitize(s)
	s = xhtml.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxDescriptionLen {
		cut := maxDescriptionLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
