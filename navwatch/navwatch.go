// Package navwatch detects that the browsed page has become a logically
// different product and invokes a re-analysis callback at most once per
// transition. The host environment does not announce client-side
// navigations, so the watcher combines a periodic location poll with
// recheck kicks from wrapped history entry points and back/forward
// signals, deduplicating by page identity.
package navwatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marchfour/regionlens/page"
)

// LocationFunc reads the current location URL from the host. Two calls
// returning locations with different identities mean "the user moved".
type LocationFunc func(ctx context.Context) (string, error)

// OnChange is invoked with the new page identity and the content
// identifier extracted from the location.
type OnChange func(ctx context.Context, identity, contentID string)

// Options tunes the watcher behaviour.
type Options struct {
	// Interval is the polling frequency. Default: 1.5s.
	Interval time.Duration

	// RecheckDelay is the settle time between a hook notification and
	// the recheck it schedules, allowing the environment to finish the
	// navigation it just announced. Default: 100ms.
	RecheckDelay time.Duration

	// Identity derives the page identity from a location URL.
	// Default: page.IdentityFromURL.
	Identity func(rawURL string) string

	// ExtractID derives the content identifier from a location URL.
	// No identifier means no callback. Default: page.ASINFromURL.
	ExtractID func(rawURL string) string

	// Current, when set, returns the identifier the session already
	// holds; the callback never fires for an identifier equal to it.
	Current func() string

	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 1500 * time.Millisecond
	}
	if o.RecheckDelay <= 0 {
		o.RecheckDelay = 100 * time.Millisecond
	}
	if o.Identity == nil {
		o.Identity = page.IdentityFromURL
	}
	if o.ExtractID == nil {
		o.ExtractID = page.ASINFromURL
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls the host location and fires a callback once per distinct
// page-identity transition. Safe for concurrent use.
type Watcher struct {
	loc  LocationFunc
	opts Options

	mu           sync.Mutex
	lastIdentity string

	kick chan struct{}

	// Counters for observability (exported via Stats).
	checks    atomic.Int64
	changes   atomic.Int64
	callbacks atomic.Int64
	errors    atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks    int64 `json:"checks"`
	Changes   int64 `json:"changes"`
	Callbacks int64 `json:"callbacks"`
	Errors    int64 `json:"errors"`
}

// New creates a Watcher. Call Run to start the loop.
func New(loc LocationFunc, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{
		loc:  loc,
		opts: opts,
		kick: make(chan struct{}, 1),
	}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:    w.checks.Load(),
		Changes:   w.changes.Load(),
		Callbacks: w.callbacks.Load(),
		Errors:    w.errors.Load(),
	}
}

// LastIdentity returns the identity last observed by the watcher.
func (w *Watcher) LastIdentity() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastIdentity
}

// Notify is the hook entry point. Host adapters call it after forwarding
// an intercepted history mutation (push or replace) or a back/forward
// signal; the watcher rechecks after RecheckDelay. Multiple notifications
// inside one delay window coalesce into a single recheck.
func (w *Watcher) Notify() {
	time.AfterFunc(w.opts.RecheckDelay, func() {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	})
}

// Run blocks until ctx is cancelled, checking the location on every poll
// tick and on every hook kick. The first check fires the callback too:
// the watcher starts with no observed identity.
func (w *Watcher) Run(ctx context.Context, onChange OnChange) {
	log := w.opts.Logger

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	log.Info("navwatch: started", "interval", w.opts.Interval)

	w.check(ctx, onChange)
	for {
		select {
		case <-ctx.Done():
			log.Info("navwatch: stopped")
			return
		case <-ticker.C:
			w.check(ctx, onChange)
		case <-w.kick:
			w.check(ctx, onChange)
		}
	}
}

// check computes the current identity and fires the callback when it
// moved. lastIdentity advances even when no identifier can be extracted,
// so leaving a product page and coming back is a fresh transition.
func (w *Watcher) check(ctx context.Context, onChange OnChange) {
	w.checks.Add(1)

	rawURL, err := w.loc(ctx)
	if err != nil {
		w.errors.Add(1)
		w.opts.Logger.Warn("navwatch: location read failed", "error", err)
		return
	}
	identity := w.opts.Identity(rawURL)
	if identity == "" {
		return
	}

	w.mu.Lock()
	if identity == w.lastIdentity {
		w.mu.Unlock()
		return
	}
	w.lastIdentity = identity
	w.mu.Unlock()
	w.changes.Add(1)

	contentID := w.opts.ExtractID(rawURL)
	if contentID == "" {
		w.opts.Logger.Debug("navwatch: no content identifier", "identity", identity)
		return
	}
	if w.opts.Current != nil && w.opts.Current() == contentID {
		w.opts.Logger.Debug("navwatch: identifier already current", "content_id", contentID)
		return
	}

	w.callbacks.Add(1)
	w.opts.Logger.Info("navwatch: page changed", "identity", identity, "content_id", contentID)
	onChange(ctx, identity, contentID)
}
