// Package overlay orchestrates the cross-region consistency overlay: it
// watches for navigation, fetches comparison results, classifies page
// bullets, annotates the page, and wires reported diffs to the text
// locator. All page mutation flows through here, serialized under one
// lock and mirrored to the host as reversible ops.
package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/marchfour/regionlens/classify"
	"github.com/marchfour/regionlens/compare"
	"github.com/marchfour/regionlens/history"
	"github.com/marchfour/regionlens/locate"
	"github.com/marchfour/regionlens/navwatch"
	"github.com/marchfour/regionlens/page"
)

const applyTimeout = 10 * time.Second

// Coordinator drives one overlay instance over one host page.
type Coordinator struct {
	cfg    Config
	host   Host
	client *compare.Client
	store  *history.Store
	logger *slog.Logger

	session *Session
	watcher *navwatch.Watcher
	locator *locate.Locator

	// mu serializes every mutation of the page mirror: annotation
	// cycles here and marker wrap/expiry inside the locator (which
	// shares this lock). Never held across host calls or fetches.
	mu      sync.Mutex
	doc     *page.Document
	bullets []page.Bullet
	region  string
	applied []page.Op // inverse ops that undo the current annotations

	reqMu  sync.Mutex
	latest string // identifier of the most recently requested check

	opsCh chan []page.Op
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithHistory attaches the local check log.
func WithHistory(store *history.Store) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator. Call Run to start watching.
func New(cfg Config, host Host, client *compare.Client, opts ...Option) *Coordinator {
	cfg.applyDefaults()
	c := &Coordinator{
		cfg:     cfg,
		host:    host,
		client:  client,
		logger:  slog.Default(),
		session: &Session{},
		opsCh:   make(chan []page.Op, 16),
	}
	for _, o := range opts {
		o(c)
	}

	doc, _ := page.ParseString("")
	c.doc = doc
	c.locator = locate.New(doc, locate.Options{
		Dwell:  cfg.MarkerDwell,
		Logger: c.logger,
		Locker: &c.mu,
		Sink:   func(ops ...page.Op) { c.enqueue(ops) },
	})
	c.watcher = navwatch.New(host.Location, navwatch.Options{
		Interval:     cfg.PollInterval,
		RecheckDelay: cfg.RecheckDelay,
		Current:      c.session.Identity,
		Logger:       c.logger,
	})
	return c
}

// Session exposes the current analysis state (read-only use).
func (c *Coordinator) Session() *Session { return c.session }

// WatcherStats returns the navigation watcher counters.
func (c *Coordinator) WatcherStats() navwatch.Stats { return c.watcher.Stats() }

// Run installs the host hooks and blocks watching for navigation until
// ctx is cancelled. Hook installation failures degrade to poll-only
// operation; nothing here is fatal to the host page.
func (c *Coordinator) Run(ctx context.Context) error {
	go c.applyLoop(ctx)

	if err := c.host.HookNavigation(ctx, c.watcher.Notify); err != nil {
		c.logger.Warn("overlay: navigation hooks unavailable, poll only", "error", err)
	}
	if err := c.host.OnFragmentClick(ctx, func(fragment string) {
		c.LocateFragment(fragment)
	}); err != nil {
		c.logger.Warn("overlay: fragment click binding unavailable", "error", err)
	}

	c.watcher.Run(ctx, func(ctx context.Context, identity, contentID string) {
		if err := c.Check(ctx, false); err != nil {
			c.logger.Warn("overlay: background check failed",
				"identity", identity, "content_id", contentID, "error", err)
		}
	})
	return nil
}

// Check runs one full analysis cycle for the current page. With force
// false, a check for the identifier the session already holds is a cache
// hit and skipped; force true (user-initiated re-check) always fetches.
//
// A fetch overtaken by a newer navigation is discarded: last-writer-wins
// by identity, not by completion order.
func (c *Coordinator) Check(ctx context.Context, force bool) error {
	loc, err := c.host.Location(ctx)
	if err != nil {
		return fmt.Errorf("overlay: location: %w", err)
	}
	asin := page.ASINFromURL(loc)
	if asin == "" {
		c.logger.Debug("overlay: not a product page", "url", loc)
		if c.session.Identity() != "" {
			// The user left the analyzed product; drop the abandoned
			// state so /status stops reporting it and any in-flight
			// fetch for it resolves stale.
			c.setLatest("")
			c.locator.Clear()
			c.mu.Lock()
			c.clearLocked()
			c.session.Reset()
			c.mu.Unlock()
		}
		return nil
	}
	if !force && c.session.Identity() == asin {
		c.logger.Debug("overlay: cache hit", "asin", asin)
		return nil
	}
	c.setLatest(asin)

	raw, err := c.host.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("overlay: snapshot: %w", err)
	}
	doc, err := page.ParseString(raw)
	if err != nil {
		return err
	}

	// Tear down everything belonging to the previous view before the
	// mirror is swapped. The marker goes first (the locator owns it).
	c.locator.Clear()

	region := c.cfg.Region
	if region == "" {
		region = page.RegionFromURL(loc)
	}

	c.mu.Lock()
	clearOps := c.clearLocked()
	c.doc = doc
	c.region = region
	c.bullets = doc.Bullets(c.cfg.BulletSelectors)
	info := doc.Info(loc)
	descHTML := doc.DescriptionHTML()
	c.mu.Unlock()
	c.locator.SetDocument(doc)
	c.enqueue(clearOps)

	description := descHTML
	if description == "" {
		description = info.Description
	}
	result, err := c.client.Check(ctx, compare.CheckRequest{
		ASIN:        asin,
		Title:       info.Title,
		Description: description,
		Region:      region,
	})
	if err != nil {
		// No result available: skip the overlay, keep the page usable.
		return fmt.Errorf("overlay: no result for %s: %w", asin, err)
	}

	// Validate identity under the mirror lock: a newer check swaps the
	// mirror under the same lock after bumping latest, so a stale result
	// can never classify the newer page's bullets.
	c.mu.Lock()
	if current := c.getLatest(); current != asin {
		c.mu.Unlock()
		c.logger.Info("overlay: discarding stale result", "asin", asin, "current", current)
		return nil
	}
	c.session.Set(asin, result)
	statuses := classify.Classify(bulletTexts(c.bullets), result, c.region)
	ops := c.annotateLocked(statuses)
	nbullets := len(c.bullets)
	c.mu.Unlock()
	c.enqueue(ops)

	c.recordHistory(ctx, asin, result, descHTML)
	c.logger.Info("overlay: check complete",
		"asin", asin, "risk", result.RiskLevel, "bullets", nbullets)
	return nil
}

// Recheck is the explicit user-initiated path: it bypasses the session
// cache and forces a fresh fetch/classify cycle.
func (c *Coordinator) Recheck(ctx context.Context) error {
	return c.Check(ctx, true)
}

// LocateFragment searches the page for a reported diff fragment and
// marks it. After a miss on a long fragment, one retry with a shortened
// prefix runs before giving up. A miss is not an error.
func (c *Coordinator) LocateFragment(fragment string) bool {
	if c.locator.Locate(fragment, c.cfg.LocateScopes) {
		return true
	}
	runes := []rune(strings.TrimSpace(fragment))
	if len(runes) > shortenedQueryRunes {
		if c.locator.Locate(string(runes[:shortenedQueryRunes]), c.cfg.LocateScopes) {
			return true
		}
	}
	c.logger.Info("overlay: fragment not found on page", "fragment_runes", len(runes))
	return false
}

// annotateLocked applies the classification to the mirror and returns
// the ops for the host. Records the inverse ops so the next cycle can
// clear everything it added.
func (c *Coordinator) annotateLocked(statuses map[int]*classify.Status) []page.Op {
	var ops []page.Op
	for i, b := range c.bullets {
		st := statuses[i]
		if st == nil {
			continue
		}
		var class string
		switch st.State {
		case classify.StateOK:
			class = ClassOK
		case classify.StateModified:
			class = ClassModified
		case classify.StateMissing:
			class = ClassMissing
		default:
			continue
		}
		add := page.Op{Kind: page.OpAddClass, Path: b.Path, Class: class}
		if err := c.doc.Apply(add); err != nil {
			c.logger.Warn("overlay: annotate failed", "index", i, "error", err)
			continue
		}
		ops = append(ops, add)
		c.applied = append(c.applied, page.Op{Kind: page.OpRemoveClass, Path: b.Path, Class: class})

		if st.State != classify.StateOK && st.Detail != "" {
			tag := page.Op{Kind: page.OpAppendTag, Path: b.Path, Class: ClassTag, Text: st.Detail}
			if err := c.doc.Apply(tag); err != nil {
				c.logger.Warn("overlay: tag failed", "index", i, "error", err)
				continue
			}
			ops = append(ops, tag)
		}
	}
	return ops
}

// clearLocked undoes the current annotations on the mirror and returns
// the ops that undo them on the live page. Status classes are removed
// individually; injected tags go with one sweep.
func (c *Coordinator) clearLocked() []page.Op {
	if len(c.applied) == 0 {
		return nil
	}
	ops := make([]page.Op, 0, len(c.applied)+1)
	for _, inv := range c.applied {
		if err := c.doc.Apply(inv); err != nil {
			c.logger.Debug("overlay: clear skipped stale path", "error", err)
		}
		ops = append(ops, inv)
	}
	sweep := page.Op{Kind: page.OpRemoveByClass, Class: ClassTag}
	c.doc.Apply(sweep)
	ops = append(ops, sweep)
	c.applied = nil
	return ops
}

func (c *Coordinator) recordHistory(ctx context.Context, asin string, result *compare.Result, descHTML string) {
	if c.store == nil {
		return
	}
	var md string
	if descHTML != "" {
		converted, err := htmltomarkdown.ConvertString(descHTML)
		if err != nil {
			c.logger.Debug("overlay: description markdown failed", "error", err)
		} else {
			md = converted
		}
	}
	entry := history.Entry{
		Identifier:        asin,
		RiskLevel:         result.RiskLevel,
		AverageSimilarity: result.AverageSimilarity,
		DescriptionMD:     md,
	}
	if err := c.store.Record(ctx, entry); err != nil {
		c.logger.Warn("overlay: history record failed", "asin", asin, "error", err)
	}
}

// applyLoop replays op batches on the host in submission order.
func (c *Coordinator) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ops := <-c.opsCh:
			applyCtx, cancel := context.WithTimeout(ctx, applyTimeout)
			if err := c.host.Apply(applyCtx, ops); err != nil {
				c.logger.Warn("overlay: host apply failed", "ops", len(ops), "error", err)
			}
			cancel()
		}
	}
}

func (c *Coordinator) enqueue(ops []page.Op) {
	if len(ops) == 0 {
		return
	}
	select {
	case c.opsCh <- ops:
	default:
		c.logger.Warn("overlay: op queue full, dropping batch", "ops", len(ops))
	}
}

func (c *Coordinator) setLatest(id string) {
	c.reqMu.Lock()
	c.latest = id
	c.reqMu.Unlock()
}

func (c *Coordinator) getLatest() string {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.latest
}

func bulletTexts(bullets []page.Bullet) []string {
	texts := make([]string, len(bullets))
	for i, b := range bullets {
		texts[i] = b.Text
	}
	return texts
}
