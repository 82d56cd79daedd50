// Package browser attaches the overlay engine to a live Chrome page via
// Rod. It implements overlay.Host: location reads, HTML snapshots, op
// replay, navigation hook injection and diff-click bindings.
package browser

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

// Config configures the browser manager.
type Config struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome via launcher.
	Remote string `yaml:"remote"`

	// Headful disables headless mode for local launches.
	Headful bool `yaml:"headful"`

	// Stealth applies the stealth patches when opening pages.
	Stealth bool `yaml:"stealth"`

	// NavigateTimeout bounds page navigation. Default: 30s.
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome connection lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a Manager. Call Start to connect.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}

	controlURL := m.cfg.Remote
	if controlURL == "" {
		l := launcher.New().Headless(!m.cfg.Headful)
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		m.lnch = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	m.browser = b
	m.cfg.Logger.Info("browser: connected", "remote", m.cfg.Remote != "")
	return nil
}

// OpenPage opens a tab, navigates to the URL and waits for load.
func (m *Manager) OpenPage(ctx context.Context, pageURL string) (*PageHost, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	var p *rod.Page
	var err error
	if m.cfg.Stealth {
		p, err = stealth.Page(b)
	} else {
		p, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()
	if err := p.Context(navCtx).Navigate(pageURL); err != nil {
		p.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &PageHost{page: p, logger: m.cfg.Logger}, nil
}

// AttachFirstPage attaches to the first existing tab of a remote Chrome
// (the page the user is already looking at).
func (m *Manager) AttachFirstPage(ctx context.Context) (*PageHost, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("browser: no open pages to attach to")
	}
	return &PageHost{page: pages.First().Context(ctx), logger: m.cfg.Logger}, nil
}

// Close shuts down the connection and any launched Chrome.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.browser != nil {
		m.browser.Close()
	}
	if m.lnch != nil {
		m.lnch.Kill()
	}
}
