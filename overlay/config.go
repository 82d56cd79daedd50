package overlay

import "time"

// Annotation classes injected on page elements. All carry the
// page.InjectedClassPrefix so walkers skip them.
const (
	ClassOK       = "rl-status-ok"
	ClassModified = "rl-status-modified"
	ClassMissing  = "rl-status-missing"
	ClassTag      = "rl-region-tag"
)

// shortenedQueryRunes is the prefix length for the second locate attempt
// after a full-fragment miss.
const shortenedQueryRunes = 30

// Config tunes the coordinator.
type Config struct {
	// BulletSelectors are tried in order to find the bullet container.
	// Empty means page.DefaultBulletSelectors.
	BulletSelectors []string `yaml:"bullet_selectors"`

	// LocateScopes are the locate search scopes, most specific first.
	// An empty string entry means the whole document.
	LocateScopes []string `yaml:"locate_scopes"`

	// PollInterval is the navigation poll frequency.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RecheckDelay is the settle delay after a navigation hook fires.
	RecheckDelay time.Duration `yaml:"recheck_delay"`

	// MarkerDwell is how long a locate marker stays on the page.
	MarkerDwell time.Duration `yaml:"marker_dwell"`

	// Region overrides the marketplace region derived from the location.
	Region string `yaml:"region"`
}

func (c *Config) applyDefaults() {
	if len(c.LocateScopes) == 0 {
		c.LocateScopes = []string{
			"#feature-bullets",
			"#productDescription",
			"#productOverview",
			"", // whole document, last resort
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 1500 * time.Millisecond
	}
	if c.RecheckDelay <= 0 {
		c.RecheckDelay = 100 * time.Millisecond
	}
	if c.MarkerDwell <= 0 {
		c.MarkerDwell = 8 * time.Second
	}
}
